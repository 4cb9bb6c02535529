// Package daemonctl manages the daemon process from the CLI: launching a
// detached "serve" process, stopping it by signal with a forced-kill
// fallback, and building a status view that still works while the daemon is
// down.
package daemonctl
