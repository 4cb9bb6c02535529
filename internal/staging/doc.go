// Package staging reclaims disk space under the daemon's data directory.
//
// Job working directories and staged uploads normally disappear with the job
// that owns them. A crash between creating one and recording it on the job
// leaves it behind; Sweep removes such entries once nothing references them.
package staging
