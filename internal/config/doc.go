// Package config loads, normalizes, and validates transcriber configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TRANSCRIBER_LLM_API_KEY. The Config type centralizes every knob the daemon
// and CLI need: where the job database and artifacts live, which recognition
// model is used by default, how many jobs may run their heavy stages at once,
// and how the optional reformatting service is reached.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
