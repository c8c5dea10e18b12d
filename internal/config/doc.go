// Package config loads, normalizes, and validates backupflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BACKUPFLOW_REPOSITORY and RESTIC_REPOSITORY. Engine credentials live in a
// separate dotenv-style secrets file that is read on demand and never echoed
// by `config show`.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
