// Package services defines shared utilities consumed by the orchestration
// phases and their external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, phase names, attempt numbers, and
//     source identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the orchestration taxonomy (ignorable, per-source fatal, attempt
//     failure, process abort).
//
// Use these helpers when wiring new phase logic so error classification and
// observability stay uniform across backup and maintenance.
package services
