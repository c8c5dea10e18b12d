// Package logging builds the slog loggers used across backupflow.
//
// Console output renders a compact header (time, level, component, run
// subject) followed by bulleted detail fields; JSON output is intended for
// journald or log shippers. Attempt sinks created by the orchestrator are
// tee'd onto the base logger so one record reaches the terminal, the main
// log file, and the per-attempt log files. Retention cleanup for old
// attempt logs also lives here.
package logging
