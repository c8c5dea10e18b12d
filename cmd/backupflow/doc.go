// Package main hosts the backupflow CLI entrypoint and command graph.
//
// `backupflow run` performs one scheduled invocation: backup, then maintenance
// when due, with retries, reports and hooks. Its exit status is the number of
// failed attempts across both phases, or 255 when startup checks fail. The
// remaining commands inspect state, probe connectivity, clear engine locks and
// scaffold configuration. Heavy lifting lives in the internal packages; this
// package only wires flags, configuration and terminal output.
package main
