// Package logs names, finds and tails the per-attempt log files a run leaves
// in the log directory.
//
// Every attempt writes `<timestamp>_<phase>_<n>.log.txt` for engine output
// and informational records, and a sibling `.err.txt` for engine stderr and
// warnings. The orchestrator creates them through AttemptBase; the CLI lists
// them with ListAttempts and prints them with Last and Follow. Reads use
// bounded memory regardless of file size.
package logs
