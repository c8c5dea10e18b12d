// Package preflight provides readiness checks for the paths and binaries
// backupflow depends on.
//
// These checks run in two contexts:
//   - The run command calls Startup before any phase. A missing log
//     directory or engine binary aborts the invocation.
//   - The CLI "backupflow status" command uses RunAll to display the
//     same checks plus optional helpers (lsblk, nmcli, sendmail).
package preflight
