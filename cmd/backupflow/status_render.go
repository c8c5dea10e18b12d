package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"backupflow/internal/history"
	"backupflow/internal/preflight"
	"backupflow/internal/state"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 22
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stateLines renders the persisted orchestration state relative to now.
func stateLines(st state.State, now time.Time, colorize bool) []string {
	lines := []string{
		renderStatusLine("Last backup", okOrError(st.LastBackupSuccessful), successWord(st.LastBackupSuccessful), colorize),
		renderStatusLine("Last maintenance", okOrError(st.LastMaintenanceSuccessful), successWord(st.LastMaintenanceSuccessful), colorize),
		renderStatusLine("Maintained", statusInfo, relativeTime(st.LastMaintenanceAt, now), colorize),
		renderStatusLine("Deep checked", statusInfo, relativeTime(st.LastDeepMaintenanceAt, now), colorize),
		renderStatusLine("Runs since maintenance", statusInfo, fmt.Sprintf("%d", st.MaintenanceCounter), colorize),
	}
	repo := "unknown"
	kind := statusWarn
	if st.RepositoryInitialized != nil {
		repo = yesNo(*st.RepositoryInitialized)
		kind = okOrError(*st.RepositoryInitialized)
	}
	return append(lines, renderStatusLine("Repository initialized", kind, repo, colorize))
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, res := range results {
		kind := statusOK
		if !res.Passed {
			kind = statusError
		} else if strings.Contains(res.Detail, "optional") {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(res.Name, kind, res.Detail, colorize))
	}
	return lines
}

func rateLine(phase string, rate history.Rate, colorize bool) string {
	kind := statusOK
	switch pct := rate.Percent(); {
	case pct < 50:
		kind = statusError
	case pct < 100:
		kind = statusWarn
	}
	msg := fmt.Sprintf("%.0f%% (%d of %d attempts)", rate.Percent(), rate.Succeeded, rate.Total)
	return renderStatusLine(phase+" success rate", kind, msg, colorize)
}

func historyTable(entries []history.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			e.Phase,
			fmt.Sprintf("%d", e.Attempt),
			successWord(e.Success),
			fmt.Sprintf("%d", e.ErrorCount),
			e.Duration.Round(time.Second).String(),
		})
	}
	return renderTable(
		[]string{"Started", "Phase", "Attempt", "Result", "Errors", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight},
	)
}

func okOrError(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

func successWord(ok bool) string {
	if ok {
		return "succeeded"
	}
	return "failed"
}

func relativeTime(ts *time.Time, now time.Time) string {
	if ts == nil {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", ts.Local().Format(time.RFC3339), humanize.RelTime(*ts, now, "ago", "from now"))
}
