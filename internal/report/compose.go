package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Item is one row of the report table: a source for backups, a step for
// maintenance.
type Item struct {
	Name     string
	Status   string
	Duration time.Duration
	Detail   string
}

// Summary describes one attempt for composition.
type Summary struct {
	Prefix      string
	Phase       string
	Attempt     int
	MaxAttempts int
	Success     bool
	Recovered   bool
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Repository  string
	Items       []Item
	Warnings    int
	Errors      int
	// FreeBytes is the free space of a local repository; zero omits the line.
	FreeBytes uint64
	// SuccessRate is the phase success percentage from run history; negative
	// omits the line.
	SuccessRate float64
	ErrorLog    string
}

// Compose renders s into a Report. Failed attempts carry the error log as
// attachment.
func Compose(s Summary) Report {
	severity := SeverityInfo
	outcome := "succeeded"
	switch {
	case !s.Success:
		severity = SeverityError
		outcome = "FAILED"
	case s.Warnings > 0:
		severity = SeverityWarning
		outcome = "succeeded with warnings"
	case s.Recovered:
		outcome = "recovered"
	}

	prefix := strings.TrimSpace(s.Prefix)
	if prefix == "" {
		prefix = "backupflow"
	}
	subject := fmt.Sprintf("[%s] %s %s (attempt %d/%d)", prefix, titlePhase(s.Phase), outcome, s.Attempt, s.MaxAttempts)

	var body strings.Builder
	fmt.Fprintf(&body, "%s attempt %d of %d %s.\n\n", titlePhase(s.Phase), s.Attempt, s.MaxAttempts, outcome)
	fmt.Fprintf(&body, "Run:        %s\n", s.RunID)
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(&body, "Started:    %s\n", s.StartedAt.Format(time.RFC1123))
	}
	fmt.Fprintf(&body, "Duration:   %s\n", humanizeDuration(s.Duration))
	if s.Repository != "" {
		fmt.Fprintf(&body, "Repository: %s\n", s.Repository)
	}
	if s.FreeBytes > 0 {
		fmt.Fprintf(&body, "Free space: %s\n", humanize.IBytes(s.FreeBytes))
	}
	if s.SuccessRate >= 0 {
		fmt.Fprintf(&body, "Success:    %.0f%% of recorded %s attempts\n", s.SuccessRate, s.Phase)
	}
	fmt.Fprintf(&body, "Warnings:   %s\n", humanize.Comma(int64(s.Warnings)))
	fmt.Fprintf(&body, "Errors:     %s\n", humanize.Comma(int64(s.Errors)))

	if len(s.Items) > 0 {
		body.WriteString("\n")
		body.WriteString(itemTable(s.Items))
		body.WriteString("\n")
	}

	r := Report{Subject: subject, Body: body.String(), Severity: severity}
	if !s.Success && s.ErrorLog != "" {
		r.Attachment = s.ErrorLog
	}
	return r
}

func itemTable(items []Item) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleDefault)
	tw.AppendHeader(table.Row{"Item", "Status", "Duration", "Detail"})
	for _, item := range items {
		tw.AppendRow(table.Row{item.Name, item.Status, humanizeDuration(item.Duration), item.Detail})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, WidthMax: 60},
	})
	return tw.Render()
}

func titlePhase(phase string) string {
	if phase == "" {
		return "Run"
	}
	return strings.ToUpper(phase[:1]) + phase[1:]
}

// humanizeDuration renders d rounded to seconds; sub-second values stay
// readable.
func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
