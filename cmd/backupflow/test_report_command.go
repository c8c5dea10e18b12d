package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"backupflow/internal/report"
)

func newTestReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-report",
		Short: "Send a test report through every configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger, closer := ctx.logger(cmd.ErrOrStderr())
			defer closer.Close()

			host, _ := os.Hostname()
			prefix := cfg.Notifications.SubjectPrefix
			if prefix == "" {
				prefix = "backupflow"
			}
			r := report.Report{
				Subject:  fmt.Sprintf("[%s] Test report", prefix),
				Body:     fmt.Sprintf("Test report from %s at %s.\nRepository: %s\n", host, time.Now().Format(time.RFC3339), cfg.Engine.Repository),
				Severity: report.SeverityInfo,
			}
			if err := report.NewService(cfg, logger).Send(cmd.Context(), r); err != nil {
				return fmt.Errorf("send test report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test report sent")
			return nil
		},
	}
}
