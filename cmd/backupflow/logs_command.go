package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"backupflow/internal/config"
	"backupflow/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		phase   string
		errs    bool
		mainLog bool
		lines   int
		follow  bool
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the newest attempt log, its error sink, or the main log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()

			if list {
				files, err := logs.ListAttempts(cfg.Paths.LogDir)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(files))
				for _, f := range files {
					kind := "log"
					if f.Errors {
						kind = "err"
					}
					rows = append(rows, []string{f.StartedAt.Format("2006-01-02 15:04:05"), f.Phase, fmt.Sprintf("%d", f.Attempt), kind, filepath.Base(f.Path)})
				}
				fmt.Fprintln(out, renderTable([]string{"Started", "Phase", "Attempt", "Sink", "File"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			}

			path := filepath.Join(cfg.Paths.LogDir, config.MainLogFileName())
			if !mainLog {
				f, ok, err := logs.Latest(cfg.Paths.LogDir, phase, errs)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no attempt logs in %s", cfg.Paths.LogDir)
				}
				path = f.Path
			}

			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			followCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return logs.Follow(followCtx, path, offset, out, clock.WallClock, 0)
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "Restrict to a phase (backup or maintenance)")
	cmd.Flags().BoolVar(&errs, "errors", false, "Show the error sink instead of the log sink")
	cmd.Flags().BoolVar(&mainLog, "main", false, "Show the main backupflow.log instead of an attempt file")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are appended")
	cmd.Flags().BoolVar(&list, "list", false, "List attempt files instead of printing one")
	return cmd
}
