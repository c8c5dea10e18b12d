package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"backupflow/internal/logging"
	"backupflow/internal/orchestrator"
	"backupflow/internal/preflight"
	"backupflow/internal/services"
)

var errAlreadyRunning = errors.New("another backupflow run is in progress")

func newRunCommand(ctx *commandContext) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backup and, when due, repository maintenance",
		Long: "Runs the backup phase with retries, then maintenance when the schedule says it is due.\n" +
			"The exit status is the number of failed attempts across both phases; 255 means a startup check failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if err := preflight.Startup(cfg); err != nil {
				return &exitError{code: fatalExitCode, err: err}
			}

			logger, closer := ctx.logger(cmd.ErrOrStderr())
			defer closer.Close()
			logger = logging.NewComponentLogger(logger, "cli")

			lock := flock.New(cfg.Paths.LockFile)
			locked, err := lock.TryLock()
			if err != nil {
				return &exitError{code: fatalExitCode, err: fmt.Errorf("acquire run lock %s: %w", cfg.Paths.LockFile, err)}
			}
			if !locked {
				return &exitError{code: fatalExitCode, err: fmt.Errorf("%w (lock %s)", errAlreadyRunning, cfg.Paths.LockFile)}
			}
			defer func() {
				_ = lock.Unlock()
			}()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, release, err := orchestrator.NewFromConfig(cfg, logger, nil)
			if err != nil {
				if services.IsFatal(err) {
					return &exitError{code: fatalExitCode, err: err}
				}
				return err
			}
			defer release.Close()

			if runID == "" {
				runID = uuid.NewString()
			}
			summary := orch.Run(runCtx, runID)
			if errors.Is(runCtx.Err(), context.Canceled) {
				logger.Warn("run interrupted", logging.String("run_id", summary.RunID))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s: backup %s, maintenance %s, failed attempts %d\n",
				summary.RunID, phaseWord(summary.Backup), maintenanceWord(summary), summary.FailedAttempts)
			if summary.FailedAttempts > 0 {
				return &exitError{code: min(summary.FailedAttempts, fatalExitCode-1)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Identifier recorded in logs, reports and history (default: random UUID)")
	return cmd
}

func phaseWord(outcome orchestrator.PhaseOutcome) string {
	if outcome.Success {
		return "ok"
	}
	return "failed"
}

func maintenanceWord(summary orchestrator.Summary) string {
	if !summary.MaintenanceDue {
		return "skipped"
	}
	return phaseWord(summary.Maintenance)
}
