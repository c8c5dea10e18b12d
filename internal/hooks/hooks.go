// Package hooks runs the operator's success or failure command once per
// invocation.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"backupflow/internal/config"
	"backupflow/internal/logging"
)

// Outcome is handed to the hook through its environment.
type Outcome struct {
	RunID          string
	Success        bool
	FailedAttempts int
	BackupOK       bool
	MaintenanceRan bool
	MaintenanceOK  bool
}

// Runner executes hooks. Commands are shell-split and executed directly.
type Runner struct {
	onSuccess string
	onFailure string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRunner builds a Runner from cfg.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	return &Runner{
		onSuccess: strings.TrimSpace(cfg.Hooks.OnSuccess),
		onFailure: strings.TrimSpace(cfg.Hooks.OnFailure),
		timeout:   cfg.HookTimeout(),
		logger:    logging.NewComponentLogger(logger, "hooks"),
	}
}

// Run executes the hook matching out. An unset hook is a no-op. The hook's
// combined output is logged at debug level.
func (r *Runner) Run(ctx context.Context, out Outcome) error {
	raw := r.onFailure
	kind := "on_failure"
	if out.Success {
		raw = r.onSuccess
		kind = "on_success"
	}
	if raw == "" {
		return nil
	}
	logger := logging.WithContext(ctx, r.logger).With(logging.String("hook", kind))

	argv, err := shellquote.Split(raw)
	if err != nil {
		return fmt.Errorf("parse %s hook: %w", kind, err)
	}
	if len(argv) == 0 {
		return nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), environment(out)...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	logger.Info("running hook", logging.String("command", shellquote.Join(argv...)))
	err = cmd.Run()
	if text := strings.TrimSpace(output.String()); text != "" {
		logger.Debug("hook output", logging.String("output", text))
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s hook timed out after %s", kind, r.timeout)
		}
		return fmt.Errorf("%s hook: %w", kind, err)
	}
	return nil
}

func environment(out Outcome) []string {
	result := "failure"
	if out.Success {
		result = "success"
	}
	return []string{
		"BACKUPFLOW_RESULT=" + result,
		"BACKUPFLOW_RUN_ID=" + out.RunID,
		"BACKUPFLOW_FAILED_ATTEMPTS=" + strconv.Itoa(out.FailedAttempts),
		"BACKUPFLOW_BACKUP_OK=" + strconv.FormatBool(out.BackupOK),
		"BACKUPFLOW_MAINTENANCE_RAN=" + strconv.FormatBool(out.MaintenanceRan),
		"BACKUPFLOW_MAINTENANCE_OK=" + strconv.FormatBool(out.MaintenanceOK),
	}
}
