package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"time"

	"backupflow/internal/logging"
	"backupflow/internal/services"
)

// Sinks receive the engine's output streams for one attempt.
type Sinks struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Result describes a finished invocation.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Runner executes engine commands.
type Runner interface {
	Run(ctx context.Context, cmd *Command, sinks Sinks) (Result, error)
}

// ExecRunner runs the engine binary directly with an argument vector.
type ExecRunner struct {
	Binary string
	Env    []string
	Logger *slog.Logger
}

// Run executes cmd. A non-zero exit returns an error marked
// services.ErrEngineFailed; a missing binary is marked
// services.ErrEngineNotFound.
func (r *ExecRunner) Run(ctx context.Context, cmd *Command, sinks Sinks) (Result, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(r.Logger, "engine"))
	argv := cmd.Argv()
	proc := exec.CommandContext(ctx, r.Binary, argv...)
	if len(r.Env) > 0 {
		proc.Env = r.Env
	}
	proc.Stdout = orDiscard(sinks.Stdout)
	proc.Stderr = orDiscard(sinks.Stderr)

	logger.Debug("engine command starting",
		logging.String("argv", cmd.String()),
		logging.String(logging.FieldEventType, "engine_start"),
	)
	start := time.Now()
	err := proc.Run()
	result := Result{Duration: time.Since(start)}
	if err == nil {
		logger.Debug("engine command finished",
			logging.String("subcommand", cmd.Subcommand()),
			logging.Duration("duration", result.Duration),
			logging.String(logging.FieldEventType, "engine_finish"),
		)
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, services.Wrap(services.ErrEngineFailed, "", cmd.Subcommand(),
			fmt.Sprintf("exit status %d", result.ExitCode), nil)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return result, services.Wrap(services.ErrEngineNotFound, "", cmd.Subcommand(), r.Binary, err)
	}
	result.ExitCode = -1
	return result, services.Wrap(services.ErrEngineFailed, "", cmd.Subcommand(), "run", err)
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
