// Package engine wraps the external backup engine behind a typed command
// builder and a process runner. Every operation the orchestrator consumes
// (lock handling, backup, forget, prune, check, self-update) is a method on
// Engine so tests can swap the Runner for a fake.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/juju/clock"

	"backupflow/internal/logging"
	"backupflow/internal/services"
)

// Engine issues engine subcommands through a Runner.
type Engine struct {
	runner Runner
	global []string
	clock  clock.Clock
	logger *slog.Logger
}

// New constructs an Engine. global flags are added to every invocation.
func New(runner Runner, global []string, clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Engine{
		runner: runner,
		global: append([]string(nil), global...),
		clock:  clk,
		logger: logging.NewComponentLogger(logger, "engine"),
	}
}

func (e *Engine) command(sub string) *Command {
	return NewCommand(sub).Global(e.global...)
}

func (e *Engine) run(ctx context.Context, cmd *Command, sinks Sinks) error {
	_, err := e.runner.Run(ctx, cmd, sinks)
	return err
}

// ListLocks returns the lock identifiers currently present in the repository.
func (e *Engine) ListLocks(ctx context.Context, sinks Sinks) ([]string, error) {
	var out bytes.Buffer
	stdout := io.Writer(&out)
	if sinks.Stdout != nil {
		stdout = io.MultiWriter(&out, sinks.Stdout)
	}
	cmd := e.command(SubListLocks).Arg("--no-lock")
	if err := e.run(ctx, cmd, Sinks{Stdout: stdout, Stderr: sinks.Stderr}); err != nil {
		return nil, err
	}
	var locks []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			locks = append(locks, id)
		}
	}
	return locks, scanner.Err()
}

// Unlock removes stale locks. removeAll also removes locks the engine does
// not consider stale.
func (e *Engine) Unlock(ctx context.Context, sinks Sinks, removeAll bool) error {
	cmd := e.command(SubUnlock)
	if removeAll {
		cmd.Arg("--remove-all")
	}
	return e.run(ctx, cmd, sinks)
}

// ClearStaleLocks removes any lock left behind by an earlier run and then
// waits grace so the backend settles before further commands. It reports
// whether a lock was found. The run lock guarantees no sibling orchestrator
// is active, so every lock present at this point is stale.
func (e *Engine) ClearStaleLocks(ctx context.Context, sinks Sinks, grace time.Duration) (bool, error) {
	logger := logging.WithContext(ctx, e.logger)
	locks, err := e.ListLocks(ctx, sinks)
	if err != nil {
		return false, err
	}
	if len(locks) == 0 {
		return false, nil
	}
	logging.WarnWithContext(logger, "stale repository lock found; clearing", "stale_lock",
		logging.Int("locks", len(locks)),
		logging.Duration("grace", grace),
		logging.Alert("stale_lock"),
		logging.String(logging.FieldImpact, "previous run was interrupted"),
		logging.String(logging.FieldErrorHint, "none required; lock is removed automatically"),
	)
	if err := e.Unlock(ctx, sinks, true); err != nil {
		return true, err
	}
	if err := services.Sleep(ctx, e.clock, grace); err != nil {
		return true, err
	}
	return true, nil
}

// BackupRequest describes one backup invocation.
type BackupRequest struct {
	Tag          string
	ExcludeFiles []string
	SnapshotFlag string
	Paths        []string
	Extra        []string
}

// Backup runs one backup invocation.
func (e *Engine) Backup(ctx context.Context, sinks Sinks, req BackupRequest) error {
	cmd := e.command(SubBackup).Flag("--tag", req.Tag)
	for _, file := range req.ExcludeFiles {
		cmd.Flag("--exclude-file", file)
	}
	cmd.Arg(req.SnapshotFlag)
	cmd.Arg(req.Paths...)
	cmd.Extra(req.Extra...)
	return e.run(ctx, cmd, sinks)
}

// Forget applies the retention policy.
func (e *Engine) Forget(ctx context.Context, sinks Sinks, args []string) error {
	return e.run(ctx, e.command(SubForget).Arg(args...), sinks)
}

// Prune reclaims unreferenced data.
func (e *Engine) Prune(ctx context.Context, sinks Sinks, args []string) error {
	return e.run(ctx, e.command(SubPrune).Arg(args...), sinks)
}

// Check verifies the repository. args selects fast or deep mode.
func (e *Engine) Check(ctx context.Context, sinks Sinks, args []string) error {
	return e.run(ctx, e.command(SubCheck).Arg(args...), sinks)
}

// SelfUpdate asks the engine to update its own binary.
func (e *Engine) SelfUpdate(ctx context.Context, sinks Sinks) error {
	return e.run(ctx, e.command(SubSelfUpdate), sinks)
}

// ExitRepositoryMissing is restic's exit status for a repository that does
// not exist.
const ExitRepositoryMissing = 10

// RepositoryInitialized reports whether the repository answers `cat config`.
// Only ExitRepositoryMissing means "not initialized"; any other failure
// (wrong password, unreachable backend) is returned as an error so it is
// never recorded as an uninitialized repository.
func (e *Engine) RepositoryInitialized(ctx context.Context, sinks Sinks) (bool, error) {
	res, err := e.runner.Run(ctx, e.command(SubCatConfig).Arg("--no-lock"), Sinks{Stdout: io.Discard, Stderr: sinks.Stderr})
	if err == nil {
		return true, nil
	}
	if res.ExitCode == ExitRepositoryMissing && errors.Is(err, services.ErrEngineFailed) {
		return false, nil
	}
	return false, err
}
