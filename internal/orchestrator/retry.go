package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"backupflow/internal/logging"
	"backupflow/internal/report"
	"backupflow/internal/services"
)

// Result is the aggregate outcome of one attempt.
type Result struct {
	Success    bool
	ErrorCount int
	Warnings   int
	Items      []report.Item
	Err        error
}

// PhaseFunc runs attempt number n (1-based) of a phase.
type PhaseFunc func(ctx context.Context, n int) Result

// PhaseOutcome summarizes every attempt of a phase.
type PhaseOutcome struct {
	Success  bool
	Attempts int
	Failed   int
	Last     Result
}

var errAttemptFailed = errors.New("attempt failed")

// RunWithRetry calls fn until it succeeds or maxAttempts are used, sleeping
// cooldown between a failure and the next attempt. Cancellation stops the
// loop before the next attempt; a phase cancelled before its first attempt
// counts as one failed attempt.
func RunWithRetry(ctx context.Context, clk clock.Clock, logger *slog.Logger, phase string, maxAttempts int, cooldown time.Duration, fn PhaseFunc) PhaseOutcome {
	logger = logging.WithContext(services.WithPhase(ctx, phase), logger)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if clk == nil {
		clk = clock.WallClock
	}
	// retry.Call rejects a zero Delay.
	delay := cooldown
	if delay <= 0 {
		delay = time.Nanosecond
	}

	var out PhaseOutcome
	if err := ctx.Err(); err != nil {
		out.Failed = 1
		out.Last = Result{ErrorCount: 1, Err: err}
		logging.WarnWithContext(logger, "phase cancelled before its first attempt", "phase_cancelled",
			logging.Error(err),
			logging.String(logging.FieldImpact, "phase counted as one failed attempt"),
		)
		return out
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out.Attempts++
			out.Last = fn(ctx, out.Attempts)
			if out.Last.Success {
				return nil
			}
			out.Failed++
			return errAttemptFailed
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errAttemptFailed)
		},
		NotifyFunc: func(_ error, attempt int) {
			if attempt >= maxAttempts {
				return
			}
			logger.Info("attempt failed; cooling down",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Int("max_attempts", maxAttempts),
				logging.Duration("cooldown", cooldown),
			)
		},
		Attempts: maxAttempts,
		Delay:    delay,
		Clock:    clk,
		Stop:     ctx.Done(),
	})
	switch {
	case err == nil:
		out.Success = true
	case retry.IsAttemptsExceeded(err):
		logging.ErrorWithContext(logger, "phase failed; attempts exhausted", "phase_exhausted",
			logging.Int("attempts", out.Attempts),
			logging.String(logging.FieldErrorHint, "see the attached error logs; the next scheduled run retries"),
		)
	default:
		logging.WarnWithContext(logger, "retry cooldown interrupted", "retry_cancelled",
			logging.Error(err),
			logging.Int("attempts", out.Attempts),
			logging.String(logging.FieldImpact, "remaining attempts skipped"),
		)
	}
	return out
}
