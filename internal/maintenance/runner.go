// Package maintenance decides when repository upkeep is due and runs it.
//
// An upkeep attempt is forget, prune, check and self-update in that order.
// Every step runs even when an earlier one failed; any failure fails the
// attempt. The deep-check timestamp moves the moment deep mode is chosen so
// an interrupted full read is not retried on every following run.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"backupflow/internal/config"
	"backupflow/internal/engine"
	"backupflow/internal/logging"
	"backupflow/internal/services"
	"backupflow/internal/state"
)

// Step names, also used in reports.
const (
	StepForget     = "forget"
	StepPrune      = "prune"
	StepCheck      = "check"
	StepSelfUpdate = "self-update"
)

// Engine is the subset of the engine used by maintenance.
type Engine interface {
	Forget(ctx context.Context, sinks engine.Sinks, args []string) error
	Prune(ctx context.Context, sinks engine.Sinks, args []string) error
	Check(ctx context.Context, sinks engine.Sinks, args []string) error
	SelfUpdate(ctx context.Context, sinks engine.Sinks) error
}

// Options are the shell-split step arguments.
type Options struct {
	Policy        Policy
	ForgetArgs    []string
	PruneArgs     []string
	CheckArgs     []string
	DeepCheckArgs []string
	SelfUpdate    bool
}

// OptionsFromConfig splits the configured argument strings.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	m := cfg.Maintenance
	opts := Options{Policy: PolicyFromConfig(cfg), SelfUpdate: m.SelfUpdate}
	for _, field := range []struct {
		name string
		raw  string
		dst  *[]string
	}{
		{"forget_args", m.ForgetArgs, &opts.ForgetArgs},
		{"prune_args", m.PruneArgs, &opts.PruneArgs},
		{"check_args", m.CheckArgs, &opts.CheckArgs},
		{"deep_check_args", m.DeepCheckArgs, &opts.DeepCheckArgs},
	} {
		args, err := engine.SplitArgs(field.raw)
		if err != nil {
			return Options{}, services.Wrap(services.ErrConfiguration, "maintenance", "parse "+field.name, field.raw, err)
		}
		*field.dst = args
	}
	return opts, nil
}

// StepOutcome records one step.
type StepOutcome struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Result aggregates one maintenance attempt.
type Result struct {
	Success bool
	Deep    bool
	Steps   []StepOutcome
}

// Errors counts failed steps.
func (r Result) Errors() int {
	n := 0
	for _, step := range r.Steps {
		if step.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the step failures.
func (r Result) Err() error {
	var errs []error
	for _, step := range r.Steps {
		if step.Err != nil {
			errs = append(errs, step.Err)
		}
	}
	return errors.Join(errs...)
}

// Runner executes maintenance attempts.
type Runner struct {
	engine  Engine
	options Options
	clock   clock.Clock
}

// NewRunner constructs a Runner.
func NewRunner(eng Engine, options Options, clk clock.Clock) *Runner {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Runner{engine: eng, options: options, clock: clk}
}

// Run performs one attempt and updates st in place.
func (r *Runner) Run(ctx context.Context, st *state.State, sinks engine.Sinks, logger *slog.Logger) Result {
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "maintenance"))
	result := Result{Success: true}

	step := func(name string, fn func() error) {
		start := r.clock.Now()
		logger.Info("maintenance step starting", logging.String("step", name))
		err := fn()
		outcome := StepOutcome{Name: name, Err: err, Duration: r.clock.Now().Sub(start)}
		result.Steps = append(result.Steps, outcome)
		if err != nil {
			result.Success = false
			logging.ErrorWithContext(logger, "maintenance step failed", "maintenance_step_failed",
				logging.String("step", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the attempt error log for engine output"),
			)
			return
		}
		logger.Info("maintenance step finished",
			logging.String("step", name),
			logging.Duration("duration", outcome.Duration),
		)
	}

	step(StepForget, func() error { return r.engine.Forget(ctx, sinks, r.options.ForgetArgs) })
	step(StepPrune, func() error { return r.engine.Prune(ctx, sinks, r.options.PruneArgs) })

	now := r.clock.Now()
	args := r.options.CheckArgs
	if deepDue(st, r.options.Policy, now) {
		result.Deep = true
		stamp := now
		st.LastDeepMaintenanceAt = &stamp
		args = append(append([]string(nil), args...), r.options.DeepCheckArgs...)
		logger.Info("deep check selected", logging.Int("interval_days", r.options.Policy.DeepCheckDays))
	}
	step(StepCheck, func() error { return r.engine.Check(ctx, sinks, args) })

	if r.options.SelfUpdate {
		step(StepSelfUpdate, func() error { return r.engine.SelfUpdate(ctx, sinks) })
	}

	if result.Success {
		stamp := r.clock.Now()
		st.LastMaintenanceAt = &stamp
		st.MaintenanceCounter = 0
	}
	return result
}
