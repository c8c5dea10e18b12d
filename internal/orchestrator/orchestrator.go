// Package orchestrator drives one scheduled invocation end to end.
//
// A run loads the persisted state, then retries the backup phase. Every
// backup attempt re-checks connectivity and clears stale repository locks
// before the sources are processed. After a successful backup the
// maintenance due-ness policy is evaluated; a due maintenance phase is
// retried the same way. After every attempt the state is saved, a history
// row is appended and the report policy decides whether the operator hears
// about it. The run ends with the success or failure hook, log retention
// and the metrics textfile. The process exit status is the number of failed
// attempts across both phases.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"backupflow/internal/backup"
	"backupflow/internal/config"
	"backupflow/internal/connectivity"
	"backupflow/internal/engine"
	"backupflow/internal/history"
	"backupflow/internal/hooks"
	"backupflow/internal/logging"
	"backupflow/internal/logs"
	"backupflow/internal/maintenance"
	"backupflow/internal/metrics"
	"backupflow/internal/report"
	"backupflow/internal/services"
	"backupflow/internal/state"
)

// Phase names.
const (
	PhaseBackup      = "backup"
	PhaseMaintenance = "maintenance"
)

// Repository is the engine surface used outside the phase runners.
type Repository interface {
	ClearStaleLocks(ctx context.Context, sinks engine.Sinks, grace time.Duration) (bool, error)
	RepositoryInitialized(ctx context.Context, sinks engine.Sinks) (bool, error)
}

// Gate decides whether the repository is reachable.
type Gate interface {
	Evaluate(ctx context.Context, locator string, maxAttempts int) connectivity.Verdict
}

// History records attempts.
type History interface {
	Append(ctx context.Context, entry history.Entry) (history.Entry, error)
	SuccessRate(ctx context.Context, phase string) (history.Rate, error)
}

// Hooks runs the end-of-run command.
type Hooks interface {
	Run(ctx context.Context, out hooks.Outcome) error
}

// Dependencies are the collaborators of an Orchestrator. History, Hooks,
// Metrics and Reporter may be nil.
type Dependencies struct {
	Config      *config.Config
	Logger      *slog.Logger
	Clock       clock.Clock
	State       *state.Store
	History     History
	Repository  Repository
	Gate        Gate
	Backup      *backup.Runner
	Maintenance *maintenance.Runner
	Reporter    report.Service
	Hooks       Hooks
	Metrics     *metrics.Exporter
	// FreeSpace returns free bytes for a local repository path.
	FreeSpace func(path string) (uint64, error)
}

// Orchestrator runs invocations.
type Orchestrator struct {
	deps   Dependencies
	cfg    *config.Config
	clock  clock.Clock
	logger *slog.Logger
}

// Summary is the outcome of one invocation.
type Summary struct {
	RunID          string
	Backup         PhaseOutcome
	MaintenanceDue bool
	Maintenance    PhaseOutcome
	FailedAttempts int
	State          state.State
}

// Success reports whether backup and any maintenance that ran succeeded.
func (s Summary) Success() bool {
	return s.Backup.Success && (!s.MaintenanceDue || s.Maintenance.Success)
}

// New validates deps and returns an Orchestrator.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Config == nil || deps.State == nil || deps.Repository == nil || deps.Gate == nil ||
		deps.Backup == nil || deps.Maintenance == nil {
		return nil, fmt.Errorf("orchestrator: missing dependency")
	}
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Reporter == nil {
		deps.Reporter = noopReporter{}
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    deps.Config,
		clock:  deps.Clock,
		logger: logging.NewComponentLogger(deps.Logger, "orchestrator"),
	}, nil
}

// Run executes one invocation. runID defaults to a fresh UUID.
func (o *Orchestrator) Run(ctx context.Context, runID string) Summary {
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)
	started := o.clock.Now()
	summary := Summary{RunID: runID}

	st, err := o.deps.State.Load()
	if err != nil {
		logging.WarnWithContext(logger, "state file unreadable; using defaults", "state_unreadable",
			logging.String("path", o.deps.State.Path()),
			logging.Error(err),
			logging.Alert("state_reset"),
			logging.String(logging.FieldImpact, "maintenance schedule restarts from defaults"),
			logging.String(logging.FieldErrorHint, "the file is rewritten at the end of this run"),
		)
	}
	logger.Info("run starting",
		logging.String("repository", o.cfg.Engine.Repository),
		logging.Int("sources", len(o.cfg.Backup.Sources)),
		logging.Int("maintenance_counter", st.MaintenanceCounter),
	)

	summary.Backup = RunWithRetry(ctx, o.clock, logger, PhaseBackup, o.cfg.Retry.Attempts, o.cfg.RetryCooldown(),
		func(ctx context.Context, n int) Result {
			return o.attempt(ctx, &st, PhaseBackup, n, o.backupAttempt)
		})
	summary.FailedAttempts += summary.Backup.Failed

	if summary.Backup.Success {
		summary.MaintenanceDue = maintenance.IsDue(&st, maintenance.PolicyFromConfig(o.cfg), o.clock.Now())
		logger.Info("maintenance evaluated",
			logging.Bool("due", summary.MaintenanceDue),
			logging.Int("maintenance_counter", st.MaintenanceCounter),
		)
		o.save(logger, st)
	}
	if summary.MaintenanceDue {
		summary.Maintenance = RunWithRetry(ctx, o.clock, logger, PhaseMaintenance, o.cfg.Retry.Attempts, o.cfg.RetryCooldown(),
			func(ctx context.Context, n int) Result {
				return o.attempt(ctx, &st, PhaseMaintenance, n, o.maintenanceAttempt)
			})
		summary.FailedAttempts += summary.Maintenance.Failed
	}

	o.finish(ctx, logger, &summary, st, started)
	return summary
}

type attemptFunc func(ctx context.Context, st *state.State, a *Attempt, logger *slog.Logger) Result

// attempt wraps one phase attempt with its sinks and the per-attempt
// bookkeeping: state save, history row and report.
func (o *Orchestrator) attempt(ctx context.Context, st *state.State, phase string, n int, fn attemptFunc) Result {
	ctx = services.WithAttempt(services.WithPhase(ctx, phase), n)
	base := logging.WithContext(ctx, o.logger)

	a, err := openAttempt(o.cfg.Paths.LogDir, phase, n, o.clock.Now())
	if err != nil {
		logging.ErrorWithContext(base, "attempt sinks unavailable", "attempt_sink_failed", logging.Error(err))
		return Result{ErrorCount: 1, Err: err}
	}
	defer func() {
		if err := a.Close(); err != nil {
			base.Debug("close attempt sinks", logging.Error(err))
		}
	}()
	logger := a.Logger(base)
	logger.Info("attempt starting", logging.Int("max_attempts", o.cfg.Retry.Attempts))

	previousOK := st.LastBackupSuccessful
	if phase == PhaseMaintenance {
		previousOK = st.LastMaintenanceSuccessful
	}

	res := fn(ctx, st, a, logger)
	duration := o.clock.Now().Sub(a.StartedAt)
	if phase == PhaseMaintenance {
		st.LastMaintenanceSuccessful = res.Success
	} else {
		st.LastBackupSuccessful = res.Success
	}
	if res.Success {
		logger.Info("attempt succeeded", logging.Duration("duration", duration), logging.Int("warnings", res.Warnings))
	} else {
		logging.ErrorWithContext(logger, "attempt failed", "attempt_failed",
			logging.Int("errors", res.ErrorCount),
			logging.Duration("duration", duration),
			logging.String(logging.FieldErrorHint, "see "+a.ErrPath),
		)
	}
	o.save(logger, *st)

	rate := o.record(ctx, logger, history.Entry{
		RunID:      runIDFrom(ctx),
		Phase:      phase,
		Attempt:    n,
		StartedAt:  a.StartedAt,
		Duration:   duration,
		Success:    res.Success,
		ErrorCount: res.ErrorCount,
		Summary:    historySummary(res),
	})

	if o.shouldReport(res, previousOK) {
		r := report.Compose(report.Summary{
			Prefix:      o.cfg.Notifications.SubjectPrefix,
			Phase:       phase,
			Attempt:     n,
			MaxAttempts: o.cfg.Retry.Attempts,
			Success:     res.Success,
			Recovered:   res.Success && !previousOK,
			RunID:       runIDFrom(ctx),
			StartedAt:   a.StartedAt,
			Duration:    duration,
			Repository:  o.cfg.Engine.Repository,
			Items:       res.Items,
			Warnings:    res.Warnings,
			Errors:      res.ErrorCount,
			FreeBytes:   o.freeBytes(),
			SuccessRate: rate,
			ErrorLog:    a.ErrPath,
		})
		// The sinks are flushed so the attachment is complete.
		_ = a.logFile.Sync()
		_ = a.errFile.Sync()
		if err := o.deps.Reporter.Send(ctx, r); err != nil {
			base.Debug("report not delivered", logging.Error(err))
		}
	}
	return res
}

// shouldReport sends every failure, and successes only when enabled or
// when the previous attempt of the phase failed.
func (o *Orchestrator) shouldReport(res Result, previousOK bool) bool {
	if !res.Success || res.ErrorCount > 0 {
		return true
	}
	return o.cfg.Notifications.SendOnSuccess || !previousOK
}

func (o *Orchestrator) backupAttempt(ctx context.Context, st *state.State, a *Attempt, logger *slog.Logger) Result {
	verdict := o.deps.Gate.Evaluate(ctx, o.cfg.Engine.Repository, o.cfg.Connectivity.Attempts)
	if !verdict.OK {
		err := services.Wrap(services.ErrConnectivity, PhaseBackup, "connectivity gate", string(verdict.Reason), nil)
		logging.ErrorWithContext(logger, "repository unreachable; attempt abandoned", "connectivity_unavailable",
			logging.String("reason", string(verdict.Reason)),
			logging.String("host", verdict.Host),
			logging.Int("checks", verdict.Attempts),
			logging.String(logging.FieldErrorHint, connectivityHint(verdict.Reason)),
		)
		return Result{ErrorCount: 1, Err: err, Items: []report.Item{{
			Name: "connectivity", Status: "blocked", Detail: string(verdict.Reason),
		}}}
	}

	if ok, res := o.prepareRepository(ctx, st, a, logger); !ok {
		return res
	}

	out := o.deps.Backup.Run(ctx, o.cfg.Backup.Sources, a.Sinks(), logger)
	res := Result{Success: out.Success, ErrorCount: out.Errors, Warnings: out.Warnings, Err: out.Err()}
	for _, src := range out.Sources {
		item := report.Item{Name: src.Identifier, Status: "ok", Duration: src.Duration, Detail: src.Root.Path}
		switch {
		case src.Err != nil:
			item.Status = "failed"
			item.Detail = src.Err.Error()
		case src.Skipped:
			item.Status = "skipped"
			item.Detail = strings.Join(src.Warnings, "; ")
		case len(src.Warnings) > 0:
			item.Status = "warning"
			item.Detail = strings.Join(src.Warnings, "; ")
		}
		res.Items = append(res.Items, item)
	}
	return res
}

// prepareRepository clears stale locks and confirms the repository exists.
func (o *Orchestrator) prepareRepository(ctx context.Context, st *state.State, a *Attempt, logger *slog.Logger) (bool, Result) {
	if _, err := o.deps.Repository.ClearStaleLocks(ctx, a.Sinks(), o.cfg.LockGrace()); err != nil {
		logging.WarnWithContext(logger, "stale lock check failed", "stale_lock_check_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "engine may refuse to run while a lock remains"),
		)
	}
	if st.RepositoryInitialized != nil && *st.RepositoryInitialized {
		return true, Result{}
	}
	initialized, err := o.deps.Repository.RepositoryInitialized(ctx, a.Sinks())
	if err != nil {
		logging.ErrorWithContext(logger, "repository not accessible", "repository_unavailable",
			logging.String("repository", o.cfg.Engine.Repository),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the repository password and backend credentials in the secrets file"),
		)
		return false, Result{ErrorCount: 1, Err: err, Items: []report.Item{{
			Name: "repository", Status: "failed", Detail: err.Error(),
		}}}
	}
	st.RepositoryInitialized = &initialized
	if !initialized {
		err := services.Wrap(services.ErrEngineFailed, PhaseBackup, "open repository", "repository not initialized", nil)
		logging.ErrorWithContext(logger, "repository not initialized", "repository_uninitialized",
			logging.String("repository", o.cfg.Engine.Repository),
			logging.String(logging.FieldErrorHint, "initialize it with `"+o.cfg.EngineBinary()+" init`"),
		)
		return false, Result{ErrorCount: 1, Err: err, Items: []report.Item{{
			Name: "repository", Status: "failed", Detail: "not initialized",
		}}}
	}
	return true, Result{}
}

func (o *Orchestrator) maintenanceAttempt(ctx context.Context, st *state.State, a *Attempt, logger *slog.Logger) Result {
	if _, err := o.deps.Repository.ClearStaleLocks(ctx, a.Sinks(), o.cfg.LockGrace()); err != nil {
		logging.WarnWithContext(logger, "stale lock check failed", "stale_lock_check_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "engine may refuse to run while a lock remains"),
		)
	}
	out := o.deps.Maintenance.Run(ctx, st, a.Sinks(), logger)
	res := Result{Success: out.Success, ErrorCount: out.Errors(), Err: out.Err()}
	for _, step := range out.Steps {
		item := report.Item{Name: step.Name, Status: "ok", Duration: step.Duration}
		if step.Name == maintenance.StepCheck && out.Deep {
			item.Detail = "deep"
		}
		if step.Err != nil {
			item.Status = "failed"
			item.Detail = step.Err.Error()
		}
		res.Items = append(res.Items, item)
	}
	return res
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, summary *Summary, st state.State, started time.Time) {
	if o.deps.Hooks != nil {
		err := o.deps.Hooks.Run(ctx, hooks.Outcome{
			RunID:          summary.RunID,
			Success:        summary.Success(),
			FailedAttempts: summary.FailedAttempts,
			BackupOK:       summary.Backup.Success,
			MaintenanceRan: summary.MaintenanceDue,
			MaintenanceOK:  summary.Maintenance.Success,
		})
		if err != nil {
			logging.WarnWithContext(logger, "hook failed", "hook_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run outcome unchanged"),
			)
		}
	}

	o.save(logger, st)
	summary.State = st

	removed := logging.CleanupOldLogs(logger, o.cfg.Logging.RetentionDays, o.clock.Now(),
		logging.RetentionTarget{Dir: o.cfg.Paths.LogDir, Pattern: "*" + logs.LogSuffix},
		logging.RetentionTarget{Dir: o.cfg.Paths.LogDir, Pattern: "*" + logs.ErrSuffix},
	)

	if o.deps.Metrics != nil {
		o.deps.Metrics.Observe(metrics.Snapshot{
			FinishedAt:      o.clock.Now(),
			Duration:        o.clock.Now().Sub(started),
			BackupOK:        summary.Backup.Success,
			MaintenanceRan:  summary.MaintenanceDue,
			MaintenanceOK:   summary.Maintenance.Success,
			BackupAttempts:  summary.Backup.Attempts,
			MaintAttempts:   summary.Maintenance.Attempts,
			FailedAttempts:  summary.FailedAttempts,
			Counter:         st.MaintenanceCounter,
			LastMaintenance: st.LastMaintenanceAt,
			LastDeepCheck:   st.LastDeepMaintenanceAt,
		})
		if err := o.deps.Metrics.WriteTextfile(o.cfg.Metrics.TextfilePath); err != nil {
			logging.WarnWithContext(logger, "metrics textfile not written", "metrics_failed",
				logging.String("path", o.cfg.Metrics.TextfilePath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "monitoring shows the previous run"),
			)
		}
	}

	logger.Info("run finished",
		logging.Bool("success", summary.Success()),
		logging.Int("failed_attempts", summary.FailedAttempts),
		logging.Bool("maintenance_ran", summary.MaintenanceDue),
		logging.Int("logs_removed", removed),
		logging.Duration("duration", o.clock.Now().Sub(started)),
	)
}

func (o *Orchestrator) save(logger *slog.Logger, st state.State) {
	if err := o.deps.State.Save(st); err != nil {
		logging.ErrorWithContext(logger, "state not saved", "state_save_failed",
			logging.String("path", o.deps.State.Path()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
		)
	}
}

// record appends entry and returns the phase success percentage, or -1
// when history is unavailable.
func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, entry history.Entry) float64 {
	if o.deps.History == nil {
		return -1
	}
	if _, err := o.deps.History.Append(ctx, entry); err != nil {
		logging.WarnWithContext(logger, "history not recorded", "history_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "success rate excludes this attempt"),
		)
		return -1
	}
	rate, err := o.deps.History.SuccessRate(ctx, entry.Phase)
	if err != nil {
		return -1
	}
	logger.Info("success rate updated",
		logging.Int("recorded", rate.Total),
		logging.Int("succeeded", rate.Succeeded),
		logging.String("percent", fmt.Sprintf("%.1f", rate.Percent())),
	)
	return rate.Percent()
}

func (o *Orchestrator) freeBytes() uint64 {
	if o.deps.FreeSpace == nil || !o.cfg.RepositoryIsLocal() {
		return 0
	}
	free, err := o.deps.FreeSpace(o.cfg.Engine.Repository)
	if err != nil {
		return 0
	}
	return free
}

func historySummary(res Result) string {
	if res.Err != nil {
		msg := res.Err.Error()
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return msg
	}
	return fmt.Sprintf("%d items, %d warnings", len(res.Items), res.Warnings)
}

func connectivityHint(reason connectivity.Reason) string {
	switch reason {
	case connectivity.ReasonMetered:
		return "connect to an unmetered network or set connectivity.avoid_metered = false"
	case connectivity.ReasonNoHost:
		return "check engine.repository; the locator has no probeable host"
	case connectivity.ReasonNoRoute:
		return "no default route; check the network connection"
	default:
		return "the repository host did not answer; the next attempt retries"
	}
}

func runIDFrom(ctx context.Context) string {
	id, _ := services.RunIDFromContext(ctx)
	return id
}

type noopReporter struct{}

func (noopReporter) Send(context.Context, report.Report) error { return nil }
