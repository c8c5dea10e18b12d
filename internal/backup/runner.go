// Package backup runs one backup attempt across every configured source.
//
// Sources are processed strictly in configured order. A source that cannot
// be resolved or whose engine invocation fails is recorded and the runner
// moves on; only the aggregate outcome decides whether the attempt failed.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"backupflow/internal/config"
	"backupflow/internal/engine"
	"backupflow/internal/logging"
	"backupflow/internal/services"
	"backupflow/internal/volume"
)

// Engine is the subset of the engine the runner needs.
type Engine interface {
	Backup(ctx context.Context, sinks engine.Sinks, req engine.BackupRequest) error
}

// Resolver maps a configured source to a root.
type Resolver interface {
	Resolve(ctx context.Context, source config.Source) (volume.Root, error)
}

// Options holds the per-invocation engine arguments shared by all sources.
type Options struct {
	IgnoreMissing bool
	ExcludeFiles  []string
	SnapshotFlag  string
	ExtraArgs     []string
}

// OptionsFromConfig builds Options, shell-splitting backup.extra_args.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	extra, err := engine.SplitArgs(cfg.Backup.ExtraArgs)
	if err != nil {
		return Options{}, services.Wrap(services.ErrConfiguration, "backup", "parse extra_args", cfg.Backup.ExtraArgs, err)
	}
	var excludes []string
	for _, path := range []string{cfg.Backup.ExcludeFile, cfg.Backup.LocalExcludeFile} {
		if path != "" {
			excludes = append(excludes, path)
		}
	}
	return Options{
		IgnoreMissing: cfg.Backup.IgnoreMissing,
		ExcludeFiles:  excludes,
		SnapshotFlag:  cfg.Engine.SnapshotFlag,
		ExtraArgs:     extra,
	}, nil
}

// SourceOutcome is the result for one source.
type SourceOutcome struct {
	Identifier string
	Root       volume.Root
	Skipped    bool
	Warnings   []string
	Err        error
	Duration   time.Duration
}

// Result aggregates one attempt.
type Result struct {
	Success  bool
	Sources  []SourceOutcome
	Warnings int
	Errors   int
}

// Err joins the per-source failures.
func (r Result) Err() error {
	var errs []error
	for _, src := range r.Sources {
		if src.Err != nil {
			errs = append(errs, src.Err)
		}
	}
	return errors.Join(errs...)
}

// Runner executes backup attempts.
type Runner struct {
	engine   Engine
	resolver Resolver
	options  Options
	now      func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(eng Engine, resolver Resolver, options Options) *Runner {
	return &Runner{engine: eng, resolver: resolver, options: options, now: time.Now}
}

// Run backs up each source once. logger should already carry the attempt
// context; warnings and errors it receives end up in the attempt error sink.
func (r *Runner) Run(ctx context.Context, sources []config.Source, sinks engine.Sinks, logger *slog.Logger) Result {
	logger = logging.NewComponentLogger(logger, "backup")
	result := Result{Success: true}
	for _, source := range sources {
		if ctx.Err() != nil {
			result.Success = false
			result.Errors++
			result.Sources = append(result.Sources, SourceOutcome{Identifier: source.Identifier, Err: ctx.Err()})
			continue
		}
		start := r.now()
		outcome := r.runSource(services.WithSource(ctx, source.Identifier), source, sinks, logger)
		outcome.Duration = r.now().Sub(start)
		result.Warnings += len(outcome.Warnings)
		if outcome.Err != nil {
			result.Success = false
			result.Errors++
		}
		result.Sources = append(result.Sources, outcome)
	}
	return result
}

func (r *Runner) runSource(ctx context.Context, source config.Source, sinks engine.Sinks, logger *slog.Logger) SourceOutcome {
	logger = logging.WithContext(ctx, logger)
	outcome := SourceOutcome{Identifier: source.Identifier}

	root, err := r.resolver.Resolve(ctx, source)
	outcome.Root = root
	if err != nil {
		if services.IsIgnorable(err, r.options.IgnoreMissing) {
			outcome.Skipped = true
			outcome.Warnings = append(outcome.Warnings, err.Error())
			logging.WarnWithContext(logger, "source missing; skipped", "source_missing",
				logging.Error(err),
				logging.String(logging.FieldImpact, "source not included in this backup"),
				logging.String(logging.FieldErrorHint, "attach the media or remove the source from backup.sources"),
			)
			return outcome
		}
		outcome.Err = err
		logging.ErrorWithContext(logger, "source resolution failed", "source_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, resolutionHint(err)),
		)
		return outcome
	}

	for _, missing := range root.Missing {
		msg := fmt.Sprintf("sub-path %s does not exist", missing)
		if !r.options.IgnoreMissing {
			outcome.Err = services.Wrap(services.ErrMissingSource, "backup", "expand sub-paths", msg, nil)
			logging.ErrorWithContext(logger, "sub-path missing", "subpath_missing",
				logging.String("path", missing),
				logging.String(logging.FieldErrorHint, "create the directory or enable backup.ignore_missing"),
			)
			return outcome
		}
		outcome.Warnings = append(outcome.Warnings, msg)
		logging.WarnWithContext(logger, "sub-path missing; skipped", "subpath_missing",
			logging.String("path", missing),
			logging.String(logging.FieldImpact, "sub-path not included in this backup"),
		)
	}

	req := engine.BackupRequest{
		Tag:          source.Identifier,
		ExcludeFiles: existingFiles(r.options.ExcludeFiles),
		Paths:        root.Includes,
		Extra:        r.options.ExtraArgs,
	}
	if root.SnapshotCapable {
		req.SnapshotFlag = r.options.SnapshotFlag
	}
	logger.Info("backing up source",
		logging.String("root", root.Path),
		logging.Int("paths", len(req.Paths)),
		logging.Bool("snapshot", req.SnapshotFlag != ""),
	)
	if err := r.engine.Backup(ctx, sinks, req); err != nil {
		outcome.Err = err
		logging.ErrorWithContext(logger, "backup invocation failed", "backup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the attempt error log for engine output"),
		)
		return outcome
	}
	logger.Info("source backed up", logging.String("root", root.Path))
	return outcome
}

func resolutionHint(err error) string {
	if errors.Is(err, services.ErrMultiPartition) {
		return "configure the partition label or mount point instead of the disk"
	}
	return "attach the media or enable backup.ignore_missing"
}

func existingFiles(paths []string) []string {
	var out []string
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			out = append(out, path)
		}
	}
	return out
}
