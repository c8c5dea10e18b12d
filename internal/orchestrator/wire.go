package orchestrator

import (
	"errors"
	"io"
	"log/slog"

	"github.com/juju/clock"
	"golang.org/x/sys/unix"

	"backupflow/internal/backup"
	"backupflow/internal/config"
	"backupflow/internal/connectivity"
	"backupflow/internal/engine"
	"backupflow/internal/history"
	"backupflow/internal/hooks"
	"backupflow/internal/logging"
	"backupflow/internal/maintenance"
	"backupflow/internal/metrics"
	"backupflow/internal/report"
	"backupflow/internal/state"
	"backupflow/internal/volume"
)

// NewFromConfig wires the production collaborators. The returned closer
// releases the history database.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*Orchestrator, io.Closer, error) {
	if clk == nil {
		clk = clock.WallClock
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}
	secrets, err := cfg.LoadSecrets()
	if err != nil {
		return nil, nil, err
	}

	runner := &engine.ExecRunner{Binary: cfg.EngineBinary(), Env: cfg.EngineEnvironment(secrets), Logger: logger}
	eng := engine.New(runner, cfg.Engine.GlobalFlags, clk, logger)

	backupOpts, err := backup.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	maintOpts, err := maintenance.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	deps := Dependencies{
		Config:      cfg,
		Logger:      logger,
		Clock:       clk,
		State:       state.NewStore(cfg.Paths.StateFile),
		Repository:  eng,
		Gate:        connectivity.NewGate(cfg, clk, logger),
		Backup:      backup.NewRunner(eng, volume.NewResolver(cfg, logger), backupOpts),
		Maintenance: maintenance.NewRunner(eng, maintOpts, clk),
		Reporter:    report.NewService(cfg, logger),
		Hooks:       hooks.NewRunner(cfg, logger),
		Metrics:     metrics.NewExporter(),
		FreeSpace:   FreeSpace,
	}

	var closer io.Closer = nopCloser{}
	store, err := history.Open(cfg.Paths.HistoryDB, cfg.History.Limit)
	if err != nil {
		logging.WarnWithContext(logging.NewComponentLogger(logger, "orchestrator"), "run history unavailable", "history_unavailable",
			logging.String("path", cfg.Paths.HistoryDB),
			logging.Error(err),
			logging.String(logging.FieldImpact, "success rate not tracked for this run"),
		)
	} else {
		deps.History = store
		closer = store
	}

	o, err := New(deps)
	if err != nil {
		return nil, nil, errors.Join(err, closer.Close())
	}
	return o, closer, nil
}

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
