package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"backupflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The log directory, a local repository directory and one data source exist
// on disk; waits are zeroed so tests never depend on wall-clock sleeps.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateFile = filepath.Join(base, "state", "state.toml")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "state", "history.db")
	cfgVal.Paths.LockFile = filepath.Join(base, "logs", "backupflow.lock")
	cfgVal.Engine.Repository = filepath.Join(base, "repo")
	cfgVal.Engine.SecretsFile = filepath.Join(base, "secrets.env")
	cfgVal.Engine.LockGraceSeconds = 0
	cfgVal.Backup.ExcludeFile = filepath.Join(base, "exclude.txt")
	cfgVal.Backup.LocalExcludeFile = filepath.Join(base, "local-exclude.txt")
	cfgVal.Backup.ExtraArgs = ""
	cfgVal.Backup.Sources = []config.Source{{Identifier: filepath.Join(base, "data")}}
	cfgVal.Retry.CooldownMinutes = 0
	cfgVal.Notifications.SendOnSuccess = false
	cfgVal.Logging.Format = "console"

	for _, dir := range []string{cfgVal.Paths.LogDir, cfgVal.Engine.Repository, filepath.Join(base, "data")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSources replaces the configured backup sources.
func WithSources(sources ...config.Source) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backup.Sources = sources
	}
}

// WithRepository overrides the repository locator.
func WithRepository(locator string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.Repository = locator
	}
}

// WithRetryAttempts sets the attempt budget shared by both phases.
func WithRetryAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.Attempts = n
	}
}

// WithEngine points the configuration at a stub engine script.
func WithEngine(stub *StubEngine) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.Binary = stub.Path
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default engine binary is
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"restic"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}

// MkdirAll creates each relative path under root and returns their absolute forms.
func MkdirAll(t testing.TB, root string, rel ...string) []string {
	t.Helper()
	out := make([]string, 0, len(rel))
	for _, r := range rel {
		path := filepath.Join(root, r)
		if err := os.MkdirAll(path, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		out = append(out, path)
	}
	return out
}
