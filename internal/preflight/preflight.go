package preflight

import (
	"context"

	"backupflow/internal/config"
	"backupflow/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Startup runs the checks whose failure aborts the whole invocation. The
// returned error is marked services.ErrLogDirMissing or
// services.ErrEngineNotFound.
func Startup(cfg *config.Config) error {
	if res := CheckDirectoryAccess("Log directory", cfg.Paths.LogDir); !res.Passed {
		return services.Wrap(services.ErrLogDirMissing, "", "preflight", res.Detail, nil)
	}
	if res := CheckEngine(cfg); !res.Passed {
		return services.Wrap(services.ErrEngineNotFound, "", "preflight", res.Detail, nil)
	}
	return nil
}

// RunAll executes every check for display. Optional helpers are reported
// as passed-with-detail when absent.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckEngine(cfg),
	}
	if cfg.RepositoryIsLocal() {
		results = append(results, CheckDirectoryAccess("Repository", cfg.Engine.Repository))
	}
	for _, status := range CheckSystemDeps(cfg) {
		res := Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: status.Path}
		if !status.Available {
			res.Detail = status.Detail
			if status.Optional {
				res.Detail += " (optional: " + status.Description + ")"
			}
		}
		results = append(results, res)
	}
	return results
}
