package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"backupflow/internal/config"
	"backupflow/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckEngine verifies the engine binary resolves on PATH or as a path.
func CheckEngine(cfg *config.Config) Result {
	status := deps.Check(deps.Requirement{Name: "Engine", Command: cfg.EngineBinary()})
	if !status.Available {
		return Result{Name: "Engine", Detail: status.Detail}
	}
	return Result{Name: "Engine", Passed: true, Detail: status.Path}
}

// CheckSystemDeps evaluates the helper binaries used by optional features.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "lsblk",
			Command:     "lsblk",
			Description: "Resolves external media by serial or label",
			Optional:    true,
		},
	}
	if cfg.Connectivity.AvoidMetered {
		requirements = append(requirements, deps.Requirement{
			Name:        "nmcli",
			Command:     "nmcli",
			Description: "Detects metered connections",
			Optional:    true,
		})
	}
	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.Method == "sendmail" {
		requirements = append(requirements, deps.Requirement{
			Name:        "sendmail",
			Command:     cfg.Notifications.Email.SendmailPath,
			Description: "Required for email reports",
		})
	}
	return deps.CheckBinaries(requirements)
}
