package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"backupflow/internal/config"
	"backupflow/internal/state"
	"backupflow/internal/testsupport"
)

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	code := exitCode(cmd.Execute(), &stderr)
	return stdout.String(), stderr.String(), code
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}

func TestRunSucceedsWithExitZero(t *testing.T) {
	stub := testsupport.NewStubEngine(t)
	cfg := testsupport.NewConfig(t, testsupport.WithEngine(stub))
	path := writeTestConfig(t, cfg)

	out, errOut, code := runCLI(t, "--config", path, "run", "--run-id", "cli-ok")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	requireContains(t, out, "Run cli-ok: backup ok")

	st, err := state.NewStore(cfg.Paths.StateFile).Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.LastMaintenanceAt == nil || !st.LastBackupSuccessful {
		t.Fatalf("state not updated: %+v", st)
	}
	if got := stub.CallsWithPrefix(t, "backup"); len(got) != 1 {
		t.Fatalf("backup calls = %v", got)
	}
}

func TestRunExitCodeCountsFailedAttempts(t *testing.T) {
	stub := testsupport.NewStubEngine(t, testsupport.ExitWith("backup", 1))
	cfg := testsupport.NewConfig(t, testsupport.WithEngine(stub), testsupport.WithRetryAttempts(2))
	path := writeTestConfig(t, cfg)

	out, _, code := runCLI(t, "--config", path, "run")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	requireContains(t, out, "maintenance skipped")
}

func TestRunMissingLogDirIsFatal(t *testing.T) {
	stub := testsupport.NewStubEngine(t)
	cfg := testsupport.NewConfig(t, testsupport.WithEngine(stub))
	path := writeTestConfig(t, cfg)
	if err := os.RemoveAll(cfg.Paths.LogDir); err != nil {
		t.Fatalf("remove log dir: %v", err)
	}

	_, errOut, code := runCLI(t, "--config", path, "run")
	if code != fatalExitCode {
		t.Fatalf("exit code = %d, want %d", code, fatalExitCode)
	}
	requireContains(t, errOut, "Log directory")
	if calls := stub.Calls(t); len(calls) != 0 {
		t.Fatalf("engine invoked despite fatal startup: %v", calls)
	}
}

func TestRunMissingEngineIsFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.Binary = filepath.Join(testsupport.BaseDir(cfg), "no-such-engine")
	path := writeTestConfig(t, cfg)

	_, _, code := runCLI(t, "--config", path, "run")
	if code != fatalExitCode {
		t.Fatalf("exit code = %d, want %d", code, fatalExitCode)
	}
}

func TestRunRefusesConcurrentInvocation(t *testing.T) {
	stub := testsupport.NewStubEngine(t)
	cfg := testsupport.NewConfig(t, testsupport.WithEngine(stub))
	path := writeTestConfig(t, cfg)

	held := flock.New(cfg.Paths.LockFile)
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("hold lock: locked=%v err=%v", locked, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	_, errOut, code := runCLI(t, "--config", path, "run")
	if code != fatalExitCode {
		t.Fatalf("exit code = %d, want %d", code, fatalExitCode)
	}
	requireContains(t, errOut, "in progress")
	if calls := stub.Calls(t); len(calls) != 0 {
		t.Fatalf("engine invoked while locked: %v", calls)
	}
}

func TestConfigInitShowAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, errOut, code := runCLI(t, "config", "init", "--path", target)
	if code != 0 {
		t.Fatalf("config init: code %d, %s", code, errOut)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, errOut, code = runCLI(t, "config", "init", "--path", target)
	if code == 0 {
		t.Fatalf("expected second init without --overwrite to fail")
	}
	requireContains(t, errOut, "already exists")

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.Email.SMTPPassword = "hunter2"
	path := writeTestConfig(t, cfg)

	out, _, code = runCLI(t, "--config", path, "config", "show")
	if code != 0 {
		t.Fatalf("config show: code %d", code)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatalf("password leaked in config show output")
	}
	requireContains(t, out, "[engine]")

	out, _, code = runCLI(t, "--config", path, "config", "validate")
	if code != 0 {
		t.Fatalf("config validate: code %d", code)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConnectivityLocalRepository(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, _, code := runCLI(t, "--config", path, "connectivity")
	if code != 0 {
		t.Fatalf("connectivity: code %d", code)
	}
	requireContains(t, out, "[OK] usable (local_repository)")
}

func TestLogsShowsNewestErrorSink(t *testing.T) {
	stub := testsupport.NewStubEngine(t, testsupport.ExitWith("backup", 1))
	cfg := testsupport.NewConfig(t, testsupport.WithEngine(stub), testsupport.WithRetryAttempts(1))
	path := writeTestConfig(t, cfg)

	if _, _, code := runCLI(t, "--config", path, "run"); code != 1 {
		t.Fatalf("run exit code = %d, want 1", code)
	}

	out, errOut, code := runCLI(t, "--config", path, "logs", "--phase", "backup", "--errors")
	if code != 0 {
		t.Fatalf("logs: code %d, %s", code, errOut)
	}
	requireContains(t, out, "backup failed")

	out, _, code = runCLI(t, "--config", path, "logs", "--list")
	if code != 0 {
		t.Fatalf("logs --list: code %d", code)
	}
	requireContains(t, out, "backup_1.err.txt")
}
