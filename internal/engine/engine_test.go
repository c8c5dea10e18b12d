package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"backupflow/internal/engine"
	"backupflow/internal/logging"
	"backupflow/internal/services"
	"backupflow/internal/testsupport"
)

type fakeRunner struct {
	calls  [][]string
	stdout map[string]string
	fail   map[string]bool
	codes  map[string]int
}

func (f *fakeRunner) Run(_ context.Context, cmd *engine.Command, sinks engine.Sinks) (engine.Result, error) {
	f.calls = append(f.calls, cmd.Argv())
	if out, ok := f.stdout[cmd.Subcommand()]; ok && sinks.Stdout != nil {
		fmt.Fprint(sinks.Stdout, out)
	}
	if code, ok := f.codes[cmd.Subcommand()]; ok && code != 0 {
		return engine.Result{ExitCode: code}, services.Wrap(services.ErrEngineFailed, "", cmd.Subcommand(), fmt.Sprintf("exit status %d", code), nil)
	}
	if f.fail[cmd.Subcommand()] {
		return engine.Result{ExitCode: 1}, services.Wrap(services.ErrEngineFailed, "", cmd.Subcommand(), "exit status 1", nil)
	}
	return engine.Result{}, nil
}

func TestClearStaleLocksUnlocksAndWaitsGrace(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{"list locks": "abc123\n\ndef456\n"}}
	clk := testsupport.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng := engine.New(runner, []string{"-o", "s3.bucket-lookup=dns"}, clk, logging.NewNop())

	cleared, err := eng.ClearStaleLocks(context.Background(), engine.Sinks{}, 30*time.Second)
	if err != nil {
		t.Fatalf("ClearStaleLocks: %v", err)
	}
	if !cleared {
		t.Fatal("expected locks to be reported")
	}
	want := [][]string{
		{"list", "locks", "-o", "s3.bucket-lookup=dns", "--no-lock"},
		{"unlock", "-o", "s3.bucket-lookup=dns", "--remove-all"},
	}
	if !reflect.DeepEqual(runner.calls, want) {
		t.Fatalf("calls = %q want %q", runner.calls, want)
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 1 || sleeps[0] != 30*time.Second {
		t.Fatalf("expected one grace sleep, got %v", sleeps)
	}
}

func TestClearStaleLocksNoLocksSkipsUnlock(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{"list locks": ""}}
	clk := testsupport.NewFakeClock(time.Now())
	eng := engine.New(runner, nil, clk, nil)

	cleared, err := eng.ClearStaleLocks(context.Background(), engine.Sinks{}, time.Minute)
	if err != nil || cleared {
		t.Fatalf("cleared=%v err=%v", cleared, err)
	}
	if len(runner.calls) != 1 || len(clk.Sleeps()) != 0 {
		t.Fatalf("expected only list locks and no sleep, calls=%q sleeps=%v", runner.calls, clk.Sleeps())
	}
}

func TestBackupBuildsArguments(t *testing.T) {
	runner := &fakeRunner{}
	eng := engine.New(runner, nil, nil, nil)
	err := eng.Backup(context.Background(), engine.Sinks{}, engine.BackupRequest{
		Tag:          "BACKUP_USB",
		ExcludeFiles: []string{"/etc/global.txt", "/etc/local.txt"},
		SnapshotFlag: "--use-fs-snapshot",
		Paths:        []string{"/mnt/usb/Photos", "/mnt/usb/Docs"},
		Extra:        []string{"--exclude-if-present", ".nobackup"},
	})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	want := []string{
		"backup", "--tag", "BACKUP_USB",
		"--exclude-file", "/etc/global.txt", "--exclude-file", "/etc/local.txt",
		"--use-fs-snapshot", "/mnt/usb/Photos", "/mnt/usb/Docs",
		"--exclude-if-present", ".nobackup",
	}
	if !reflect.DeepEqual(runner.calls[0], want) {
		t.Fatalf("argv = %q want %q", runner.calls[0], want)
	}
}

func TestExecRunnerCapturesStreamsAndExitCodes(t *testing.T) {
	stub := testsupport.NewStubEngine(t,
		testsupport.Print("snapshots", "snap-1"),
		testsupport.ExitWith("check", 3),
	)
	runner := &engine.ExecRunner{Binary: stub.Path, Logger: logging.NewNop()}

	var stdout, stderr bytes.Buffer
	if _, err := runner.Run(context.Background(), engine.NewCommand("snapshots"), engine.Sinks{Stdout: &stdout, Stderr: &stderr}); err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "snap-1" {
		t.Fatalf("stdout = %q", stdout.String())
	}

	result, err := runner.Run(context.Background(), engine.NewCommand("check").Arg("--read-data"), engine.Sinks{Stdout: &stdout, Stderr: &stderr})
	if !errors.Is(err, services.ErrEngineFailed) {
		t.Fatalf("expected ErrEngineFailed, got %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("exit code = %d want 3", result.ExitCode)
	}
	if !strings.Contains(stderr.String(), "check failed") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	calls := stub.Calls(t)
	if len(calls) != 2 || calls[1] != "check --read-data" {
		t.Fatalf("calls = %q", calls)
	}
}

func TestExecRunnerMissingBinaryIsFatal(t *testing.T) {
	runner := &engine.ExecRunner{Binary: filepath.Join(t.TempDir(), "absent-restic")}
	_, err := runner.Run(context.Background(), engine.NewCommand("backup"), engine.Sinks{})
	if !errors.Is(err, services.ErrEngineNotFound) || !services.IsFatal(err) {
		t.Fatalf("expected fatal ErrEngineNotFound, got %v", err)
	}
}

func TestRepositoryInitialized(t *testing.T) {
	eng := engine.New(&fakeRunner{codes: map[string]int{"cat config": engine.ExitRepositoryMissing}}, nil, nil, nil)
	ok, err := eng.RepositoryInitialized(context.Background(), engine.Sinks{})
	if err != nil || ok {
		t.Fatalf("expected uninitialized repository, ok=%v err=%v", ok, err)
	}
	eng = engine.New(&fakeRunner{}, nil, nil, nil)
	if ok, err := eng.RepositoryInitialized(context.Background(), engine.Sinks{}); err != nil || !ok {
		t.Fatalf("expected initialized repository, ok=%v err=%v", ok, err)
	}
}

func TestRepositoryInitializedSurfacesOtherFailures(t *testing.T) {
	for _, code := range []int{1, 12} {
		eng := engine.New(&fakeRunner{codes: map[string]int{"cat config": code}}, nil, nil, nil)
		ok, err := eng.RepositoryInitialized(context.Background(), engine.Sinks{})
		if ok || !errors.Is(err, services.ErrEngineFailed) {
			t.Fatalf("exit %d: expected engine failure, ok=%v err=%v", code, ok, err)
		}
	}
}
