package hooks_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"backupflow/internal/hooks"
	"backupflow/internal/testsupport"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "hook.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSelectsHookByOutcome(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	script := writeScript(t, dir, `echo "$1 $BACKUPFLOW_RESULT $BACKUPFLOW_FAILED_ATTEMPTS" >> "`+out+`"`+"\n")

	cfg := testsupport.NewConfig(t)
	cfg.Hooks.OnSuccess = script + " 'all good'"
	cfg.Hooks.OnFailure = script + " bad"
	runner := hooks.NewRunner(cfg, nil)

	if err := runner.Run(context.Background(), hooks.Outcome{Success: true}); err != nil {
		t.Fatalf("success hook: %v", err)
	}
	if err := runner.Run(context.Background(), hooks.Outcome{FailedAttempts: 3}); err != nil {
		t.Fatalf("failure hook: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || lines[0] != "all good success 0" || lines[1] != "bad failure 3" {
		t.Fatalf("unexpected hook output %q", lines)
	}
}

func TestRunUnsetHookIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := hooks.NewRunner(cfg, nil).Run(context.Background(), hooks.Outcome{Success: true}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestRunReportsFailure(t *testing.T) {
	script := writeScript(t, t.TempDir(), "exit 2\n")
	cfg := testsupport.NewConfig(t)
	cfg.Hooks.OnFailure = script
	if err := hooks.NewRunner(cfg, nil).Run(context.Background(), hooks.Outcome{}); err == nil {
		t.Fatal("expected error from failing hook")
	}
}
