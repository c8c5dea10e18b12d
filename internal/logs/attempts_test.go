package logs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"backupflow/internal/logs"
)

func TestParseAttemptFile(t *testing.T) {
	started := time.Date(2026, 4, 2, 3, 15, 0, 0, time.Local)
	name := logs.AttemptBase(started, "maintenance", 2) + logs.ErrSuffix

	f, ok := logs.ParseAttemptFile(name)
	if !ok {
		t.Fatalf("ParseAttemptFile(%q) rejected", name)
	}
	if f.Phase != "maintenance" || f.Attempt != 2 || !f.Errors || !f.StartedAt.Equal(started) {
		t.Fatalf("unexpected parse: %+v", f)
	}

	for _, bad := range []string{"backupflow.log", "x_backup_1.log.txt", "20260402T031500_backup_0.log.txt", "20260402T031500_backup.err.txt"} {
		if _, ok := logs.ParseAttemptFile(bad); ok {
			t.Fatalf("ParseAttemptFile(%q) accepted", bad)
		}
	}
}

func TestListAttemptsNewestFirstAndLatest(t *testing.T) {
	dir := t.TempDir()
	early := time.Date(2026, 4, 1, 3, 0, 0, 0, time.Local)
	late := early.Add(time.Hour)
	names := []string{
		logs.AttemptBase(early, "backup", 1) + logs.LogSuffix,
		logs.AttemptBase(early, "backup", 1) + logs.ErrSuffix,
		logs.AttemptBase(late, "backup", 2) + logs.ErrSuffix,
		logs.AttemptBase(late, "maintenance", 1) + logs.LogSuffix,
		"backupflow.log",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}

	files, err := logs.ListAttempts(dir)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("expected 4 attempt files, got %d", len(files))
	}
	if files[0].Attempt != 2 || files[0].Phase != "backup" {
		t.Fatalf("newest first violated: %+v", files[0])
	}

	latest, ok, err := logs.Latest(dir, "backup", false)
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if filepath.Base(latest.Path) != names[0] {
		t.Fatalf("Latest backup log = %s, want %s", latest.Path, names[0])
	}

	if _, ok, _ := logs.Latest(dir, "maintenance", true); ok {
		t.Fatalf("expected no maintenance error sink")
	}
}
