package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"backupflow/internal/history"
)

func openStore(t *testing.T, limit int) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"), limit)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openStore(t, 10)
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

	for i, success := range []bool{false, true} {
		if _, err := store.Append(ctx, history.Entry{
			RunID:      "run-1",
			Phase:      "backup",
			Attempt:    i + 1,
			StartedAt:  start.Add(time.Duration(i) * time.Hour),
			Duration:   90 * time.Second,
			Success:    success,
			ErrorCount: boolCount(!success),
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := store.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries want 2", len(entries))
	}
	if entries[0].Attempt != 2 || !entries[0].Success {
		t.Fatalf("expected newest first, got %+v", entries[0])
	}
	if entries[1].Duration != 90*time.Second || !entries[1].StartedAt.Equal(start) {
		t.Fatalf("unexpected decoded entry: %+v", entries[1])
	}
}

func TestAppendCapsRowsPerPhase(t *testing.T) {
	store := openStore(t, 3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := store.Append(ctx, history.Entry{RunID: "r", Phase: "backup", Attempt: i + 1, Success: i%2 == 0}); err != nil {
			t.Fatalf("Append backup: %v", err)
		}
	}
	if _, err := store.Append(ctx, history.Entry{RunID: "r", Phase: "maintenance", Attempt: 1, Success: false}); err != nil {
		t.Fatalf("Append maintenance: %v", err)
	}

	backup, err := store.SuccessRate(ctx, "backup")
	if err != nil {
		t.Fatalf("SuccessRate: %v", err)
	}
	// Rows 3, 4, 5 remain: successes at attempts 3 and 5.
	if backup.Total != 3 || backup.Succeeded != 2 {
		t.Fatalf("unexpected backup rate: %+v", backup)
	}
	all, err := store.SuccessRate(ctx, "")
	if err != nil {
		t.Fatalf("SuccessRate all: %v", err)
	}
	if all.Total != 4 || all.Succeeded != 2 {
		t.Fatalf("unexpected overall rate: %+v", all)
	}
	if got := all.Percent(); got != 50 {
		t.Fatalf("Percent = %v want 50", got)
	}
}

func TestEmptyRateIsFullSuccess(t *testing.T) {
	if got := (history.Rate{}).Percent(); got != 100 {
		t.Fatalf("Percent = %v want 100", got)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path, 5)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Append(context.Background(), history.Entry{RunID: "a", Phase: "backup", Attempt: 1, Success: true}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = store.Close()

	reopened, err := history.Open(path, 5)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rate, err := reopened.SuccessRate(context.Background(), "backup")
	if err != nil || rate.Total != 1 {
		t.Fatalf("expected persisted row, got %+v err=%v", rate, err)
	}
}

func boolCount(v bool) int {
	if v {
		return 1
	}
	return 0
}
