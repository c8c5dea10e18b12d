package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backupflow/internal/config"
	"backupflow/internal/logging"
	"backupflow/internal/services"
)

func TestNewFromConfigWritesMainLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "console"

	logger, closer, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "backupflow.log"))
	if err != nil {
		t.Fatalf("read main log: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Fatalf("main log missing record: %q", content)
	}
	if strings.Contains(string(content), "\x1b[") {
		t.Fatalf("file output must not contain ANSI colors: %q", content)
	}
}

func TestNewFromConfigSkipsMissingLogDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "absent")

	_, closer, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	defer closer.Close()
	if _, err := os.Stat(cfg.Paths.LogDir); !os.IsNotExist(err) {
		t.Fatalf("log dir must not be created, stat err=%v", err)
	}
}

func TestConsoleLoggerIncludesCallerOnlyForDebug(t *testing.T) {
	var info, debug bytes.Buffer
	infoLogger, err := logging.New(logging.Options{Format: "console", Level: "info", Writers: []io.Writer{&info}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	infoLogger.Info("message without caller")
	if strings.Contains(info.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", info.String())
	}

	debugLogger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writers: []io.Writer{&debug}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	debugLogger.Info("message with caller")
	if !strings.Contains(debug.String(), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", debug.String())
	}
}

func TestConsoleLoggerRendersSubjectAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithAttempt(services.WithPhase(context.Background(), "backup"), 2)
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "orchestrator")).Info("attempt finished",
		logging.Int64("added_bytes", 2048),
		logging.Bool("success", true),
	)
	out := buf.String()
	for _, want := range []string{"INFO [orchestrator] Backup #2 - attempt finished", "Added Bytes: 2.0 KiB", "Success: yes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestAutoFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "auto", Level: "info", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "json message" || record["level"] != "info" || record["k"] != "v" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := logging.ParseLevel("invalid"); got != slog.LevelInfo {
		t.Fatalf("got %v want info", got)
	}
	if got := logging.ParseLevel("WARNING"); got != slog.LevelWarn {
		t.Fatalf("got %v want warn", got)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithRunID(context.Background(), "run-xyz")
	ctx = services.WithPhase(ctx, "maintenance")
	ctx = services.WithAttempt(ctx, 3)
	ctx = services.WithSource(ctx, "/home")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		logging.FieldRunID:   "run-xyz",
		logging.FieldPhase:   "maintenance",
		logging.FieldAttempt: float64(3),
		logging.FieldSource:  "/home",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %v", key, record[key], value)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "source skipped", "source_missing", logging.String(logging.FieldImpact, "source not backed up"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "source_missing" {
		t.Fatalf("unexpected event type: %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
	if record[logging.FieldImpact] != "source not backed up" {
		t.Fatalf("explicit impact must win, got %v", record[logging.FieldImpact])
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	write := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		mod := now.Add(-age)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		return path
	}
	old := write("20260101_backup_1.log.txt", 60*24*time.Hour)
	oldErr := write("20260101_backup_1.err.txt", 60*24*time.Hour)
	fresh := write("20260228_backup_1.log.txt", 24*time.Hour)
	main := write("backupflow.log", 90*24*time.Hour)

	removed := logging.CleanupOldLogs(logging.NewNop(), 30, now,
		logging.RetentionTarget{Dir: dir, Pattern: "*.log.txt"},
		logging.RetentionTarget{Dir: dir, Pattern: "*.err.txt"},
	)
	if removed != 2 {
		t.Fatalf("removed %d files, want 2", removed)
	}
	for _, path := range []string{old, oldErr} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", path)
		}
	}
	for _, path := range []string{fresh, main} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}

	if got := logging.CleanupOldLogs(nil, 0, now, logging.RetentionTarget{Dir: dir}); got != 0 {
		t.Fatalf("retention 0 must not prune, removed %d", got)
	}
}
