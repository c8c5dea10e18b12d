package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerFiltersNil(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for all nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, errBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With("component", "test")
	logger.Info("info only")
	logger.Error("both")

	if !strings.Contains(infoBuf.String(), "info only") || !strings.Contains(infoBuf.String(), "both") {
		t.Fatalf("info handler missing records: %q", infoBuf.String())
	}
	if strings.Contains(errBuf.String(), "info only") {
		t.Fatalf("error handler received info record: %q", errBuf.String())
	}
	if !strings.Contains(errBuf.String(), "component=test") {
		t.Fatalf("attrs not propagated: %q", errBuf.String())
	}
}

func TestSinkHandlersSplitByLevel(t *testing.T) {
	var base, logSink, errSink bytes.Buffer
	maxInfo := slog.LevelInfo
	logger := TeeLogger(
		slog.New(slog.NewTextHandler(&base, nil)),
		NewSinkHandler(&logSink, slog.LevelDebug, &maxInfo),
		NewSinkHandler(&errSink, slog.LevelWarn, nil),
	)
	logger.Info("backup started", String("source", "/home"))
	logger.Warn("source missing", String("source", "/mnt/usb"))
	logger.Error("engine failed", Int("exit_code", 1))

	if !strings.Contains(logSink.String(), "INFO backup started source=/home") {
		t.Fatalf("log sink: %q", logSink.String())
	}
	if strings.Contains(logSink.String(), "WARN") {
		t.Fatalf("log sink must not hold warnings: %q", logSink.String())
	}
	if !strings.Contains(errSink.String(), "WARN source missing") || !strings.Contains(errSink.String(), "ERROR engine failed exit_code=1") {
		t.Fatalf("err sink: %q", errSink.String())
	}
	if strings.Count(base.String(), "\n") != 3 {
		t.Fatalf("base logger should receive every record: %q", base.String())
	}
	if ok := NewSinkHandler(&errSink, slog.LevelWarn, nil).Enabled(context.Background(), slog.LevelInfo); ok {
		t.Fatal("warn sink must reject info")
	}
}

func TestFormatSubject(t *testing.T) {
	tests := []struct {
		phase, attempt, source, want string
	}{
		{"backup", "2", "", "Backup #2"},
		{"maintenance", "", "", "Maintenance"},
		{"backup", "1", "/home", "Backup #1 · /home"},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		if got := FormatSubject(tt.phase, tt.attempt, tt.source); got != tt.want {
			t.Fatalf("FormatSubject(%q,%q,%q) = %q want %q", tt.phase, tt.attempt, tt.source, got, tt.want)
		}
	}
}
