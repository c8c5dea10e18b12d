package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"backupflow/internal/engine"
	"backupflow/internal/logging"
	"backupflow/internal/logs"
)

// Attempt is one try of a phase with its two append-only sinks.
type Attempt struct {
	Phase     string
	Number    int
	StartedAt time.Time
	LogPath   string
	ErrPath   string

	logFile *os.File
	errFile *os.File
}

// openAttempt creates <timestamp>_<phase>_<n>.log.txt and .err.txt in dir.
func openAttempt(dir, phase string, number int, now time.Time) (*Attempt, error) {
	base := logs.AttemptBase(now, phase, number)
	a := &Attempt{
		Phase:     phase,
		Number:    number,
		StartedAt: now,
		LogPath:   filepath.Join(dir, base+logs.LogSuffix),
		ErrPath:   filepath.Join(dir, base+logs.ErrSuffix),
	}
	var err error
	if a.logFile, err = openSink(a.LogPath); err != nil {
		return nil, err
	}
	if a.errFile, err = openSink(a.ErrPath); err != nil {
		_ = a.logFile.Close()
		return nil, err
	}
	return a, nil
}

func openSink(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open attempt sink %s: %w", path, err)
	}
	return f, nil
}

// Sinks routes engine stdout to the log sink and stderr to the error sink.
func (a *Attempt) Sinks() engine.Sinks {
	return engine.Sinks{Stdout: a.logFile, Stderr: a.errFile}
}

// Logger tees base into the sinks: Debug and Info records go to the log
// sink, Warn and above to the error sink.
func (a *Attempt) Logger(base *slog.Logger) *slog.Logger {
	infoMax := slog.LevelInfo
	return logging.TeeLogger(base,
		logging.NewSinkHandler(a.logFile, slog.LevelDebug, &infoMax),
		logging.NewSinkHandler(a.errFile, slog.LevelWarn, nil),
	)
}

// Close flushes and closes both sinks.
func (a *Attempt) Close() error {
	var errs []error
	for _, f := range []*os.File{a.logFile, a.errFile} {
		if f == nil {
			continue
		}
		if err := f.Sync(); err != nil {
			errs = append(errs, err)
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
