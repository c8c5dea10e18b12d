package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"backupflow/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Writers receive every record. Empty means stdout.
	Writers []io.Writer
	// Terminal marks the first writer as an interactive terminal. It selects
	// console output for the "auto" format and enables colored levels.
	Terminal    bool
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := ParseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	writers := opts.Writers
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	switch format {
	case "", "auto":
		if opts.Terminal {
			format = "console"
		} else {
			format = "json"
		}
	}

	switch format {
	case "json":
		var out io.Writer = writers[0]
		if len(writers) > 1 {
			out = io.MultiWriter(writers...)
		}
		return slog.New(newJSONHandler(out, levelVar, addSource)), nil
	case "console":
		// Only the terminal gets ANSI colors; files stay plain.
		handlers := make([]slog.Handler, 0, len(writers))
		for idx, w := range writers {
			handlers = append(handlers, newPrettyHandler(w, levelVar, addSource, opts.Terminal && idx == 0))
		}
		return slog.New(newFanoutHandler(handlers...)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig creates the run logger: stdout plus the main log file inside
// the configured log directory. The directory must already exist; the returned
// closer releases the file handle.
func NewFromConfig(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	terminal := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	if cfg == nil {
		logger, err := New(Options{Level: "info", Format: "auto", Terminal: terminal})
		return logger, nopCloser{}, err
	}

	writers := []io.Writer{os.Stdout}
	var closer io.Closer = nopCloser{}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			logPath := filepath.Join(dir, config.MainLogFileName())
			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, nil, fmt.Errorf("open log file %s: %w", logPath, err)
			}
			writers = append(writers, file)
			closer = file
		}
	}

	logger, err := New(Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Writers:  writers,
		Terminal: terminal,
	})
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return logger, closer, nil
}

// ParseLevel converts a configured level name into a slog level. Unknown
// values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
