package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// TimestampLayout prefixes every attempt file name.
	TimestampLayout = "20060102T150405"
	// LogSuffix marks the stdout/info sink of an attempt.
	LogSuffix = ".log.txt"
	// ErrSuffix marks the stderr/warning sink of an attempt.
	ErrSuffix = ".err.txt"
)

// AttemptBase returns the shared file name stem for one attempt.
func AttemptBase(started time.Time, phase string, number int) string {
	return fmt.Sprintf("%s_%s_%d", started.Format(TimestampLayout), phase, number)
}

// AttemptFile is one sink found on disk.
type AttemptFile struct {
	Path      string
	Phase     string
	Attempt   int
	StartedAt time.Time
	Errors    bool
}

// ParseAttemptFile decodes a file name produced from AttemptBase plus a
// suffix. Unrelated names report false.
func ParseAttemptFile(name string) (AttemptFile, bool) {
	base := filepath.Base(name)
	var errs bool
	switch {
	case strings.HasSuffix(base, LogSuffix):
		base = strings.TrimSuffix(base, LogSuffix)
	case strings.HasSuffix(base, ErrSuffix):
		base = strings.TrimSuffix(base, ErrSuffix)
		errs = true
	default:
		return AttemptFile{}, false
	}

	parts := strings.Split(base, "_")
	if len(parts) != 3 {
		return AttemptFile{}, false
	}
	started, err := time.ParseInLocation(TimestampLayout, parts[0], time.Local)
	if err != nil {
		return AttemptFile{}, false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n <= 0 || parts[1] == "" {
		return AttemptFile{}, false
	}
	return AttemptFile{Path: name, Phase: parts[1], Attempt: n, StartedAt: started, Errors: errs}, true
}

// ListAttempts returns the attempt files in dir, newest first. Within the
// same second higher attempt numbers sort first. A missing dir is empty.
func ListAttempts(dir string) ([]AttemptFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var files []AttemptFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if f, ok := ParseAttemptFile(filepath.Join(dir, entry.Name())); ok {
			files = append(files, f)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].StartedAt.Equal(files[j].StartedAt) {
			return files[i].StartedAt.After(files[j].StartedAt)
		}
		if files[i].Attempt != files[j].Attempt {
			return files[i].Attempt > files[j].Attempt
		}
		return !files[i].Errors && files[j].Errors
	})
	return files, nil
}

// Latest picks the newest sink matching phase (empty matches any) and kind.
func Latest(dir, phase string, errs bool) (AttemptFile, bool, error) {
	files, err := ListAttempts(dir)
	if err != nil {
		return AttemptFile{}, false, err
	}
	for _, f := range files {
		if f.Errors != errs {
			continue
		}
		if phase != "" && f.Phase != phase {
			continue
		}
		return f, true, nil
	}
	return AttemptFile{}, false, nil
}
