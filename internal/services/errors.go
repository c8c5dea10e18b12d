package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingSource marks a backup source or sub-path that could not be found.
	// Whether it fails the attempt depends on backup.ignore_missing.
	ErrMissingSource = errors.New("missing source")
	// ErrMultiPartition marks external media that resolved to more than one
	// mount point. The source is skipped and the attempt fails.
	ErrMultiPartition = errors.New("multi-partition media unsupported")
	// ErrEngineFailed marks a non-zero exit from the backup engine.
	ErrEngineFailed = errors.New("engine invocation failed")
	// ErrConnectivity marks an exhausted connectivity gate.
	ErrConnectivity = errors.New("connectivity unavailable")
	// ErrStateUnreadable marks a state file that exists but cannot be decoded.
	ErrStateUnreadable = errors.New("state file unreadable")
	// ErrLogDirMissing aborts the run before any phase.
	ErrLogDirMissing = errors.New("log directory missing")
	// ErrEngineNotFound aborts the run before any phase.
	ErrEngineNotFound = errors.New("engine binary not found")
	ErrConfiguration  = errors.New("configuration error")
)

// Wrap builds an error message that includes phase context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrEngineFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must abort the whole process instead of only
// failing the current attempt.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLogDirMissing) || errors.Is(err, ErrEngineNotFound)
}

// IsIgnorable reports whether err is a missing-source condition that the
// ignore_missing policy allows to be downgraded to a warning.
func IsIgnorable(err error, ignoreMissing bool) bool {
	if !ignoreMissing {
		return false
	}
	return errors.Is(err, ErrMissingSource) && !errors.Is(err, ErrMultiPartition)
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "orchestration failure"
	}
	return strings.Join(parts, ": ")
}
