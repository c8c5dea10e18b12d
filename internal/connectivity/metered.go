package connectivity

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// MeteredDetector reports whether the connection on iface is metered.
type MeteredDetector interface {
	Metered(ctx context.Context, iface string) (bool, error)
}

// CommandFunc runs an external command and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ErrMeteredUnknown is returned when the platform cannot tell.
var ErrMeteredUnknown = errors.New("metered state unknown")

// NetworkManagerMetered asks NetworkManager for GENERAL.METERED of a device.
type NetworkManagerMetered struct {
	Run CommandFunc
}

func (n NetworkManagerMetered) Metered(ctx context.Context, iface string) (bool, error) {
	run := n.Run
	if run == nil {
		run = execCommand
	}
	if iface == "" {
		return false, ErrMeteredUnknown
	}
	out, err := run(ctx, "nmcli", "-t", "-f", "GENERAL.METERED", "device", "show", iface)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, ErrMeteredUnknown
		}
		return false, fmt.Errorf("nmcli device show %s: %w", iface, err)
	}
	return parseMetered(string(out))
}

// parseMetered interprets "GENERAL.METERED:yes (guessed)" style output.
func parseMetered(output string) (bool, error) {
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || key != "GENERAL.METERED" {
			continue
		}
		value = strings.ToLower(strings.TrimSpace(value))
		switch {
		case strings.HasPrefix(value, "yes"):
			return true, nil
		case strings.HasPrefix(value, "no"):
			return false, nil
		default:
			return false, ErrMeteredUnknown
		}
	}
	return false, ErrMeteredUnknown
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
