package volume

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
)

// Device is one block device (disk or partition) as seen by an Enumerator.
type Device struct {
	Name        string
	Parent      string
	Type        string
	Serial      string
	Label       string
	MountPoints []string
}

// IsDisk reports whether the device is a whole disk.
func (d Device) IsDisk() bool {
	return d.Type == "disk"
}

// Enumerator lists block devices.
type Enumerator interface {
	Devices(ctx context.Context) ([]Device, error)
}

// CommandFunc runs an external command and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// LSBLKEnumerator queries util-linux lsblk in key="value" pair mode.
type LSBLKEnumerator struct {
	Run CommandFunc
}

func (e LSBLKEnumerator) Devices(ctx context.Context) ([]Device, error) {
	run := e.Run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		}
	}
	out, err := run(ctx, "lsblk", "-P", "-o", "NAME,PKNAME,TYPE,SERIAL,LABEL,MOUNTPOINT")
	if err != nil {
		return nil, fmt.Errorf("run lsblk: %w", err)
	}
	return ParseLSBLK(string(out))
}

// ParseLSBLK parses `lsblk -P` output. Partitions without a serial inherit
// the serial of their parent disk.
func ParseLSBLK(output string) ([]Device, error) {
	var devices []Device
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data, err := parseLSBLKKeyValueLine(line)
		if err != nil {
			return nil, err
		}
		if data["NAME"] == "" {
			continue
		}
		dev := Device{
			Name:   data["NAME"],
			Parent: data["PKNAME"],
			Type:   data["TYPE"],
			Serial: strings.TrimSpace(data["SERIAL"]),
			Label:  data["LABEL"],
		}
		if mp := data["MOUNTPOINT"]; mp != "" {
			dev.MountPoints = []string{mp}
		}
		devices = append(devices, dev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	serials := make(map[string]string)
	for _, dev := range devices {
		if dev.Serial != "" {
			serials[dev.Name] = dev.Serial
		}
	}
	for i := range devices {
		if devices[i].Serial == "" {
			devices[i].Serial = serials[devices[i].Parent]
		}
	}
	return devices, nil
}

// parseLSBLKKeyValueLine splits NAME="sdb1" LABEL="My Disk" pairs. Values
// may contain spaces and lsblk's \xNN escapes.
func parseLSBLKKeyValueLine(line string) (map[string]string, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parse lsblk line %q: %w", line, err)
	}
	result := make(map[string]string, len(words))
	for _, word := range words {
		key, value, ok := strings.Cut(word, "=")
		if !ok {
			continue
		}
		result[strings.TrimSpace(key)] = unescapeLSBLK(value)
	}
	return result, nil
}

func unescapeLSBLK(value string) string {
	if !strings.Contains(value, `\x`) {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+3 < len(value) && value[i+1] == 'x' {
			if n, err := strconv.ParseUint(value[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}

// SysfsEnumerator walks /sys/devices with the udev crawler. It only knows
// device names and their parent disk; serials and labels need lsblk.
type SysfsEnumerator struct{}

func (SysfsEnumerator) Devices(ctx context.Context) ([]Device, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"DEVTYPE": "^(disk|partition)$"},
	})
	quit := crawler.ExistingDevices(queue, errs, rules)

	var devices []Device
	for {
		select {
		case <-ctx.Done():
			close(quit)
			// The crawler blocks on queue until it sees quit.
			for range queue {
			}
			return nil, ctx.Err()
		case err := <-errs:
			if err != nil {
				return nil, fmt.Errorf("crawl sysfs: %w", err)
			}
		case dev, ok := <-queue:
			if !ok {
				select {
				case err := <-errs:
					if err != nil {
						return nil, fmt.Errorf("crawl sysfs: %w", err)
					}
				default:
				}
				return devices, nil
			}
			name := dev.Env["DEVNAME"]
			if name == "" {
				continue
			}
			entry := Device{Name: filepath.Base(name), Type: "disk"}
			if dev.Env["DEVTYPE"] == "partition" {
				entry.Type = "part"
				entry.Parent = filepath.Base(filepath.Dir(dev.KObj))
			}
			devices = append(devices, entry)
		}
	}
}

// FallbackEnumerator tries Primary and uses Secondary when it fails.
type FallbackEnumerator struct {
	Primary   Enumerator
	Secondary Enumerator
}

func (f FallbackEnumerator) Devices(ctx context.Context) ([]Device, error) {
	devices, err := f.Primary.Devices(ctx)
	if err == nil || f.Secondary == nil {
		return devices, err
	}
	fallback, ferr := f.Secondary.Devices(ctx)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fallback, nil
}
