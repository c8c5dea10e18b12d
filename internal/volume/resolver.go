// Package volume maps configured backup sources to concrete filesystem
// roots. A source is either a directory path or an external-media
// identifier (serial number, volume label, or kernel disk name) that is
// looked up among the mounted block devices.
package volume

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/text/cases"

	"backupflow/internal/config"
	"backupflow/internal/logging"
	"backupflow/internal/services"
)

// Root is a resolved source.
type Root struct {
	SourceIdentifier string
	Path             string
	SnapshotCapable  bool
	// Includes are the paths handed to the engine: the root itself when no
	// sub-paths are configured, otherwise the existing sub-paths.
	Includes []string
	// Missing lists configured sub-paths that do not exist.
	Missing []string
}

// Resolver resolves sources with injectable collaborators.
type Resolver struct {
	Devices  Enumerator
	Mounts   MountTable
	Snapshot SnapshotChecker
	Logger   *slog.Logger
}

// NewResolver wires lsblk with a sysfs fallback, /proc mountinfo, and the
// filesystem-based snapshot checker from configuration.
func NewResolver(cfg *config.Config, logger *slog.Logger) *Resolver {
	mounts := ProcMounts{}
	return &Resolver{
		Devices: FallbackEnumerator{Primary: LSBLKEnumerator{}, Secondary: SysfsEnumerator{}},
		Mounts:  mounts,
		Snapshot: FilesystemSnapshotChecker{
			Mounts:      mounts,
			Filesystems: cfg.Engine.SnapshotFilesystems,
			Flag:        cfg.Engine.SnapshotFlag,
		},
		Logger: logger,
	}
}

// Resolve maps source to a root. Errors wrap services.ErrMissingSource when
// nothing matches (or no configured sub-path exists) and
// services.ErrMultiPartition when the identifier matches more than one
// mounted partition.
func (r *Resolver) Resolve(ctx context.Context, source config.Source) (Root, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(r.Logger, "volume"))
	identifier := strings.TrimSpace(source.Identifier)
	root := Root{SourceIdentifier: identifier}

	if info, err := os.Stat(identifier); err == nil && info.IsDir() {
		root.Path = identifier
	} else {
		mountPoints, err := r.lookup(ctx, identifier)
		if err != nil {
			return root, services.Wrap(services.ErrMissingSource, "", "resolve source", identifier, err)
		}
		switch len(mountPoints) {
		case 0:
			return root, services.Wrap(services.ErrMissingSource, "", "resolve source",
				fmt.Sprintf("%s: no matching path or mounted device", identifier), nil)
		case 1:
			root.Path = mountPoints[0]
			logger.Debug("device source resolved",
				logging.String("identifier", identifier),
				logging.String("mount_point", root.Path),
			)
		default:
			return root, services.Wrap(services.ErrMultiPartition, "", "resolve source",
				fmt.Sprintf("%s matches %d mounted partitions (%s)", identifier, len(mountPoints), strings.Join(mountPoints, ", ")), nil)
		}
	}

	if r.Snapshot != nil {
		capable, err := r.Snapshot.SnapshotCapable(root.Path)
		if err != nil {
			logger.Debug("snapshot capability lookup failed", logging.String("path", root.Path), logging.Error(err))
		}
		root.SnapshotCapable = capable
	}

	if len(source.SubPaths) == 0 {
		root.Includes = []string{root.Path}
		return root, nil
	}
	for _, sub := range source.SubPaths {
		full := filepath.Join(root.Path, sub)
		if _, err := os.Stat(full); err != nil {
			root.Missing = append(root.Missing, full)
			continue
		}
		root.Includes = append(root.Includes, full)
	}
	if len(root.Includes) == 0 {
		return root, services.Wrap(services.ErrMissingSource, "", "resolve source",
			fmt.Sprintf("%s: none of the configured sub-paths exist", identifier), nil)
	}
	return root, nil
}

// lookup returns one mount point per mounted device matching identifier.
// A partition mounted more than once (bind mounts) still counts once.
func (r *Resolver) lookup(ctx context.Context, identifier string) ([]string, error) {
	if r.Devices == nil {
		return nil, nil
	}
	devices, err := r.Devices.Devices(ctx)
	if err != nil {
		return nil, err
	}
	var mounts []*mountinfo.Info
	if r.Mounts != nil {
		if mounts, err = r.Mounts.Mounts(); err != nil {
			return nil, fmt.Errorf("read mount table: %w", err)
		}
	}

	seenDevices := make(map[string]struct{})
	seenPoints := make(map[string]struct{})
	var points []string
	for _, dev := range r.match(devices, identifier) {
		if _, dup := seenDevices[dev.Name]; dup {
			continue
		}
		seenDevices[dev.Name] = struct{}{}
		mp := preferredMountPoint(dev, r.mountPointsOf(dev, mounts))
		if mp == "" {
			continue
		}
		if _, dup := seenPoints[mp]; dup {
			continue
		}
		seenPoints[mp] = struct{}{}
		points = append(points, mp)
	}
	sort.Strings(points)
	return points, nil
}

// preferredMountPoint picks the mount lsblk reported for dev, otherwise the
// shortest candidate.
func preferredMountPoint(dev Device, candidates []string) string {
	for _, reported := range dev.MountPoints {
		for _, mp := range candidates {
			if mp == reported {
				return mp
			}
		}
	}
	best := ""
	for _, mp := range candidates {
		if best == "" || len(mp) < len(best) || (len(mp) == len(best) && mp < best) {
			best = mp
		}
	}
	return best
}

// match selects devices by serial, disk name, or label. A matched disk
// expands to itself plus all of its partitions.
func (r *Resolver) match(devices []Device, identifier string) []Device {
	name := strings.TrimPrefix(identifier, "/dev/")
	fold := cases.Fold()
	folded := fold.String(identifier)

	disks := make(map[string]struct{})
	var matched []Device
	for _, dev := range devices {
		switch {
		case dev.Name == name:
			if dev.IsDisk() {
				disks[dev.Name] = struct{}{}
			} else {
				matched = append(matched, dev)
			}
		case dev.IsDisk() && dev.Serial != "" && strings.EqualFold(dev.Serial, identifier):
			disks[dev.Name] = struct{}{}
		case dev.Label != "" && fold.String(dev.Label) == folded:
			matched = append(matched, dev)
		}
	}
	for _, dev := range devices {
		if _, ok := disks[dev.Name]; ok {
			matched = append(matched, dev)
			continue
		}
		if _, ok := disks[dev.Parent]; ok {
			matched = append(matched, dev)
		}
	}
	return matched
}

// mountPointsOf returns the mount points of dev confirmed by the mount
// table. Without a mount table the enumerator's view is trusted.
func (r *Resolver) mountPointsOf(dev Device, mounts []*mountinfo.Info) []string {
	if mounts == nil {
		return dev.MountPoints
	}
	source := "/dev/" + dev.Name
	var points []string
	for _, m := range mounts {
		if m.Source == source {
			points = append(points, m.Mountpoint)
			continue
		}
		for _, mp := range dev.MountPoints {
			if m.Mountpoint == mp {
				points = append(points, mp)
				break
			}
		}
	}
	return points
}
