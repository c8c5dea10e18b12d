package volume

import (
	"path/filepath"
	"strings"

	"github.com/moby/sys/mountinfo"
)

// MountTable lists the current mounts.
type MountTable interface {
	Mounts() ([]*mountinfo.Info, error)
}

// ProcMounts reads /proc/self/mountinfo.
type ProcMounts struct{}

func (ProcMounts) Mounts() ([]*mountinfo.Info, error) {
	return mountinfo.GetMounts(nil)
}

// containingMount returns the mount with the longest mount point that
// contains path.
func containingMount(mounts []*mountinfo.Info, path string) *mountinfo.Info {
	path = filepath.Clean(path)
	var best *mountinfo.Info
	for _, m := range mounts {
		mp := filepath.Clean(m.Mountpoint)
		if path != mp && !strings.HasPrefix(path, strings.TrimSuffix(mp, "/")+"/") {
			continue
		}
		if best == nil || len(mp) > len(filepath.Clean(best.Mountpoint)) {
			best = m
		}
	}
	return best
}

// SnapshotChecker decides whether a consistent-snapshot mode is available
// for a resolved root.
type SnapshotChecker interface {
	SnapshotCapable(path string) (bool, error)
}

// FilesystemSnapshotChecker answers true when the filesystem holding path
// is one of Filesystems and a snapshot flag is configured.
type FilesystemSnapshotChecker struct {
	Mounts      MountTable
	Filesystems []string
	Flag        string
}

func (c FilesystemSnapshotChecker) SnapshotCapable(path string) (bool, error) {
	if strings.TrimSpace(c.Flag) == "" || len(c.Filesystems) == 0 {
		return false, nil
	}
	table := c.Mounts
	if table == nil {
		table = ProcMounts{}
	}
	mounts, err := table.Mounts()
	if err != nil {
		return false, err
	}
	mount := containingMount(mounts, path)
	if mount == nil {
		return false, nil
	}
	for _, fsType := range c.Filesystems {
		if strings.EqualFold(fsType, mount.FSType) {
			return true, nil
		}
	}
	return false, nil
}
