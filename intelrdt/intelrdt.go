// Package intelrdt manages the per-container subdirectory of the resctrl
// filesystem used for Intel RDT resource partitioning. Only creation and
// removal live here; writing schemata is the launcher's concern.
package intelrdt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/moby/sys/mountinfo"
)

// ErrNotMounted is returned when the host has no resctrl filesystem mounted,
// either because the hardware lacks RDT support or the kernel has it disabled.
var ErrNotMounted = errors.New("resctrl filesystem is not mounted")

var (
	rootOnce sync.Once
	rootPath string
	rootErr  error
)

func findRoot() (string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.FSTypeFilter("resctrl"))
	if err != nil {
		return "", fmt.Errorf("parse mountinfo: %w", err)
	}
	if len(mounts) == 0 {
		return "", ErrNotMounted
	}
	return mounts[0].Mountpoint, nil
}

// Root returns the mount point of the resctrl filesystem. The lookup result
// is cached for the lifetime of the process.
func Root() (string, error) {
	rootOnce.Do(func() {
		rootPath, rootErr = findRoot()
	})
	return rootPath, rootErr
}

// CreateSubdirectory creates the resctrl subdirectory named after the
// container id and reports whether it was newly created, in which case the
// caller owns its removal.
func CreateSubdirectory(id string) (created bool, _ error) {
	root, err := Root()
	if err != nil {
		return false, err
	}
	path := filepath.Join(root, id)
	if err := os.Mkdir(path, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create resctrl subdirectory: %w", err)
	}
	return true, nil
}

// DeleteSubdirectory removes the resctrl subdirectory named after the
// container id. The directory's entries are kernel-owned pseudo files, so a
// plain rmdir is the only valid removal.
func DeleteSubdirectory(id string) error {
	root, err := Root()
	if err != nil {
		return err
	}
	path := filepath.Join(root, id)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove resctrl subdirectory %s: %w", path, err)
	}
	return nil
}
