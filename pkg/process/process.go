// Package process provides a way to probe other, non-child processes.
package process

import (
	"golang.org/x/sys/unix"
)

// Alive reports whether a process with the given pid exists. It never
// matches pid 0 or negative pids, which address process groups rather
// than a single process.
func Alive(pid int) bool {
	if pid < 1 {
		return false
	}
	switch err := unix.Kill(pid, 0); err {
	case unix.EPERM:
		// The process exists, we just lack the permission to signal it.
		return true
	case nil:
		return true
	default:
		return false
	}
}
