// Package pidfile provides helpers to record the process ID of a container
// init process in a file, and to read such a file back.
package pidfile

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/vessel-dev/vessel/pkg/process"
)

// Read reads the pid file at path and returns the recorded pid if it refers
// to a process that is still alive, or 0 otherwise. It returns an error when
// the file cannot be read; malformed content is treated as "no pid".
func Read(path string) (pid int, _ error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err = strconv.Atoi(string(bytes.TrimSpace(b)))
	if err != nil {
		return 0, nil
	}
	if pid > 0 && process.Alive(pid) {
		return pid, nil
	}
	return 0, nil
}

// Write records pid at path as its decimal textual representation. The file
// is written exactly once per created container, so an existing file holding
// the pid of a live process is an error, not something to overwrite.
func Write(path string, pid int) error {
	if pid < 1 {
		return fmt.Errorf("invalid pid (%d): only positive pids are allowed", pid)
	}
	oldPID, err := Read(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if oldPID != 0 {
		return fmt.Errorf("pid file %s: process with pid %d is still running", path, oldPID)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}
