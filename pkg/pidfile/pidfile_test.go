package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"gotest.tools/v3/assert"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container.pid")

	err := Write(path, 0)
	assert.ErrorContains(t, err, "invalid pid")

	err = Write(path, os.Getpid())
	assert.NilError(t, err)

	b, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Equal(t, string(b), strconv.Itoa(os.Getpid()))

	pid, err := Read(path)
	assert.NilError(t, err)
	assert.Equal(t, pid, os.Getpid())

	// The recorded process is still alive, so the file must not be clobbered.
	err = Write(path, os.Getpid())
	assert.ErrorContains(t, err, "still running")
}

func TestReadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container.pid")
	assert.NilError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	pid, err := Read(path)
	assert.NilError(t, err)
	assert.Equal(t, pid, 0)
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nosuchfile"))
	assert.Check(t, os.IsNotExist(err))
}
