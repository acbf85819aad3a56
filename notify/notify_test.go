package notify

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestRendezvous(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")

	l, err := NewListener(path)
	assert.NilError(t, err)
	defer l.Close()
	assert.Equal(t, l.Path(), path)

	errC := make(chan error, 1)
	go func() {
		errC <- NewSocket(path).NotifyContainerStart(context.Background())
	}()

	assert.NilError(t, l.WaitForContainerStart(context.Background()))
	assert.NilError(t, <-errC)
}

func TestUnexpectedMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")

	l, err := NewListener(path)
	assert.NilError(t, err)
	defer l.Close()

	go func() {
		conn, err := net.Dial("unix", path)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("abort"))
	}()

	err = l.WaitForContainerStart(context.Background())
	assert.ErrorContains(t, err, "unexpected message")
}

func TestPathTooLong(t *testing.T) {
	path := filepath.Join(t.TempDir(), strings.Repeat("n", 120), "notify.sock")
	_, err := NewListener(path)
	assert.ErrorContains(t, err, "longer than")
}

func TestListenerFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")

	l, err := NewListener(path)
	assert.NilError(t, err)

	f, err := l.File()
	assert.NilError(t, err)
	defer l.Close()

	l2, err := ListenerFromFile(f, path)
	assert.NilError(t, err)
	f.Close()
	assert.Equal(t, l2.Path(), path)

	errC := make(chan error, 1)
	go func() {
		errC <- NewSocket(path).NotifyContainerStart(context.Background())
	}()
	assert.NilError(t, l2.WaitForContainerStart(context.Background()))
	assert.NilError(t, <-errC)
}

func TestCloseUnlinksSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")

	l, err := NewListener(path)
	assert.NilError(t, err)
	assert.NilError(t, l.Close())

	_, err = os.Stat(path)
	assert.Check(t, os.IsNotExist(err))
}
