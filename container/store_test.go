package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"gotest.tools/v3/assert"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore()
	root := filepath.Join(t.TempDir(), "abc123")

	c := New("abc123", root, "/run/bundles/abc123", store)
	c.SetStatus(Created).SetCreator(1000).SetPid(4242).SetCleanUpIntelRdt(true)
	assert.NilError(t, c.Save(ctx))

	loaded, err := store.Load(ctx, root)
	assert.NilError(t, err)
	assert.Equal(t, loaded.ID, "abc123")
	assert.Equal(t, loaded.Bundle, "/run/bundles/abc123")
	assert.Equal(t, loaded.Status, Created)
	assert.Equal(t, loaded.Creator, uint32(1000))
	assert.Equal(t, loaded.Pid, 4242)
	assert.Check(t, loaded.CleanUpIntelRdtSubdirectory)

	// A loaded record is save-able again.
	loaded.SetStatus(Running)
	assert.NilError(t, loaded.Save(ctx))
	reloaded, err := store.Load(ctx, root)
	assert.NilError(t, err)
	assert.Equal(t, reloaded.Status, Running)
}

func TestFileStoreLoadMissing(t *testing.T) {
	_, err := NewFileStore().Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Check(t, errdefs.IsNotFound(err))
}

func TestFileStoreRemove(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore()
	root := filepath.Join(t.TempDir(), "gone")

	c := New("gone", root, t.TempDir(), store)
	assert.NilError(t, c.Save(ctx))
	assert.NilError(t, store.Remove(ctx, c))

	_, err := os.Stat(root)
	assert.Check(t, os.IsNotExist(err))
}
