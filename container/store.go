package container

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/moby/locker"
	"github.com/moby/sys/atomicwriter"
)

// stateFilename is the record file inside each container's Root directory.
const stateFilename = "state.json"

// StateStore persists and retrieves container records. Save must be atomic:
// a concurrent reader sees either the previous record or the new one, never
// a mix.
type StateStore interface {
	Save(ctx context.Context, c *Container) error
	Load(ctx context.Context, root string) (*Container, error)
	Remove(ctx context.Context, c *Container) error
}

type fileStore struct {
	locks *locker.Locker
}

// NewFileStore returns a StateStore writing one JSON record per container
// under the container's Root directory. Writes for the same container id are
// serialized; atomicity of each write comes from a rename.
func NewFileStore() StateStore {
	return &fileStore{locks: locker.New()}
}

func (s *fileStore) Save(ctx context.Context, c *Container) error {
	s.locks.Lock(c.ID)
	defer s.locks.Unlock(c.ID)

	if err := os.MkdirAll(c.Root, 0o700); err != nil {
		return fmt.Errorf("create container state directory: %w", err)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal container state: %w", err)
	}
	if err := atomicwriter.WriteFile(filepath.Join(c.Root, stateFilename), b, 0o600); err != nil {
		return fmt.Errorf("write container state: %w", err)
	}
	return nil
}

func (s *fileStore) Load(_ context.Context, root string) (*Container, error) {
	b, err := os.ReadFile(filepath.Join(root, stateFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no container state at %s: %w", root, errdefs.ErrNotFound)
		}
		return nil, fmt.Errorf("read container state: %w", err)
	}
	c := &Container{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("unmarshal container state: %w", err)
	}
	c.store = s
	return c, nil
}

func (s *fileStore) Remove(_ context.Context, c *Container) error {
	s.locks.Lock(c.ID)
	defer s.locks.Unlock(c.ID)
	return os.RemoveAll(c.Root)
}
