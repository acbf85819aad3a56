// Package container holds the persisted record of a single container and the
// builder that orchestrates container creation around it.
package container

import (
	"context"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Container is the persisted record of one container: its identity, where it
// lives on disk and how far through its lifecycle it is. It is mutated only
// by the orchestrator; inspection commands read it through the state store.
type Container struct {
	// ID is the container's unique, stable identity.
	ID string `json:"id"`
	// Root is the runtime-owned state directory of this container. The
	// state record itself lives inside it.
	Root string `json:"root"`
	// Bundle is the directory holding the container's spec and rootfs.
	Bundle string `json:"bundle"`
	// Status is the lifecycle position. Never persisted as Created
	// without Pid also being set.
	Status Status `json:"status"`
	// Creator is the effective uid of the process that created the
	// container.
	Creator uint32 `json:"creator"`
	// Pid is the container init (or tenant) process id.
	Pid int `json:"pid,omitempty"`
	// CleanUpIntelRdtSubdirectory records whether a resctrl subdirectory
	// named after the container was created and must be removed with it.
	CleanUpIntelRdtSubdirectory bool `json:"cleanUpIntelRdtSubdirectory,omitempty"`
	// CgroupsPath is the cgroup location derived at creation, kept so
	// later lifecycle commands tear down the same group.
	CgroupsPath string `json:"cgroupsPath,omitempty"`
	// UseSystemd records whether the cgroup is systemd-managed.
	UseSystemd bool `json:"useSystemd,omitempty"`
	// CreatedAt is when the record came into existence.
	CreatedAt time.Time `json:"createdAt"`

	store StateStore
}

// New returns a Container record in the Creating status, backed by the given
// store.
func New(id, root, bundle string, store StateStore) *Container {
	return &Container{
		ID:        id,
		Root:      root,
		Bundle:    bundle,
		Status:    Creating,
		CreatedAt: time.Now().UTC(),
		store:     store,
	}
}

// SetStatus updates the lifecycle status. The change is not visible to other
// readers until Save.
func (c *Container) SetStatus(s Status) *Container {
	c.Status = s
	return c
}

// SetCreator records the effective uid of the creating process.
func (c *Container) SetCreator(uid uint32) *Container {
	c.Creator = uid
	return c
}

// SetPid records the container process id.
func (c *Container) SetPid(pid int) *Container {
	c.Pid = pid
	return c
}

// SetCleanUpIntelRdt records whether a resctrl subdirectory must be removed
// together with the container.
func (c *Container) SetCleanUpIntelRdt(v bool) *Container {
	c.CleanUpIntelRdtSubdirectory = v
	return c
}

// SetCgroup records where the container's cgroup lives and which backend
// manages it.
func (c *Container) SetCgroup(path string, systemd bool) *Container {
	c.CgroupsPath = path
	c.UseSystemd = systemd
	return c
}

// Save persists the record through the state store in a single atomic step.
// No reader observes a partially updated record.
func (c *Container) Save(ctx context.Context) error {
	return c.store.Save(ctx, c)
}

// OCIState returns the container's state in the shape lifecycle hooks and
// external tooling expect.
func (c *Container) OCIState() *specs.State {
	return &specs.State{
		Version: specs.Version,
		ID:      c.ID,
		Status:  specs.ContainerState(c.Status),
		Pid:     c.Pid,
		Bundle:  c.Bundle,
	}
}
