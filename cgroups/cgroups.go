// Package cgroups constructs and tears down the per-container controller
// group. The controller internals live in github.com/opencontainers/cgroups;
// this package only derives the container's cgroup location from its spec,
// decides between the fs and systemd backends, and exposes the narrow manager
// surface the runtime needs.
package cgroups

import (
	"fmt"
	"strings"

	ocicgroups "github.com/opencontainers/cgroups"
	"github.com/opencontainers/cgroups/manager"
	"github.com/opencontainers/cgroups/systemd"
)

// Config describes the controller group for a single container. It is built
// during container creation and handed to the process launcher; the launcher
// applies it in the child's context.
type Config struct {
	// CgroupPath is the location of the cgroup, as derived by DerivePath.
	// For the systemd backend it has the "slice:prefix:name" form.
	CgroupPath string

	// Systemd selects the systemd backend. It is forced on when a user
	// namespace is configured, since delegation only works through systemd
	// in that case.
	Systemd bool

	// ContainerName is the id of the container the group belongs to.
	ContainerName string
}

// Manager is the subset of the cgroup manager surface used by the runtime:
// placing the init process into the group, and removing the group again.
type Manager interface {
	Apply(pid int) error
	Destroy() error
	Exists() bool
	Path(subsystem string) string
}

// New constructs a manager for the given config. The returned manager has not
// created anything yet; creation happens on Apply.
func New(c Config) (Manager, error) {
	cg, err := parseConfig(c)
	if err != nil {
		return nil, err
	}
	m, err := manager.New(cg)
	if err != nil {
		return nil, fmt.Errorf("create cgroup manager for %s: %w", c.ContainerName, err)
	}
	return m, nil
}

// IsSystemdAvailable reports whether the systemd backend can be used on this
// host at all. Callers still force the backend on for user namespaces.
func IsSystemdAvailable() bool {
	return systemd.IsRunningSystemd()
}

// DerivePath resolves the cgroup location for a container from the cgroupsPath
// declared in its spec. An empty cgroupsPath falls back to a runtime-owned
// location named after the container.
func DerivePath(cgroupsPath, containerID string, useSystemd bool) string {
	if cgroupsPath != "" {
		return cgroupsPath
	}
	if useSystemd {
		return ":vessel:" + containerID
	}
	return "/vessel/" + containerID
}

func parseConfig(c Config) (*ocicgroups.Cgroup, error) {
	cg := &ocicgroups.Cgroup{
		Systemd:   c.Systemd,
		Resources: &ocicgroups.Resources{},
	}
	if !c.Systemd {
		cg.Name = c.ContainerName
		cg.Path = c.CgroupPath
		return cg, nil
	}
	// systemd paths follow the runc "slice:prefix:name" convention.
	parts := strings.Split(c.CgroupPath, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected cgroupsPath to be of format \"slice:prefix:name\" for systemd cgroups, got %q instead", c.CgroupPath)
	}
	cg.Parent = parts[0]
	if cg.Parent == "" {
		cg.Parent = "system.slice"
	}
	cg.ScopePrefix = parts[1]
	cg.Name = parts[2]
	if cg.Name == "" {
		cg.Name = c.ContainerName
	}
	return cg, nil
}
