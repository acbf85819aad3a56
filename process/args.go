// Package process defines the argument bundle handed to a process launcher
// and the launcher contract itself. The launcher owns namespace entry and the
// mechanics of producing the container init (or tenant) process; everything
// it needs crosses the boundary inside Args.
package process

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/vessel-dev/vessel/cgroups"
	"github.com/vessel-dev/vessel/notify"
	"github.com/vessel-dev/vessel/workload"
)

// ContainerType selects between creating a new container and attaching a
// process to a running one.
type ContainerType int

const (
	// InitContainer originates a new container's lifecycle.
	InitContainer ContainerType = iota
	// TenantContainer joins the namespaces of an existing container, e.g.
	// for an exec session.
	TenantContainer
)

func (t ContainerType) String() string {
	switch t {
	case InitContainer:
		return "init"
	case TenantContainer:
		return "tenant"
	default:
		return "unknown"
	}
}

// UserNamespaceConfig holds the id mappings for a new user namespace.
type UserNamespaceConfig struct {
	UIDMappings []specs.LinuxIDMapping
	GIDMappings []specs.LinuxIDMapping
}

// Args is assembled once per creation attempt and passed to the launcher by
// value semantics: the spec handle is shared read-only, descriptors are raw
// numbers whose ownership transfers to the launcher, and the notify listener
// is moved in as its single owner.
type Args struct {
	// ContainerType indicates whether an init or a tenant process is
	// being produced.
	ContainerType ContainerType
	// Spec is the container's runtime spec, shared and never mutated.
	Spec *specs.Spec
	// Rootfs is the container's root filesystem path.
	Rootfs string
	// ConsoleSocket is the raw fd of the console socket, or -1.
	ConsoleSocket int
	// NotifyListener is the rendezvous the init process waits on before
	// exec'ing the workload.
	NotifyListener *notify.Listener
	// PreserveFDs is the count of additional fds (after stdio) to leave
	// open in the container process.
	PreserveFDs int
	// State is a snapshot of the managed container's identity, when one
	// is tracked. Nil for tenant flows without a state sidecar.
	State *specs.State
	// UserNSConfig is set when a new user namespace is requested.
	UserNSConfig *UserNamespaceConfig
	// CgroupConfig is applied to the new process by the launcher.
	CgroupConfig cgroups.Config
	// Detached indicates the runtime will not wait on the process.
	Detached bool
	// Executor runs the workload inside the prepared process. Cloned,
	// never shared, since it crosses into the new process's context.
	Executor workload.Executor
	// NoPivot disables pivot_root in favor of chroot-style jailing.
	NoPivot bool
	// Stdin, Stdout and Stderr are raw fd numbers, or -1.
	Stdin  int
	Stdout int
	Stderr int
	// AsSibling makes the init process a sibling of the calling process
	// instead of a child.
	AsSibling bool
}
