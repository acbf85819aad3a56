package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/containerd/log"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"

	"github.com/vessel-dev/vessel/cgroups"
	"github.com/vessel-dev/vessel/hooks"
	"github.com/vessel-dev/vessel/internal/otelutil"
	"github.com/vessel-dev/vessel/intelrdt"
	"github.com/vessel-dev/vessel/notify"
	"github.com/vessel-dev/vessel/pkg/pidfile"
	"github.com/vessel-dev/vessel/process"
	"github.com/vessel-dev/vessel/workload"
)

// oomScoreAdjPath is the kernel tunable for the current process's OOM score.
// It becomes unwritable for unprivileged processes once the process is
// non-dumpable, which dictates write ordering in runContainer.
const oomScoreAdjPath = "/proc/self/oom_score_adj"

// Builder owns the end-to-end creation of one container (or one tenant
// process). It is fully assembled before Create is called and not reused
// afterwards; the only field it mutates is the optional Container record.
type Builder struct {
	// ContainerType decides whether a failure rolls the container back:
	// only an init container's failure may destroy container state.
	ContainerType process.ContainerType
	// ContainerID is the container's unique identity.
	ContainerID string
	// UseSystemd asks for systemd-managed cgroups. Forced on when a user
	// namespace is configured, which requires systemd delegation.
	UseSystemd bool
	// Spec is the container's runtime spec. Shared, read-only.
	Spec *specs.Spec
	// Rootfs is the container's root filesystem.
	Rootfs string
	// PidFile, when set, receives the new process id in decimal text.
	PidFile string
	// ConsoleSocket carries the pty master fd to the manager, when set.
	// Ownership moves into the argument bundle at dispatch.
	ConsoleSocket *os.File
	// UserNSConfig is set when a new user namespace is requested.
	UserNSConfig *process.UserNamespaceConfig
	// NotifyPath is where the start rendezvous socket is bound.
	NotifyPath string
	// Container is the persisted state record. Present for managed
	// containers, absent for some tenant/exec flows.
	Container *Container
	// PreserveFDs, Detached, NoPivot and AsSibling are consumed verbatim
	// by the launcher.
	PreserveFDs int
	Detached    bool
	NoPivot     bool
	AsSibling   bool
	// Stdin, Stdout, Stderr are handed to the new process. Ownership
	// moves into the argument bundle at dispatch.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	// Executor runs the workload inside the prepared process. Cloned at
	// dispatch; nil means the default exec executor.
	Executor workload.Executor

	// Launcher produces the container main process. Nil means the
	// built-in reexec launcher.
	Launcher process.Launcher
	// Hooks runs lifecycle hook stages. Nil means host process execution.
	Hooks hooks.Runner
	// NewCgroupManager constructs the cgroup manager handle used during
	// rollback. Nil means cgroups.New.
	NewCgroupManager func(cgroups.Config) (cgroups.Manager, error)
	// DeleteResctrl removes a container's resctrl subdirectory during
	// rollback. Nil means intelrdt.DeleteSubdirectory.
	DeleteResctrl func(id string) error
	// Syscalls is the interface to process-wide kernel toggles. Nil
	// means the real kernel interfaces.
	Syscalls Syscalls
}

// Syscalls is the narrow interface to the process-wide kernel tunables the
// forward sequence writes. It exists as a seam because both operations
// change the state of the calling process itself.
type Syscalls interface {
	// SetOOMScoreAdj writes the OOM score adjustment of the current
	// process.
	SetOOMScoreAdj(score int) error
	// SetDumpable flips the process-wide dumpable flag.
	SetDumpable(dumpable bool) error
}

type hostSyscalls struct{}

func (hostSyscalls) SetOOMScoreAdj(score int) error {
	return os.WriteFile(oomScoreAdjPath, []byte(strconv.Itoa(score)), 0o600)
}

func (hostSyscalls) SetDumpable(dumpable bool) error {
	var v uintptr
	if dumpable {
		v = 1
	}
	return unix.Prctl(unix.PR_SET_DUMPABLE, v, 0, 0, 0)
}

// Create attempts the forward creation sequence and returns the new process
// id. On failure of an init container it additionally runs the rollback
// sequence and returns a *CreateError combining the original failure with
// any rollback failure; a tenant failure is returned as-is, since it must
// not touch state belonging to the container being joined.
func (b *Builder) Create(ctx context.Context) (pid int, retErr error) {
	ctx, span := otelutil.Tracer("container").Start(ctx, "container.create", trace.WithAttributes(
		attribute.String("container.id", b.ContainerID),
		attribute.String("container.type", b.ContainerType.String()),
	))
	defer func() {
		otelutil.RecordStatus(span, retErr)
		span.End()
	}()

	pid, err := b.runContainer(ctx)
	if err == nil {
		return pid, nil
	}
	if b.ContainerType != process.InitContainer {
		return 0, err
	}
	return 0, &CreateError{Cause: err, Cleanup: b.cleanupContainer(ctx)}
}

// runContainer performs the ordered forward sequence. The ordering is a
// correctness contract, not an implementation convenience; see the comments
// on the individual steps.
func (b *Builder) runContainer(ctx context.Context) (_ int, retErr error) {
	linux := b.Spec.Linux
	if linux == nil {
		return 0, ErrMissingLinux
	}
	useSystemd := b.UseSystemd || b.UserNSConfig != nil
	cgroupConfig := cgroups.Config{
		CgroupPath:    cgroups.DerivePath(linux.CgroupsPath, b.ContainerID, useSystemd),
		Systemd:       useSystemd,
		ContainerName: b.ContainerID,
	}
	proc := b.Spec.Process
	if proc == nil {
		return 0, ErrMissingProcess
	}

	// The notify socket must exist before anything enters a new mount or
	// user namespace: its path lives outside the container rootfs and
	// may become unreachable, or unwritable for an unprivileged user,
	// once such a namespace is entered.
	listener, err := notify.NewListener(b.NotifyPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		if retErr != nil {
			listener.Close()
		}
	}()

	// The OOM score write has to precede the non-dumpable flag below:
	// once the process is non-dumpable, /proc/self/oom_score_adj rejects
	// writes from anything but a fully privileged process. Children
	// inherit the value on fork, so writing it here covers the init
	// process as well.
	if proc.OOMScoreAdj != nil {
		log.G(ctx).WithField("value", *proc.OOMScoreAdj).Debug("setting OOM score adjustment")
		if err := b.syscalls().SetOOMScoreAdj(*proc.OOMScoreAdj); err != nil {
			return 0, fmt.Errorf("write oom score adjustment: %w", err)
		}
	}

	// Becoming non-dumpable keeps processes in the namespaces being
	// joined from ptracing or inspecting this one mid-transition. With
	// zero namespaces declared there is no security boundary to cross,
	// and forcing it anyway breaks rootless setups, so the step is
	// skipped entirely in that case.
	if len(linux.Namespaces) > 0 {
		if err := b.syscalls().SetDumpable(false); err != nil {
			return 0, fmt.Errorf("set dumpable to false: %w", err)
		}
	}

	// Everything past this point happens in the new process's context,
	// so the bundle takes copies: the spec handle is shared read-only,
	// descriptors cross as raw numbers while their ownership moves to
	// the launcher, and the executor is cloned.
	executor := b.Executor
	if executor == nil {
		executor = workload.Default()
	}
	args := &process.Args{
		ContainerType:  b.ContainerType,
		Spec:           b.Spec,
		Rootfs:         b.Rootfs,
		ConsoleSocket:  rawFD(b.ConsoleSocket),
		NotifyListener: listener,
		PreserveFDs:    b.PreserveFDs,
		State:          b.containerState(),
		UserNSConfig:   b.UserNSConfig,
		CgroupConfig:   cgroupConfig,
		Detached:       b.Detached,
		Executor:       executor.Clone(),
		NoPivot:        b.NoPivot,
		Stdin:          rawFD(b.Stdin),
		Stdout:         rawFD(b.Stdout),
		Stderr:         rawFD(b.Stderr),
		AsSibling:      b.AsSibling,
	}

	initPid, cleanupResctrl, err := b.launcher().Launch(ctx, args)
	if err != nil {
		log.G(ctx).WithError(err).Error("failed to run container process")
		return 0, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	if b.PidFile != "" {
		if err := pidfile.Write(b.PidFile, initPid); err != nil {
			log.G(ctx).WithError(err).Error("failed to write pid file")
			return 0, err
		}
	}

	if b.Container != nil {
		// The single state-publishing point: status, creator, pid and
		// the resctrl flag all land in one save, so no reader can see
		// a pid with the status still unset.
		err := b.Container.
			SetStatus(Created).
			SetCreator(uint32(unix.Geteuid())).
			SetPid(initPid).
			SetCleanUpIntelRdt(cleanupResctrl).
			SetCgroup(cgroupConfig.CgroupPath, cgroupConfig.Systemd).
			Save(ctx)
		if err != nil {
			return 0, err
		}
	}

	if b.ContainerType == process.InitContainer && b.Spec.Hooks != nil {
		if err := b.hooksRunner().Run(ctx, b.Spec.Hooks.CreateRuntime, b.containerState()); err != nil {
			return 0, fmt.Errorf("create-runtime hooks: %w", err)
		}
	}

	return initPid, nil
}

// cleanupContainer reverses whatever the forward sequence may have created.
// It re-derives everything from the builder's own configuration, since the
// forward sequence can have failed before reaching any given step. All steps
// are best-effort and independent; their errors are collected, not
// fail-fast.
func (b *Builder) cleanupContainer(ctx context.Context) error {
	linux := b.Spec.Linux
	if linux == nil {
		return ErrMissingLinux
	}
	useSystemd := b.UseSystemd || b.UserNSConfig != nil
	mgr, err := b.newCgroupManager(cgroups.Config{
		CgroupPath:    cgroups.DerivePath(linux.CgroupsPath, b.ContainerID, useSystemd),
		Systemd:       useSystemd,
		ContainerName: b.ContainerID,
	})
	if err != nil {
		return err
	}

	var errs []error

	if err := mgr.Destroy(); err != nil {
		log.G(ctx).WithError(err).Error("failed to remove cgroup")
		errs = append(errs, err)
	}

	if b.Container != nil {
		if b.Container.CleanUpIntelRdtSubdirectory {
			if err := b.deleteResctrl(b.Container.ID); err != nil {
				log.G(ctx).WithFields(log.Fields{
					"container": b.Container.ID,
					"error":     err,
				}).Error("failed to delete resctrl subdirectory")
				errs = append(errs, err)
			}
		}
		if _, err := os.Stat(b.Container.Root); err == nil {
			if err := os.RemoveAll(b.Container.Root); err != nil {
				log.G(ctx).WithFields(log.Fields{
					"root":  b.Container.Root,
					"error": err,
				}).Error("failed to delete container root")
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to cleanup container: %w", errors.Join(errs...))
	}
	return nil
}

func (b *Builder) containerState() *specs.State {
	if b.Container == nil {
		return nil
	}
	return b.Container.OCIState()
}

func (b *Builder) launcher() process.Launcher {
	if b.Launcher != nil {
		return b.Launcher
	}
	return process.NewDefaultLauncher()
}

func (b *Builder) hooksRunner() hooks.Runner {
	if b.Hooks != nil {
		return b.Hooks
	}
	return hooks.Default()
}

func (b *Builder) newCgroupManager(c cgroups.Config) (cgroups.Manager, error) {
	if b.NewCgroupManager != nil {
		return b.NewCgroupManager(c)
	}
	return cgroups.New(c)
}

func (b *Builder) syscalls() Syscalls {
	if b.Syscalls != nil {
		return b.Syscalls
	}
	return hostSyscalls{}
}

func (b *Builder) deleteResctrl(id string) error {
	if b.DeleteResctrl != nil {
		return b.DeleteResctrl(id)
	}
	return intelrdt.DeleteSubdirectory(id)
}

func rawFD(f *os.File) int {
	if f == nil {
		return -1
	}
	return int(f.Fd())
}
