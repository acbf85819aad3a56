package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/containerd/log"
	"github.com/moby/sys/reexec"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/opencontainers/selinux/go-selinux"
	"golang.org/x/sys/unix"

	"github.com/vessel-dev/vessel/cgroups"
	"github.com/vessel-dev/vessel/intelrdt"
	"github.com/vessel-dev/vessel/notify"
	"github.com/vessel-dev/vessel/workload"
)

// initStageName is the reexec entrypoint that becomes the container init.
const initStageName = "vessel-init"

func init() {
	reexec.Register(initStageName, initStage)
}

// Child fd layout. Stdio occupies 0-2, then the bootstrap payload pipe and
// the notify listener, then optional console socket and preserved fds.
const (
	payloadFD = 3
	notifyFD  = 4
)

var namespaceFlags = map[specs.LinuxNamespaceType]uintptr{
	specs.MountNamespace:   unix.CLONE_NEWNS,
	specs.UTSNamespace:     unix.CLONE_NEWUTS,
	specs.IPCNamespace:     unix.CLONE_NEWIPC,
	specs.PIDNamespace:     unix.CLONE_NEWPID,
	specs.NetworkNamespace: unix.CLONE_NEWNET,
	specs.UserNamespace:    unix.CLONE_NEWUSER,
	specs.CgroupNamespace:  unix.CLONE_NEWCGROUP,
	specs.TimeNamespace:    unix.CLONE_NEWTIME,
}

// initPayload is the bootstrap data streamed to the init stage over a pipe.
type initPayload struct {
	Spec       *specs.Spec `json:"spec"`
	Rootfs     string      `json:"rootfs"`
	NotifyPath string      `json:"notifyPath"`
	Chroot     bool        `json:"chroot"`
}

type defaultLauncher struct{}

// NewDefaultLauncher returns the built-in launcher. It re-executes the
// current binary into the init stage with the requested clone flags and runs
// the default workload executor there; custom executors or joining existing
// namespace paths require a purpose-built launcher.
func NewDefaultLauncher() Launcher {
	return defaultLauncher{}
}

func (defaultLauncher) Launch(ctx context.Context, args *Args) (_ int, cleanupResctrl bool, _ error) {
	if args.Spec == nil || args.Spec.Linux == nil {
		return 0, false, errors.New("launch requires a spec with a linux section")
	}
	if args.AsSibling {
		return 0, false, errors.New("sibling init processes are not supported by the default launcher")
	}
	if args.Executor != nil {
		if err := args.Executor.Validate(args.Spec); err != nil {
			return 0, false, fmt.Errorf("validate workload: %w", err)
		}
	}
	flags, err := cloneFlags(args.Spec.Linux.Namespaces)
	if err != nil {
		return 0, false, err
	}

	// Capture preserved fds before opening anything else, so the pipe and
	// socket dups below cannot shadow the caller's fd numbering.
	preserved := make([]*os.File, 0, args.PreserveFDs)
	for i := 0; i < args.PreserveFDs; i++ {
		preserved = append(preserved, os.NewFile(uintptr(payloadFD+i), fmt.Sprintf("preserved-%d", i)))
	}

	payloadR, payloadW, err := os.Pipe()
	if err != nil {
		return 0, false, err
	}
	defer payloadR.Close()
	defer payloadW.Close()

	notifyFile, err := args.NotifyListener.File()
	if err != nil {
		return 0, false, err
	}
	defer notifyFile.Close()

	cmd := reexec.Command(initStageName)
	cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: flags}
	if args.UserNSConfig != nil {
		cmd.SysProcAttr.UidMappings = idMappings(args.UserNSConfig.UIDMappings)
		cmd.SysProcAttr.GidMappings = idMappings(args.UserNSConfig.GIDMappings)
		cmd.SysProcAttr.GidMappingsEnableSetgroups = false
	}
	if args.Stdin >= 0 {
		cmd.Stdin = os.NewFile(uintptr(args.Stdin), "stdin")
	}
	if args.Stdout >= 0 {
		cmd.Stdout = os.NewFile(uintptr(args.Stdout), "stdout")
	}
	if args.Stderr >= 0 {
		cmd.Stderr = os.NewFile(uintptr(args.Stderr), "stderr")
	}
	cmd.ExtraFiles = []*os.File{payloadR, notifyFile}
	if args.ConsoleSocket >= 0 {
		cmd.ExtraFiles = append(cmd.ExtraFiles, os.NewFile(uintptr(args.ConsoleSocket), "console-socket"))
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, preserved...)

	if err := cmd.Start(); err != nil {
		return 0, false, fmt.Errorf("start init stage: %w", err)
	}
	pid := cmd.Process.Pid

	payload := initPayload{
		Spec:       args.Spec,
		Rootfs:     args.Rootfs,
		NotifyPath: args.NotifyListener.Path(),
		// pivot_root needs a private mount propagation setup that only
		// makes sense inside a new mount namespace; outside of one (or
		// when asked not to pivot) the init stage chroots instead.
		Chroot: flags&unix.CLONE_NEWNS == 0 || args.NoPivot,
	}
	if err := json.NewEncoder(payloadW).Encode(payload); err != nil {
		return pid, false, launchAbort(ctx, cmd, fmt.Errorf("send bootstrap payload: %w", err))
	}
	payloadW.Close()

	// The init stage blocks on the notify listener until `start`, so the
	// cgroup is in place before any workload instruction runs.
	mgr, err := cgroups.New(args.CgroupConfig)
	if err != nil {
		return pid, false, launchAbort(ctx, cmd, err)
	}
	if err := mgr.Apply(pid); err != nil {
		return pid, false, launchAbort(ctx, cmd, fmt.Errorf("apply cgroup config: %w", err))
	}

	if args.Spec.Linux.IntelRdt != nil {
		created, err := intelrdt.CreateSubdirectory(args.CgroupConfig.ContainerName)
		if err != nil {
			return pid, false, launchAbort(ctx, cmd, err)
		}
		cleanupResctrl = created
	}

	log.G(ctx).WithFields(log.Fields{
		"pid":       pid,
		"container": args.CgroupConfig.ContainerName,
	}).Debug("container main process created")
	return pid, cleanupResctrl, nil
}

// launchAbort kills a half-launched init stage and reaps it, so a failed
// launch does not leak the child. The original error is returned unchanged.
func launchAbort(ctx context.Context, cmd *exec.Cmd, cause error) error {
	if err := cmd.Process.Kill(); err != nil {
		log.G(ctx).WithError(err).Warn("failed to kill init stage after launch error")
	}
	_ = cmd.Wait()
	return cause
}

func cloneFlags(namespaces []specs.LinuxNamespace) (uintptr, error) {
	var flags uintptr
	for _, ns := range namespaces {
		f, ok := namespaceFlags[ns.Type]
		if !ok {
			return 0, fmt.Errorf("unsupported namespace type %q", ns.Type)
		}
		if ns.Path != "" {
			return 0, fmt.Errorf("joining existing %s namespace at %s is not supported by the default launcher", ns.Type, ns.Path)
		}
		flags |= f
	}
	return flags, nil
}

func idMappings(mappings []specs.LinuxIDMapping) []syscall.SysProcIDMap {
	out := make([]syscall.SysProcIDMap, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, syscall.SysProcIDMap{
			ContainerID: int(m.ContainerID),
			HostID:      int(m.HostID),
			Size:        int(m.Size),
		})
	}
	return out
}

// initStage runs in the new process. It finishes setup, waits on the notify
// socket for the go-ahead and execs the workload. It never returns.
func initStage() {
	ctx := context.Background()

	payloadFile := os.NewFile(payloadFD, "payload")
	var payload initPayload
	if err := json.NewDecoder(payloadFile).Decode(&payload); err != nil {
		log.G(ctx).WithError(err).Fatal("read bootstrap payload")
	}
	payloadFile.Close()

	listener, err := notify.ListenerFromFile(os.NewFile(notifyFD, "notify-socket"), payload.NotifyPath)
	if err != nil {
		log.G(ctx).WithError(err).Fatal("reconstruct notify listener")
	}

	if payload.Rootfs != "" {
		if err := enterRootfs(payload.Rootfs, payload.Chroot); err != nil {
			log.G(ctx).WithError(err).Fatal("enter rootfs")
		}
	}
	if proc := payload.Spec.Process; proc != nil && proc.SelinuxLabel != "" {
		if err := selinux.SetExecLabel(proc.SelinuxLabel); err != nil {
			log.G(ctx).WithError(err).Fatal("set selinux exec label")
		}
	}

	if err := listener.WaitForContainerStart(ctx); err != nil {
		log.G(ctx).WithError(err).Fatal("wait for container start")
	}
	listener.Close()

	if err := workload.Default().Exec(payload.Spec); err != nil {
		log.G(ctx).WithError(err).Fatal("exec workload")
	}
}

func enterRootfs(rootfs string, useChroot bool) error {
	if useChroot {
		if err := unix.Chroot(rootfs); err != nil {
			return fmt.Errorf("chroot %s: %w", rootfs, err)
		}
		return unix.Chdir("/")
	}
	// In a fresh mount namespace, make the rootfs a private mount point
	// and pivot into it.
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make / private: %w", err)
	}
	if err := unix.Mount(rootfs, rootfs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind rootfs: %w", err)
	}
	if err := unix.Chdir(rootfs); err != nil {
		return err
	}
	if err := unix.PivotRoot(".", "."); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount old root: %w", err)
	}
	return unix.Chdir("/")
}
