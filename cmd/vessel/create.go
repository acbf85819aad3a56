package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/moby/sys/userns"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/cobra"

	"github.com/vessel-dev/vessel/cgroups"
	"github.com/vessel-dev/vessel/container"
	"github.com/vessel-dev/vessel/process"
)

const notifySocketName = "notify.sock"

type createOptions struct {
	bundle      string
	pidFile     string
	detach      bool
	noPivot     bool
	systemd     bool
	preserveFDs int
}

func newCreateCommand(root *rootOptions) *cobra.Command {
	opts := createOptions{}

	cmd := &cobra.Command{
		Use:   "create [CONTAINER-ID]",
		Short: "Create a container from an OCI bundle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runCreate(cmd, root, &opts, id)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.bundle, "bundle", "b", ".", "Path to the OCI bundle")
	flags.StringVar(&opts.pidFile, "pid-file", "", "File to write the init process id to")
	flags.BoolVarP(&opts.detach, "detach", "d", true, "Do not wait on the init process")
	flags.BoolVar(&opts.noPivot, "no-pivot", false, "Use chroot instead of pivot_root")
	flags.BoolVar(&opts.systemd, "systemd-cgroup", defaultSystemdCgroup(), "Manage cgroups through systemd")
	flags.IntVar(&opts.preserveFDs, "preserve-fds", 0, "Number of additional fds to pass to the container")

	return cmd
}

// defaultSystemdCgroup prefers the systemd backend when the host runs
// systemd, except in rootless setups where delegation is not a given.
func defaultSystemdCgroup() bool {
	return cgroups.IsSystemdAvailable() && !userns.RunningInUserNS()
}

func runCreate(cmd *cobra.Command, root *rootOptions, opts *createOptions, id string) error {
	if id == "" {
		id = uuid.NewString()
	}
	bundle, err := filepath.Abs(opts.bundle)
	if err != nil {
		return err
	}
	spec, err := loadSpec(bundle)
	if err != nil {
		return err
	}
	rootfs := spec.Root.Path
	if !filepath.IsAbs(rootfs) {
		rootfs = filepath.Join(bundle, rootfs)
	}

	containerRoot := filepath.Join(root.stateDir, id)
	if _, err := os.Stat(containerRoot); err == nil {
		return fmt.Errorf("container %s already exists", id)
	}
	// The notify socket binds inside the container directory before the
	// first state save, so the directory has to exist up front.
	if err := os.MkdirAll(containerRoot, 0o700); err != nil {
		return err
	}
	store := container.NewFileStore()
	ctr := container.New(id, containerRoot, bundle, store)

	builder := &container.Builder{
		ContainerType: process.InitContainer,
		ContainerID:   id,
		UseSystemd:    opts.systemd,
		Spec:          spec,
		Rootfs:        rootfs,
		PidFile:       opts.pidFile,
		NotifyPath:    filepath.Join(containerRoot, notifySocketName),
		Container:     ctr,
		PreserveFDs:   opts.preserveFDs,
		Detached:      opts.detach,
		NoPivot:       opts.noPivot,
		UserNSConfig:  userNSConfig(spec),
	}
	if !opts.detach {
		builder.Stdin = os.Stdin
		builder.Stdout = os.Stdout
		builder.Stderr = os.Stderr
	}

	pid, err := builder.Create(cmd.Context())
	if err != nil {
		return err
	}

	// Tell a supervising systemd unit the container is up.
	if _, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), pid)
	return nil
}

// userNSConfig extracts the user namespace mappings when the bundle declares
// a new user namespace. A declared namespace with a path would mean joining
// an existing one, which carries no mappings of its own.
func userNSConfig(spec *specs.Spec) *process.UserNamespaceConfig {
	if spec.Linux == nil {
		return nil
	}
	for _, ns := range spec.Linux.Namespaces {
		if ns.Type == specs.UserNamespace && ns.Path == "" {
			return &process.UserNamespaceConfig{
				UIDMappings: spec.Linux.UIDMappings,
				GIDMappings: spec.Linux.GIDMappings,
			}
		}
	}
	return nil
}

func loadSpec(bundle string) (*specs.Spec, error) {
	f, err := os.Open(filepath.Join(bundle, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("open bundle spec: %w", err)
	}
	defer f.Close()

	spec := &specs.Spec{}
	if err := json.NewDecoder(f).Decode(spec); err != nil {
		return nil, fmt.Errorf("parse bundle spec: %w", err)
	}
	if spec.Root == nil {
		return nil, fmt.Errorf("bundle spec has no root filesystem")
	}
	return spec, nil
}
