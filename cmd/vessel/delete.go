package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/vessel-dev/vessel/cgroups"
	"github.com/vessel-dev/vessel/container"
	"github.com/vessel-dev/vessel/intelrdt"
	"github.com/vessel-dev/vessel/pkg/process"
)

func newDeleteCommand(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete CONTAINER-ID",
		Short: "Remove a container's cgroup, resctrl and state directories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, root, args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete regardless of status")
	return cmd
}

func runDelete(cmd *cobra.Command, root *rootOptions, id string, force bool) error {
	ctx := cmd.Context()
	store := container.NewFileStore()
	ctr, err := store.Load(ctx, filepath.Join(root.stateDir, id))
	if err != nil {
		return err
	}
	if ctr.Pid != 0 && process.Alive(ctr.Pid) {
		ctr.SetStatus(container.Running)
	} else if ctr.Status == container.Running {
		ctr.SetStatus(container.Stopped)
	}
	if !force && !ctr.Status.CanDelete() {
		return fmt.Errorf("cannot delete container %s in status %s", id, ctr.Status)
	}

	// Mirrors the rollback sequence: every step runs, errors accumulate.
	var errs []error

	cfg := cgroups.Config{
		CgroupPath:    ctr.CgroupsPath,
		Systemd:       ctr.UseSystemd,
		ContainerName: id,
	}
	if cfg.CgroupPath == "" {
		cfg.CgroupPath = cgroups.DerivePath("", id, cfg.Systemd)
	}
	if mgr, err := cgroups.New(cfg); err != nil {
		errs = append(errs, err)
	} else if err := mgr.Destroy(); err != nil {
		errs = append(errs, err)
	}

	if ctr.CleanUpIntelRdtSubdirectory {
		if err := intelrdt.DeleteSubdirectory(id); err != nil {
			log.G(ctx).WithError(err).Error("failed to delete resctrl subdirectory")
			errs = append(errs, err)
		}
	}

	if err := store.Remove(ctx, ctr); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to delete container %s: %w", id, errors.Join(errs...))
	}
	return nil
}
