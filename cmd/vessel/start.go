package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vessel-dev/vessel/container"
	"github.com/vessel-dev/vessel/notify"
)

func newStartCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start CONTAINER-ID",
		Short: "Release a created container into its workload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, root, args[0])
		},
	}
}

func runStart(cmd *cobra.Command, root *rootOptions, id string) error {
	ctx := cmd.Context()
	store := container.NewFileStore()
	ctr, err := store.Load(ctx, filepath.Join(root.stateDir, id))
	if err != nil {
		return err
	}
	if !ctr.Status.CanStart() {
		return fmt.Errorf("cannot start container %s in status %s", id, ctr.Status)
	}

	sock := notify.NewSocket(filepath.Join(ctr.Root, notifySocketName))
	if err := sock.NotifyContainerStart(ctx); err != nil {
		return err
	}

	return ctr.SetStatus(container.Running).Save(ctx)
}
