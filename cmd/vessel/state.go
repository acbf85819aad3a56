package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vessel-dev/vessel/container"
)

func newStateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state CONTAINER-ID",
		Short: "Print the OCI state of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctr, err := container.NewFileStore().Load(cmd.Context(), filepath.Join(root.stateDir, args[0]))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ctr.OCIState())
		},
	}
}
