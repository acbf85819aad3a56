package main

import (
	"fmt"
	"os"

	"github.com/containerd/log"
	"github.com/moby/sys/reexec"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootOptions struct {
	logLevel string
	stateDir string
}

func newVesselCommand() *cobra.Command {
	opts := rootOptions{}

	cmd := &cobra.Command{
		Use:           "vessel",
		Short:         "A small OCI container runtime.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return configureLogging(opts.logLevel)
		},
	}

	installRootFlags(cmd.PersistentFlags(), &opts)

	cmd.AddCommand(
		newCreateCommand(&opts),
		newStartCommand(&opts),
		newStateCommand(&opts),
		newDeleteCommand(&opts),
	)
	return cmd
}

// installRootFlags adds the flags shared by every subcommand to the
// pflag.FlagSet.
func installRootFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVar(&opts.logLevel, "log-level", "warn", `Logging level ("debug"|"info"|"warn"|"error")`)
	flags.StringVar(&opts.stateDir, "root", defaultStateDir(), "Directory for container state")
}

func configureLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("unable to parse logging level: %s", level)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: log.RFC3339NanoFixed,
		FullTimestamp:   true,
	})
	return nil
}

func defaultStateDir() string {
	if os.Geteuid() != 0 {
		if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
			return dir + "/vessel"
		}
	}
	return "/run/vessel"
}

func main() {
	// The container init stage re-enters through the same binary; it must
	// be dispatched before anything else runs.
	if reexec.Init() {
		return
	}
	if err := newVesselCommand().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
