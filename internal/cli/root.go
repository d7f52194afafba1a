// Package cli is the bookingsync command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// configPath resolves the flag, then CONFIG_PATH, then the default.
func (o *RootOptions) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// NewRootCommand creates the bookingsync command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "bookingsync",
		Short:         "Offline-first booking agent",
		Long:          "Captures bookings through a step-by-step wizard, queues them while offline and syncs them to the booking API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $CONFIG_PATH or "+defaultConfigPath+")")

	cmd.AddCommand(NewAgentCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewZonesCommand(opts))

	return cmd
}
