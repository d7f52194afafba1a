package cli

import (
	"fmt"
	"time"

	"bookingsync/internal/export"

	"github.com/spf13/cobra"
)

// NewExportCommand writes the queue report workbook.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		statuses []string
		dir      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the offline queue to an Excel report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if dir == "" {
				dir = rt.cfg.Exports.Path
			}
			path, err := export.QueueReport(cmd.Context(), rt.store, dir, time.Now(), filter...)
			if err != nil {
				return err
			}
			rt.logger.Info().Str("file_path", path).Msg("Queue report written")
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only these statuses")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default exports.path)")
	return cmd
}
