package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"bookingsync/internal/logging"
	"bookingsync/internal/models"
	"bookingsync/internal/worker"

	"github.com/spf13/cobra"
)

// NewQueueCommand groups the offline queue maintenance commands.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the offline booking queue",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueCleanupCommand(rootOpts))
	cmd.AddCommand(newQueueSyncCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		statuses []string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued bookings",
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

			entries, err := rt.store.List(cmd.Context(), filter...)
			if err != nil {
				return fmt.Errorf("list queue: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return writeEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only these statuses (pending,syncing,synced,failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newQueueCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove synced entries past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			removed, err := rt.store.Cleanup(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d synced entries\n", removed)
			return nil
		},
	}
}

func newQueueSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the booking API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if _, err := rt.engine.RecoverStale(ctx); err != nil {
				return fmt.Errorf("recover interrupted entries: %w", err)
			}
			if rt.probe(ctx) != models.NetworkOnline {
				return fmt.Errorf("%w: %s is unreachable", worker.ErrOffline, rt.cfg.Remote.BaseURL)
			}
			report, err := rt.engine.Drain(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending=%d synced=%d retried=%d failed=%d skipped=%d\n",
				report.Pending, report.Synced, report.Retried, report.Failed, report.Skipped)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	return cmd
}

func parseStatuses(raw []string) ([]models.QueueStatus, error) {
	var out []models.QueueStatus
	for _, r := range raw {
		s := models.QueueStatus(strings.ToLower(strings.TrimSpace(r)))
		if s == "" {
			continue
		}
		if !s.Valid() {
			return nil, fmt.Errorf("unknown status %q", r)
		}
		out = append(out, s)
	}
	return out, nil
}

func writeEntries(w io.Writer, entries []models.QueueEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCAL ID\tSTATUS\tATTEMPTS\tFAILURES\tSCHEDULE\tPHONE\tSERVER ID\tLAST ERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s %s\t%s\t%s\t%s\n",
			e.LocalID, e.Status, e.AttemptCount, e.Failures,
			e.Draft.Schedule.Date, e.Draft.Schedule.TimeSlot,
			logging.MaskPhone(e.Draft.Customer.Phone),
			valueOr(e.ServerID, "-"), valueOr(e.LastError, "-"))
	}
	return tw.Flush()
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
