package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelrecon/internal/backend"
	"reelrecon/internal/daemon"
	"reelrecon/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control backend jobs",
	}
	jobsCmd.AddCommand(newJobsActiveCommand(ctx))
	jobsCmd.AddCommand(newJobsRecentCommand(ctx))
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	jobsCmd.AddCommand(newJobsAbortCommand(ctx))
	jobsCmd.AddCommand(newJobsTrackCommand(ctx))
	return jobsCmd
}

func newJobsActiveCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "active",
		Short: "List jobs the backend is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backendClient()
			if err != nil {
				return err
			}
			active, err := client.ActiveJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list active jobs: %w", err)
			}
			if asJSON {
				if active == nil {
					active = []backend.JobSnapshot{}
				}
				return writeJSON(cmd, active)
			}
			if len(active) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active jobs")
				return nil
			}
			printTable(cmd, snapshotHeaders, snapshotRows(active), snapshotAligns)
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobsRecentCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backendClient()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = ctx.configValue().Tracker.RecentLimit
			}
			recent, err := client.RecentJobs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list recent jobs: %w", err)
			}
			if asJSON {
				if recent == nil {
					recent = []backend.JobSnapshot{}
				}
				return writeJSON(cmd, recent)
			}
			if len(recent) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recent jobs")
				return nil
			}
			headers := append(append([]string{}, snapshotHeaders...), "Created")
			rows := snapshotRows(recent)
			for i, snap := range recent {
				rows[i] = append(rows[i], orDash(snap.CreatedAt))
			}
			printTable(cmd, headers, rows, snapshotAligns)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum jobs to list (defaults to tracker.recent_limit)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backendClient()
			if err != nil {
				return err
			}
			snap, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, backend.ErrJobNotFound) {
					return fmt.Errorf("job %s is unknown to the backend; it may have been lost in a restart", args[0])
				}
				return err
			}
			if asJSON {
				return writeJSON(cmd, snap)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:      %s\n", snap.ID)
			fmt.Fprintf(out, "Kind:     %s\n", snap.Kind)
			fmt.Fprintf(out, "Status:   %s\n", snap.Status.Normalize())
			fmt.Fprintf(out, "Progress: %s\n", formatProgress(snap))
			if snap.Phase != "" {
				fmt.Fprintf(out, "Phase:    %s\n", snap.Phase)
			}
			if target := jobTarget(snap); target != "-" {
				fmt.Fprintf(out, "Target:   %s\n", target)
			}
			if snap.BatchID != "" {
				fmt.Fprintf(out, "Batch:    %s\n", snap.BatchID)
			}
			if snap.Message != "" {
				fmt.Fprintf(out, "Message:  %s\n", snap.Message)
			}
			if snap.ErrorCode != "" || snap.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:    %s\n", jobs.JobError{Code: snap.ErrorCode, Message: snap.ErrorMessage})
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobsAbortCommand(ctx *commandContext) *cobra.Command {
	var batch bool
	cmd := &cobra.Command{
		Use:   "abort <job-id>",
		Short: "Request cancellation of a job or batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.backendClient()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			out := cmd.OutOrStdout()
			if batch {
				if err := client.AbortBatch(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(out, "Abort requested for batch %s\n", id)
				return nil
			}
			if err := client.Abort(cmd.Context(), id); err != nil {
				if errors.Is(err, backend.ErrJobNotFound) {
					return fmt.Errorf("job %s is not running", id)
				}
				return err
			}
			fmt.Fprintf(out, "Abort requested for %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&batch, "batch", false, "Treat the id as a batch id")
	return cmd
}

func newJobsTrackCommand(ctx *commandContext) *cobra.Command {
	var (
		kind    string
		batchID string
	)
	cmd := &cobra.Command{
		Use:   "track <job-id>",
		Short: "Ask the running watcher to track a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.TrackRequest{
				JobID:   strings.TrimSpace(args[0]),
				Kind:    backend.JobKind(strings.TrimSpace(kind)),
				BatchID: strings.TrimSpace(batchID),
			}
			return ctx.withDaemon(func(client *daemon.Client) error {
				resp, err := client.Track(cmd.Context(), req)
				if err != nil {
					return err
				}
				if resp.Added {
					fmt.Fprintf(cmd.OutOrStdout(), "Watcher is now tracking %s\n", resp.JobID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Watcher was already tracking %s\n", resp.JobID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Job kind (scrape or analysis); inferred from the id when empty")
	cmd.Flags().StringVar(&batchID, "batch", "", "Batch the job belongs to")
	return cmd
}
