package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"reelrecon/internal/daemon"
	"reelrecon/internal/jobs"
	"reelrecon/internal/store"
)

// eventDetail mirrors the fields the watcher stores with job events.
type eventDetail struct {
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Phase     string  `json:"phase"`
	Partial   bool    `json:"partial"`
	ErrorCode string  `json:"error_code"`
	Error     string  `json:"error"`
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		since    int64
		once     bool
		local    bool
		asJSON   bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow job and backend events",
		Long: "Watch prints the running watcher's event log and follows it.\n" +
			"With --local it runs a tracking session in the foreground instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = cfg.PollInterval()
			}
			printer := recordPrinter(cmd.OutOrStdout(), asJSON)
			if local {
				return watchLocal(cmd.Context(), ctx, since, interval, printer)
			}
			return ctx.withDaemon(func(client *daemon.Client) error {
				return followEvents(cmd.Context(), client, since, interval, once, printer)
			})
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "Only show events after this sequence number")
	cmd.Flags().BoolVar(&once, "once", false, "Print the current backlog and exit")
	cmd.Flags().BoolVar(&local, "local", false, "Run a foreground tracking session instead of following reelrecond")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (defaults to tracker.poll_interval_ms)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON lines")
	return cmd
}

func followEvents(ctx context.Context, client *daemon.Client, since int64, interval time.Duration, once bool, print func(store.EventRecord)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		resp, err := client.Events(ctx, since, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, rec := range resp.Events {
			print(rec)
		}
		if resp.Next > since {
			since = resp.Next
		}
		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// watchLocal adopts whatever the backend is running and prints the session's
// event log until ctx is cancelled.
func watchLocal(ctx context.Context, cmdCtx *commandContext, since int64, interval time.Duration, print func(store.EventRecord)) error {
	sess, err := cmdCtx.newSession()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Run(runCtx) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	flush := func() {
		for _, rec := range sess.Events().Since(since) {
			print(rec)
			since = rec.Seq
		}
	}
	for {
		select {
		case err := <-done:
			flush()
			return err
		case <-ticker.C:
			flush()
		}
	}
}

func recordPrinter(out io.Writer, asJSON bool) func(store.EventRecord) {
	if asJSON {
		emit := jsonLines(out)
		return func(rec store.EventRecord) { _ = emit(rec) }
	}
	return func(rec store.EventRecord) { fmt.Fprintln(out, describeRecord(rec)) }
}

func describeRecord(rec store.EventRecord) string {
	stamp := rec.CreatedAt.Local().Format("15:04:05")
	var detail eventDetail
	if len(rec.Payload) > 0 {
		_ = json.Unmarshal(rec.Payload, &detail)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d %s", stamp, rec.Seq, strings.TrimPrefix(rec.Type, "job_"))
	if rec.JobID != "" {
		b.WriteString(" " + rec.JobID)
	}
	switch rec.Type {
	case "job_" + string(jobs.EventProgress):
		if detail.Progress >= 0 {
			fmt.Fprintf(&b, " %.0f%%", detail.Progress)
		}
		if detail.Phase != "" {
			b.WriteString(" " + detail.Phase)
		}
	case "job_" + string(jobs.EventCompleted):
		if detail.Partial {
			b.WriteString(" (with warnings)")
		}
	case "job_" + string(jobs.EventFailed), "job_" + string(jobs.EventAborted), "job_" + string(jobs.EventLost):
		if detail.Error != "" {
			b.WriteString(": " + jobs.JobError{Code: detail.ErrorCode, Message: detail.Error}.Error())
		}
	}
	if rec.Message != "" && rec.Type != "job_"+string(jobs.EventProgress) {
		b.WriteString(" - " + truncate(rec.Message, 80))
	}
	return b.String()
}
