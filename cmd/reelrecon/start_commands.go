package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"reelrecon/internal/backend"
	"reelrecon/internal/daemon"
	"reelrecon/internal/jobs"
	"reelrecon/internal/logging"
)

type startOptions struct {
	wait    bool
	handoff bool
	asJSON  bool
	timeout time.Duration
}

func (o *startOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.wait, "wait", "w", false, "Poll until every started job finishes")
	cmd.Flags().BoolVar(&o.handoff, "handoff", true, "Hand started jobs to a running reelrecond when not waiting")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Stop waiting after this long (0 waits indefinitely)")
	addJSONFlag(cmd, &o.asJSON)
}

type transcribeOptions struct {
	enabled  bool
	provider string
	model    string
}

func (o *transcribeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.enabled, "transcribe", false, "Transcribe downloaded videos")
	cmd.Flags().StringVar(&o.provider, "transcribe-provider", "", "Transcription provider (local or openai)")
	cmd.Flags().StringVar(&o.model, "whisper-model", "", "Whisper model for local transcription")
}

type startOutput struct {
	Result    backend.StartResult `json:"result"`
	HandedOff bool                `json:"handed_off"`
}

type jobOutcome struct {
	JobID   string            `json:"job_id"`
	Outcome string            `json:"outcome"`
	Error   string            `json:"error,omitempty"`
	Status  backend.JobStatus `json:"status,omitempty"`
}

type waitOutput struct {
	Result   backend.StartResult `json:"result"`
	Outcomes []jobOutcome        `json:"outcomes"`
}

func newStartCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newScrapeCommand(ctx),
		newBatchCommand(ctx),
		newDirectCommand(ctx),
		newAnalyzeCommand(ctx),
	}
}

func newScrapeCommand(ctx *commandContext) *cobra.Command {
	var (
		opts       startOptions
		transcribe transcribeOptions
		params     backend.ScrapeParams
	)
	cmd := &cobra.Command{
		Use:   "scrape <username>",
		Short: "Scrape one creator's top reels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Username = args[0]
			params.Transcribe = transcribe.enabled
			params.TranscribeProvider = transcribe.provider
			params.WhisperModel = transcribe.model
			return runStart(cmd, ctx, backend.KindScrape, params, opts)
		},
	}
	cmd.Flags().StringVarP(&params.Platform, "platform", "p", "instagram", "Platform to scrape (instagram or tiktok)")
	cmd.Flags().IntVar(&params.MaxReels, "max-reels", 100, "Number of recent reels to consider")
	cmd.Flags().IntVar(&params.TopN, "top", 10, "Number of top reels to keep")
	cmd.Flags().BoolVar(&params.Download, "download", false, "Download the top reels")
	transcribe.bind(cmd)
	opts.bind(cmd)
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		opts       startOptions
		transcribe transcribeOptions
		params     backend.BatchParams
	)
	cmd := &cobra.Command{
		Use:   "batch <username>...",
		Short: "Scrape several creators across platforms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Usernames = args
			params.Transcribe = transcribe.enabled
			params.TranscribeProvider = transcribe.provider
			params.WhisperModel = transcribe.model
			return runStart(cmd, ctx, backend.KindBatch, params, opts)
		},
	}
	cmd.Flags().StringSliceVarP(&params.Platforms, "platform", "p", []string{"instagram"}, "Platforms to scrape (repeatable)")
	cmd.Flags().IntVar(&params.MaxReels, "max-reels", 100, "Number of recent reels to consider")
	cmd.Flags().IntVar(&params.TopN, "top", 10, "Number of top reels to keep")
	cmd.Flags().BoolVar(&params.Download, "download", false, "Download the top reels")
	transcribe.bind(cmd)
	opts.bind(cmd)
	return cmd
}

func newDirectCommand(ctx *commandContext) *cobra.Command {
	var (
		opts       startOptions
		transcribe transcribeOptions
	)
	cmd := &cobra.Command{
		Use:   "direct <url>...",
		Short: "Download and optionally transcribe specific reels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := backend.DirectParams{
				URLs:               args,
				Transcribe:         transcribe.enabled,
				TranscribeProvider: transcribe.provider,
				WhisperModel:       transcribe.model,
			}
			return runStart(cmd, ctx, backend.KindScrape, params, opts)
		},
	}
	transcribe.bind(cmd)
	opts.bind(cmd)
	return cmd
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var (
		opts   startOptions
		params backend.AnalysisParams
	)
	cmd := &cobra.Command{
		Use:   "analyze <username>...",
		Short: "Extract content skeletons across creators",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Usernames = args
			return runStart(cmd, ctx, backend.KindAnalysis, params, opts)
		},
	}
	cmd.Flags().StringVarP(&params.Platform, "platform", "p", "instagram", "Platform to analyze")
	cmd.Flags().IntVar(&params.VideosPerCreator, "videos", 3, "Videos per creator")
	cmd.Flags().StringVar(&params.LLMProvider, "llm-provider", "", "LLM provider for extraction")
	cmd.Flags().StringVar(&params.LLMModel, "llm-model", "", "LLM model for extraction")
	cmd.Flags().StringVar(&params.TranscribeProvider, "transcribe-provider", "", "Transcription provider (local or openai)")
	cmd.Flags().StringVar(&params.WhisperModel, "whisper-model", "", "Whisper model for local transcription")
	opts.bind(cmd)
	return cmd
}

func runStart(cmd *cobra.Command, ctx *commandContext, kind backend.JobKind, params any, opts startOptions) error {
	sess, err := ctx.newSession()
	if err != nil {
		return err
	}
	res, err := sess.Start(cmd.Context(), kind, params)
	if err != nil {
		return fmt.Errorf("start %s: %w", kind, err)
	}
	out := cmd.OutOrStdout()

	if !opts.wait {
		handedOff := false
		if opts.handoff {
			handedOff = handOff(cmd, ctx, res)
		}
		if opts.asJSON {
			return writeJSON(cmd, startOutput{Result: res, HandedOff: handedOff})
		}
		printStarted(out, res)
		if handedOff {
			fmt.Fprintln(out, "Tracking handed to reelrecond")
		}
		return nil
	}

	if !opts.asJSON {
		printStarted(out, res)
	}
	waitCtx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, opts.timeout)
		defer cancel()
	}
	ids := res.IDs()
	events, err := sess.Wait(waitCtx, ids, func(ev jobs.Event) {
		if !opts.asJSON {
			fmt.Fprintln(out, describeEvent(ev))
		}
	})
	if err != nil && len(events) < len(ids) {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("gave up waiting after %s with %d of %d jobs unfinished", opts.timeout, len(ids)-len(events), len(ids))
		}
		return fmt.Errorf("wait for jobs: %w", err)
	}

	outcomes := make([]jobOutcome, 0, len(events))
	failed := 0
	for _, ev := range events {
		o := jobOutcome{JobID: ev.JobID, Outcome: outcomeLabel(ev), Status: ev.Snapshot.Status.Normalize()}
		if ev.Err != nil {
			o.Error = ev.Err.Error()
		}
		if ev.Type != jobs.EventCompleted {
			failed++
		}
		outcomes = append(outcomes, o)
	}

	if opts.asJSON {
		if err := writeJSON(cmd, waitOutput{Result: res, Outcomes: outcomes}); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(events))
		for _, ev := range events {
			rows = append(rows, []string{ev.JobID, outcomeLabel(ev), outcomeDetail(ev)})
		}
		printTable(cmd, []string{"Job", "Outcome", "Detail"}, rows, nil)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs did not complete", failed, len(ids))
	}
	return nil
}

func printStarted(out io.Writer, res backend.StartResult) {
	if res.BatchID != "" {
		fmt.Fprintf(out, "Started batch %s (%d jobs)\n", res.BatchID, len(res.JobIDs))
		for _, id := range res.JobIDs {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return
	}
	fmt.Fprintf(out, "Started %s job %s\n", res.Kind, res.JobID)
}

// handOff asks a running watcher to track the jobs. A watcher that is not
// running is not an error; the jobs still run on the backend.
func handOff(cmd *cobra.Command, ctx *commandContext, res backend.StartResult) bool {
	kind := res.Kind
	if kind == backend.KindBatch {
		kind = backend.KindScrape
	}
	err := ctx.withDaemon(func(client *daemon.Client) error {
		for _, id := range res.IDs() {
			if _, err := client.Track(cmd.Context(), daemon.TrackRequest{JobID: id, Kind: kind, BatchID: res.BatchID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		ctx.cliLogger().Debug("watcher handoff skipped", logging.Error(err))
		return false
	}
	return true
}
