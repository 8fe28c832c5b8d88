package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reelrecon/internal/daemon"
	"reelrecon/internal/heartbeat"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the backend and the watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.backendClient()
			if err != nil {
				return err
			}
			monitor, err := heartbeat.New(client,
				heartbeat.WithTiming(cfg.HeartbeatInterval(), cfg.HeartbeatTimeout()),
				heartbeat.WithLogger(ctx.cliLogger()),
			)
			if err != nil {
				return err
			}
			monitor.Probe(cmd.Context())
			hb := monitor.Status()

			report := statusReport{title: "ReelRecon"}
			if hb.Up {
				report.add("Backend", statusOK, client.BaseURL())
			} else {
				report.add("Backend", statusError, hb.LastError)
			}
			watcherErr := ctx.withDaemon(func(dc *daemon.Client) error {
				st, err := dc.Status(cmd.Context())
				if err != nil {
					return err
				}
				report.add("Watcher", statusOK, fmt.Sprintf("Running (pid %d, %d tracked)", st.PID, len(st.Tracked)))
				return nil
			})
			if watcherErr != nil {
				report.add("Watcher", statusWarn, "Not reachable")
			}
			if topic := cfg.Notifications.NtfyTopic; topic != "" {
				report.add("Notifications", statusOK, "ntfy topic "+topic)
			} else {
				report.add("Notifications", statusInfo, "Disabled")
			}
			out := cmd.OutOrStdout()
			report.write(out, shouldColorize(out))

			if report.worst() == statusError {
				return errors.New("backend is unreachable")
			}
			return nil
		},
	}
}
