package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelrecon/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running watcher's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *daemon.Client) error {
				st, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, st)
				}
				out := cmd.OutOrStdout()
				watcherReport(st).write(out, shouldColorize(out))
				fmt.Fprintln(out)
				if len(st.Tracked) == 0 {
					fmt.Fprintln(out, "No tracked jobs")
					return nil
				}
				printTable(cmd, trackedHeaders, trackedRows(st.Tracked), nil)
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}
