package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"reelrecon/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		lines  int
		cli    bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display watcher logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := "reelrecon.log"
			if cli {
				name = "reelrecon-cli.log"
			}
			path := filepath.Join(cfg.Paths.LogDir, name)

			out := cmd.OutOrStdout()
			printed := false
			err = logs.Tail(cmd.Context(), path, logs.Options{Lines: lines, Follow: follow}, func(line string) {
				fmt.Fprintln(out, line)
				printed = true
			})
			if err != nil {
				return fmt.Errorf("tail logs: %w", err)
			}
			if !printed && !follow {
				fmt.Fprintf(out, "No log entries in %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().BoolVar(&cli, "cli", false, "Show the CLI's own log instead of the watcher's")
	return cmd
}
