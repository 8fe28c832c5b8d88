package main

import (
	"context"
	"fmt"
	"log/slog"

	"reelrecon/internal/config"
	"reelrecon/internal/daemon"
	"reelrecon/internal/logging"
	"reelrecon/internal/session"
	"reelrecon/internal/store"
)

// run starts the watcher and blocks until ctx is cancelled or the session
// stops on its own.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sess, err := session.New(cfg,
		session.WithLogger(logger),
		session.WithStore(st),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	d, err := daemon.New(cfg, sess, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("reelrecond shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	case <-d.Done():
	}
	d.Stop()
	return d.Err()
}
