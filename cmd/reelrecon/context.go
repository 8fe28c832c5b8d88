package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"reelrecon/internal/assets"
	"reelrecon/internal/backend"
	"reelrecon/internal/config"
	"reelrecon/internal/daemon"
	"reelrecon/internal/logging"
	"reelrecon/internal/session"
	"reelrecon/internal/store"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// cliLogger writes to reelrecon-cli.log so command output stays clean.
func (c *commandContext) cliLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		c.logger = logging.NewNop()
		cfg := c.configValue()
		if cfg == nil || cfg.Paths.LogDir == "" {
			return
		}
		logPath := filepath.Join(cfg.Paths.LogDir, "reelrecon-cli.log")
		logger, err := logging.New(logging.Options{
			Level:            cfg.Logging.Level,
			Format:           "json",
			OutputPaths:      []string{logPath},
			ErrorOutputPaths: []string{logPath},
		})
		if err == nil {
			c.logger = logger
		}
	})
	return c.logger
}

func (c *commandContext) backendClient() (*backend.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return backend.New(cfg.Backend.URL,
		backend.WithToken(cfg.Backend.APIToken),
		backend.WithRequestTimeout(cfg.RequestTimeout()),
		backend.WithLogger(c.cliLogger()),
	), nil
}

// newSession builds an in-process session without persistence; the watcher
// owns the persisted tracked set.
func (c *commandContext) newSession() (*session.Session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return session.New(cfg, session.WithLogger(c.cliLogger()))
}

// withLibrary runs fn against a reconciler that shares the watcher's asset
// snapshot.
func (c *commandContext) withLibrary(fn func(*assets.Reconciler) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := c.backendClient()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer st.Close()

	reconciler := assets.NewReconciler(client,
		assets.WithLogger(c.cliLogger()),
		assets.WithPageLimit(cfg.Library.PageLimit),
		assets.WithSnapshotStore(st),
	)
	return fn(reconciler)
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil {
		if addr := strings.TrimSpace(*c.apiFlag); addr != "" {
			return addr
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Daemon.APIBind
	}
	return config.Default().Daemon.APIBind
}

func (c *commandContext) withDaemon(fn func(*daemon.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	addr := c.apiAddress()
	if err := fn(daemon.NewClient(addr, cfg.Daemon.APIToken)); err != nil {
		return wrapDaemonError(err, addr)
	}
	return nil
}

func wrapDaemonError(err error, addr string) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to watcher: %s refused the connection; start it with `reelrecond`", addr)
	case errors.Is(err, daemon.ErrUnauthorized):
		return fmt.Errorf("connect to watcher: %s rejected the token; check daemon.api_token", addr)
	default:
		return fmt.Errorf("watcher api: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
