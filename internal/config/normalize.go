package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeBackend()
	c.normalizeTracker()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDaemon()
	c.normalizeNotifications()
	c.normalizeLibrary()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeBackend() {
	c.Backend.URL = strings.TrimSpace(c.Backend.URL)
	if value, ok := os.LookupEnv("REELRECON_BACKEND_URL"); ok && strings.TrimSpace(value) != "" {
		c.Backend.URL = strings.TrimSpace(value)
	}
	if c.Backend.URL == "" {
		c.Backend.URL = defaultBackendURL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")

	c.Backend.APIToken = strings.TrimSpace(c.Backend.APIToken)
	if c.Backend.APIToken == "" {
		if value, ok := os.LookupEnv("REELRECON_API_TOKEN"); ok {
			c.Backend.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Backend.RequestTimeoutSeconds == 0 {
		c.Backend.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
}

func (c *Config) normalizeTracker() {
	if c.Tracker.PollIntervalMillis == 0 {
		c.Tracker.PollIntervalMillis = defaultPollIntervalMillis
	}
	if c.Tracker.RecentLimit <= 0 {
		c.Tracker.RecentLimit = defaultRecentLimit
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDaemon() {
	c.Daemon.APIBind = strings.TrimSpace(c.Daemon.APIBind)
	if c.Daemon.APIBind == "" {
		c.Daemon.APIBind = defaultAPIBind
	}
	c.Daemon.APIToken = strings.TrimSpace(c.Daemon.APIToken)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("REELRECON_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLibrary() {
	c.Library.RankMetric = strings.TrimSpace(c.Library.RankMetric)
	if c.Library.RankMetric == "" {
		c.Library.RankMetric = defaultRankMetric
	}
	if c.Library.PageLimit <= 0 {
		c.Library.PageLimit = defaultLibraryPageLimit
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
