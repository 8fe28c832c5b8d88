package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateHeartbeat(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.url must use http or https, got %q", c.Backend.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("backend.url must include a host, got %q", c.Backend.URL)
	}
	if c.Backend.RequestTimeoutSeconds <= 0 {
		return errors.New("backend.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTracker() error {
	if c.Tracker.PollIntervalMillis < minPollIntervalMillis {
		return fmt.Errorf("tracker.poll_interval_ms must be at least %d", minPollIntervalMillis)
	}
	return nil
}

func (c *Config) validateHeartbeat() error {
	if err := ensurePositiveMap(map[string]int{
		"heartbeat.interval_seconds": c.Heartbeat.IntervalSeconds,
		"heartbeat.timeout_seconds":  c.Heartbeat.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Heartbeat.TimeoutSeconds >= c.Heartbeat.IntervalSeconds {
		return errors.New("heartbeat.timeout_seconds must be less than heartbeat.interval_seconds")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
