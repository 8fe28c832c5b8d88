package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Backend contains connection settings for the ReelRecon backend HTTP API.
type Backend struct {
	URL                   string `toml:"url"`
	APIToken              string `toml:"api_token"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Tracker contains job-tracker polling settings.
type Tracker struct {
	// PollIntervalMillis is the cadence of the active-jobs poll. Values below
	// 500 are rejected.
	PollIntervalMillis int `toml:"poll_interval_ms"`
	// RecentLimit bounds the recent-jobs listing.
	RecentLimit int `toml:"recent_limit"`
}

// Heartbeat contains backend liveness probe settings.
type Heartbeat struct {
	IntervalSeconds int `toml:"interval_seconds"`
	TimeoutSeconds  int `toml:"timeout_seconds"`
}

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Daemon contains the watcher's local status API settings.
type Daemon struct {
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	JobLost        bool   `toml:"job_lost"`
	Backend        bool   `toml:"backend"`
}

// Library contains asset library and combined-view settings.
type Library struct {
	// RankMetric is the item field combined results are sorted by.
	RankMetric string `toml:"rank_metric"`
	// PageLimit is passed to the structured asset store as its list limit.
	PageLimit int `toml:"page_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for ReelRecon.
//
// Configuration sections by subsystem:
//   - Backend: backend base URL, token, and request timeout
//   - Tracker: job polling cadence
//   - Heartbeat: liveness probe interval and timeout
//   - Paths: state and log directories
//   - Daemon: watcher status API bind address
//   - Notifications: ntfy push notification settings
//   - Library: asset list and combined ranking settings
//   - Logging: log format and level
type Config struct {
	Backend       Backend       `toml:"backend"`
	Tracker       Tracker       `toml:"tracker"`
	Heartbeat     Heartbeat     `toml:"heartbeat"`
	Paths         Paths         `toml:"paths"`
	Daemon        Daemon        `toml:"daemon"`
	Notifications Notifications `toml:"notifications"`
	Library       Library       `toml:"library"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelrecon.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the per-request backend timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the job-tracker poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Tracker.PollIntervalMillis) * time.Millisecond
}

// HeartbeatInterval returns the liveness probe cadence.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat.IntervalSeconds) * time.Second
}

// HeartbeatTimeout returns the per-probe timeout.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Heartbeat.TimeoutSeconds) * time.Second
}

// StorePath returns the SQLite database used for watcher state.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.StateDir, "reelrecon.db")
}

// LockPath returns the watcher's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "reelrecond.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}
