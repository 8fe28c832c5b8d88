package config

const (
	defaultConfigPath            = "~/.config/reelrecon/config.toml"
	defaultBackendURL            = "http://127.0.0.1:5000"
	defaultRequestTimeoutSeconds = 30
	defaultPollIntervalMillis    = 1000
	minPollIntervalMillis        = 500
	defaultRecentLimit           = 20
	defaultHeartbeatInterval     = 3
	defaultHeartbeatTimeout      = 2
	defaultStateDir              = "~/.local/share/reelrecon"
	defaultLogDir                = "~/.local/share/reelrecon/logs"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultNotifyRequestTimeout  = 10
	defaultRankMetric            = "views"
	defaultLibraryPageLimit      = 200
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: Backend{
			URL:                   defaultBackendURL,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Tracker: Tracker{
			PollIntervalMillis: defaultPollIntervalMillis,
			RecentLimit:        defaultRecentLimit,
		},
		Heartbeat: Heartbeat{
			IntervalSeconds: defaultHeartbeatInterval,
			TimeoutSeconds:  defaultHeartbeatTimeout,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Daemon: Daemon{
			APIBind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			JobLost:        true,
			Backend:        true,
		},
		Library: Library{
			RankMetric: defaultRankMetric,
			PageLimit:  defaultLibraryPageLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
