package config

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Slots:             5,
			ProfileDir:        "profiles",
			BaseInterval:      "3m",
			ContenderInterval: "1h",
			StartTimeout:      "1m",
			DrainTimeout:      "30s",
			InitBackoff:       "5s",
			Executor:          "exec",
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			Delay:       "10s",
		},
		Proxy: ProxyConfig{
			Timeout: "30s",
		},
		Watchdog: WatchdogConfig{
			Interval:     "30s",
			Timeout:      "5m",
			MaxMemoryMB:  180,
			RestartEvery: 3,
		},
		Browser: BrowserConfig{
			Headless: true,
			StartURL: "about:blank",
		},
		History: HistoryConfig{
			Dir:   "history",
			BotID: "default",
		},
		Errors: ErrorsConfig{
			LogFile: "errors.log",
		},
		Remote: RemoteConfig{
			ReportSchedule: "0 9 * * 1",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
