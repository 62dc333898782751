package config

import (
	"time"
)

// Config holds the main botpool configuration
type Config struct {
	Pool     PoolConfig     `toml:"pool"`
	Retry    RetryConfig    `toml:"retry"`
	Proxy    ProxyConfig    `toml:"proxy"`
	Watchdog WatchdogConfig `toml:"watchdog"`
	Browser  BrowserConfig  `toml:"browser"`
	History  HistoryConfig  `toml:"history"`
	Errors   ErrorsConfig   `toml:"errors"`
	Remote   RemoteConfig   `toml:"remote"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Logging  LoggingConfig  `toml:"logging"`
}

type PoolConfig struct {
	Slots             int      `toml:"slots"`
	ProfileDir        string   `toml:"profile_dir"`
	BaseInterval      string   `toml:"base_interval"`
	ContenderInterval string   `toml:"contender_interval"`
	StartTimeout      string   `toml:"start_timeout"`
	DrainTimeout      string   `toml:"drain_timeout"`
	InitBackoff       string   `toml:"init_backoff"`
	Executor          string   `toml:"executor"`
	ExecutorCommand   []string `toml:"executor_command"`
}

type RetryConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	Delay       string `toml:"delay"`
}

type ProxyConfig struct {
	Addresses []string `toml:"addresses"`
	File      string   `toml:"file"`
	Timeout   string   `toml:"timeout"`
}

type WatchdogConfig struct {
	Interval     string `toml:"interval"`
	Timeout      string `toml:"timeout"`
	MaxMemoryMB  int    `toml:"max_memory_mb"`
	RestartEvery int    `toml:"restart_every"` // checks before a restart is re-issued, 0 never
}

type BrowserConfig struct {
	ExecPath  string   `toml:"exec_path"`
	Headless  bool     `toml:"headless"`
	StartURL  string   `toml:"start_url"`
	ExtraArgs []string `toml:"extra_args"`
}

type HistoryConfig struct {
	Dir            string  `toml:"dir"`
	BotID          string  `toml:"bot_id"`
	InitialBalance float64 `toml:"initial_balance"`
}

type ErrorsConfig struct {
	LogFile    string `toml:"log_file"`
	ForwardURL string `toml:"forward_url"`
}

type RemoteConfig struct {
	TelegramToken   string  `toml:"telegram_token"`
	AllowedChannels []int64 `toml:"allowed_channels"`
	JWTSecret       string  `toml:"jwt_secret"`
	ReportSchedule  string  `toml:"report_schedule"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// parseDuration parses s, returning fallback when s is empty or malformed.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func (p PoolConfig) BaseIntervalDuration() time.Duration {
	return parseDuration(p.BaseInterval, 3*time.Minute)
}

func (p PoolConfig) ContenderIntervalDuration() time.Duration {
	return parseDuration(p.ContenderInterval, time.Hour)
}

func (p PoolConfig) StartTimeoutDuration() time.Duration {
	return parseDuration(p.StartTimeout, time.Minute)
}

func (p PoolConfig) DrainTimeoutDuration() time.Duration {
	return parseDuration(p.DrainTimeout, 30*time.Second)
}

func (p PoolConfig) InitBackoffDuration() time.Duration {
	return parseDuration(p.InitBackoff, 5*time.Second)
}

func (r RetryConfig) DelayDuration() time.Duration {
	return parseDuration(r.Delay, 10*time.Second)
}

func (p ProxyConfig) TimeoutDuration() time.Duration {
	return parseDuration(p.Timeout, 30*time.Second)
}

func (w WatchdogConfig) IntervalDuration() time.Duration {
	return parseDuration(w.Interval, 30*time.Second)
}

func (w WatchdogConfig) TimeoutDuration() time.Duration {
	return parseDuration(w.Timeout, 5*time.Minute)
}
