package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

const (
	MinSlots       = 1
	MaxSlots       = 100
	MinMaxAttempts = 1
	MaxMaxAttempts = 10
)

// Validate checks ranges and duration syntax
func (c *Config) Validate() error {
	if c.Pool.Slots < MinSlots || c.Pool.Slots > MaxSlots {
		return fmt.Errorf("%w: pool.slots must be between %d and %d, got %d", ErrInvalidConfig, MinSlots, MaxSlots, c.Pool.Slots)
	}
	if c.Retry.MaxAttempts < MinMaxAttempts || c.Retry.MaxAttempts > MaxMaxAttempts {
		return fmt.Errorf("%w: retry.max_attempts must be between %d and %d, got %d", ErrInvalidConfig, MinMaxAttempts, MaxMaxAttempts, c.Retry.MaxAttempts)
	}
	if c.Watchdog.MaxMemoryMB < 0 {
		return fmt.Errorf("%w: watchdog.max_memory_mb must not be negative", ErrInvalidConfig)
	}
	if c.Watchdog.RestartEvery < 0 {
		return fmt.Errorf("%w: watchdog.restart_every must not be negative", ErrInvalidConfig)
	}

	durations := []struct {
		name     string
		value    string
		min, max time.Duration
	}{
		{"pool.base_interval", c.Pool.BaseInterval, time.Minute, 10 * time.Minute},
		{"pool.contender_interval", c.Pool.ContenderInterval, time.Minute, 24 * time.Hour},
		{"pool.start_timeout", c.Pool.StartTimeout, 0, 0},
		{"pool.drain_timeout", c.Pool.DrainTimeout, 0, 0},
		{"pool.init_backoff", c.Pool.InitBackoff, 0, 0},
		{"retry.delay", c.Retry.Delay, 0, time.Minute},
		{"proxy.timeout", c.Proxy.Timeout, 0, 0},
		{"watchdog.interval", c.Watchdog.Interval, 0, 0},
		{"watchdog.timeout", c.Watchdog.Timeout, 30 * time.Second, time.Hour},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.name, err)
		}
		if v < 0 || (d.min > 0 && v < d.min) || (d.max > 0 && v > d.max) {
			return fmt.Errorf("%w: %s out of range: %s", ErrInvalidConfig, d.name, d.value)
		}
	}

	switch c.Pool.Executor {
	case "exec":
		if len(c.Pool.ExecutorCommand) == 0 {
			return fmt.Errorf("%w: pool.executor_command is required for the exec executor", ErrInvalidConfig)
		}
	case "":
		return fmt.Errorf("%w: pool.executor is required", ErrInvalidConfig)
	}

	return nil
}
