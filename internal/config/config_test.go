package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "botpool-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.toml")
	configContent := `
[pool]
slots = 12
base_interval = "4m"
executor_command = ["node", "join.js"]

[retry]
max_attempts = 3

[proxy]
addresses = ["10.0.0.1:8080", "10.0.0.2:8080"]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Pool.Slots != 12 {
		t.Errorf("expected slots 12, got %d", cfg.Pool.Slots)
	}
	if cfg.Pool.BaseIntervalDuration() != 4*time.Minute {
		t.Errorf("expected base interval 4m, got %s", cfg.Pool.BaseIntervalDuration())
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if len(cfg.Proxy.Addresses) != 2 {
		t.Errorf("expected 2 proxies, got %d", len(cfg.Proxy.Addresses))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadConfigWithDefaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "botpool-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Pool.Slots != 5 {
		t.Errorf("expected default slots 5, got %d", cfg.Pool.Slots)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected default max_attempts 5, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.DelayDuration() != 10*time.Second {
		t.Errorf("expected default retry delay 10s, got %s", cfg.Retry.DelayDuration())
	}
	if cfg.Watchdog.TimeoutDuration() != 5*time.Minute {
		t.Errorf("expected default watchdog timeout 5m, got %s", cfg.Watchdog.TimeoutDuration())
	}
	if cfg.Watchdog.MaxMemoryMB != 180 {
		t.Errorf("expected default max memory 180, got %d", cfg.Watchdog.MaxMemoryMB)
	}
}

func TestLoadOrCreate_WritesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".botpool", "config.toml")

	cfg, err := LoadOrCreate(configPath)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.Pool.Slots != 5 {
		t.Errorf("expected default slots, got %d", cfg.Pool.Slots)
	}

	reloaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if reloaded.Remote.ReportSchedule != cfg.Remote.ReportSchedule {
		t.Errorf("report schedule not persisted: %q", reloaded.Remote.ReportSchedule)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults with command", func(c *Config) {}, false},
		{"too many slots", func(c *Config) { c.Pool.Slots = 101 }, true},
		{"zero slots", func(c *Config) { c.Pool.Slots = 0 }, true},
		{"too many attempts", func(c *Config) { c.Retry.MaxAttempts = 11 }, true},
		{"watchdog too short", func(c *Config) { c.Watchdog.Timeout = "10s" }, true},
		{"watchdog too long", func(c *Config) { c.Watchdog.Timeout = "2h" }, true},
		{"negative restart_every", func(c *Config) { c.Watchdog.RestartEvery = -1 }, true},
		{"interval too short", func(c *Config) { c.Pool.BaseInterval = "30s" }, true},
		{"bad duration", func(c *Config) { c.Retry.Delay = "soon" }, true},
		{"exec without command", func(c *Config) { c.Pool.ExecutorCommand = nil }, true},
		{"custom executor", func(c *Config) { c.Pool.Executor = "keydrop"; c.Pool.ExecutorCommand = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Pool.ExecutorCommand = []string{"join-task"}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("/state", "history"); got != filepath.Join("/state", "history") {
		t.Errorf("unexpected relative resolve: %s", got)
	}
	if got := Resolve("/state", "/abs/errors.log"); got != "/abs/errors.log" {
		t.Errorf("absolute path should be unchanged, got %s", got)
	}
	if got := Resolve("/state", ""); got != "" {
		t.Errorf("empty path should stay empty, got %s", got)
	}
}
