package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment overrides for values that should stay out of config.toml
const (
	EnvTelegramToken = "BOTPOOL_TELEGRAM_TOKEN"
	EnvJWTSecret     = "BOTPOOL_JWT_SECRET"
	EnvForwardURL    = "BOTPOOL_FORWARD_URL"
	EnvLogLevel      = "BOTPOOL_LOG_LEVEL"
)

// LoadEnvFiles loads <stateDir>/.env into the process environment. Variables
// already set win. A missing file is not an error.
func LoadEnvFiles(stateDir string) error {
	path := filepath.Join(stateDir, ".env")
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any BOTPOOL_* variables that are set
func ApplyEnv(cfg *Config) {
	overrides := []struct {
		env   string
		field *string
	}{
		{EnvTelegramToken, &cfg.Remote.TelegramToken},
		{EnvJWTSecret, &cfg.Remote.JWTSecret},
		{EnvForwardURL, &cfg.Errors.ForwardURL},
		{EnvLogLevel, &cfg.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.field = v
		}
	}
}
