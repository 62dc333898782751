package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/config"
	"github.com/gabe/botpool/internal/daemon"
)

var (
	flagStateDir string
	flagConfig   string
)

var rootCmd = &cobra.Command{
	Use:           "botpool",
	Short:         "Botpool - browser bot pool orchestrator",
	Long:          `Runs a pool of browser automation slots with proxy rotation, retries, health checks and remote control.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("Error:"), err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "dir", ".botpool", "state directory")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <dir>/config.toml)")
}

func stateDir() (string, error) {
	return filepath.Abs(flagStateDir)
}

func configPath(dir string) string {
	if flagConfig != "" {
		return flagConfig
	}
	return filepath.Join(dir, "config.toml")
}

// loadConfig reads the config of the state directory
func loadConfig() (string, *config.Config, error) {
	dir, err := stateDir()
	if err != nil {
		return "", nil, err
	}
	path := configPath(dir)
	cfg, err := config.Load(path)
	if os.IsNotExist(err) {
		return "", nil, fmt.Errorf("no config at %s, run \"botpool init\" first", path)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if err := config.LoadEnvFiles(dir); err != nil {
		return "", nil, err
	}
	config.ApplyEnv(cfg)
	return dir, cfg, nil
}

// dialDaemon connects to the daemon of the state directory
func dialDaemon() (*daemon.Client, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	return daemon.Dial(daemon.NewPaths(dir).Socket)
}
