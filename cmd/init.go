package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the state directory and a default config",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := stateDir()
		if err != nil {
			return err
		}
		path := configPath(dir)

		_, statErr := os.Stat(path)
		cfg, err := config.LoadOrCreate(path)
		if err != nil {
			return fmt.Errorf("failed to initialize %s: %w", path, err)
		}

		for _, sub := range []string{cfg.Pool.ProfileDir, cfg.History.Dir} {
			if sub == "" {
				continue
			}
			if err := os.MkdirAll(config.Resolve(dir, sub), 0755); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if os.IsNotExist(statErr) {
			fmt.Fprintf(out, "%s Created %s\n", successStyle.Render("✓"), path)
		} else {
			fmt.Fprintf(out, "%s Config already exists at %s\n", mutedStyle.Render("•"), path)
		}
		fmt.Fprintln(out, mutedStyle.Render("Set pool.executor_command, then run \"botpool daemon start\""))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
