package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/daemon"
	"github.com/gabe/botpool/internal/registry"
	"github.com/gabe/botpool/internal/tui"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live dashboard of the pool",
	Long:  `Open the interactive dashboard. It is read-only when the daemon is not reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err == nil {
			defer client.Close()
			return tui.Run(client, client)
		}

		dir, err := stateDir()
		if err != nil {
			return err
		}
		return tui.Run(registry.New(daemon.NewPaths(dir).Registry), nil)
	},
}

func init() {
	rootCmd.AddCommand(topCmd)
}
