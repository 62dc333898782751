package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:     "pause",
	Aliases: []string{"p"},
	Short:   "Pause every slot",
	Long: `Pause the pool. Slots finish their in-flight task, then idle with
heartbeats until resumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Pause(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓")+" Pool paused")
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("In-flight tasks will finish before slots idle"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}
