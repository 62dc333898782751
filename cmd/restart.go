package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart <slot>",
	Short: "Restart one slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid slot id %q", args[0])
		}

		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ok, err := client.RestartSlot(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("slot %d not found", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Restarting slot %d\n", successStyle.Render("✓"), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
