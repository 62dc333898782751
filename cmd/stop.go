package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/scheduler"
)

var flagEmergency bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the pool and the daemon",
	Long: `Stop every slot and shut the daemon down. Slots drain their current task
first; --emergency kills every browser immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		report, err := client.Stop(flagEmergency)
		if err != nil {
			return err
		}
		printStopReport(cmd, report)
		return nil
	},
}

func printStopReport(cmd *cobra.Command, report scheduler.StopReport) {
	out := cmd.OutOrStdout()
	if !report.Emergency {
		fmt.Fprintf(out, "%s Stopped %d slots\n", successStyle.Render("✓"), report.Slots)
		if len(report.Forced) > 0 {
			fmt.Fprintf(out, "  %s slots %v did not drain in time and were forced\n",
				warningStyle.Render("!"), report.Forced)
		}
		return
	}

	fmt.Fprintf(out, "%s Emergency stop: killed %d slots\n", warningStyle.Render("✓"), report.Slots)
	ids := make([]int, 0, len(report.KillFailures))
	for id := range report.KillFailures {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "  %s slot %d: %s\n", errorStyle.Render("✗"), id, report.KillFailures[id])
	}
}

func init() {
	stopCmd.Flags().BoolVar(&flagEmergency, "emergency", false, "Kill every browser without draining")
	rootCmd.AddCommand(stopCmd)
}
