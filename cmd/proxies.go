package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "List the proxy pool with failure counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		records, err := client.Proxies()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%d)\n", sectionStyle.Render("Proxies"), len(records))
		if len(records) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("  No proxies configured, slots connect directly"))
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range records {
			failures := mutedStyle.Render("0")
			if r.Failures > 0 {
				failures = errorStyle.Render(strconv.Itoa(r.Failures))
			}
			slots := "-"
			if len(r.Slots) > 0 {
				slots = fmt.Sprint(r.Slots)
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", valueStyle.Render(r.Address), failures, mutedStyle.Render(slots))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(proxiesCmd)
}
