package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/daemon"
	"github.com/gabe/botpool/internal/remote"
)

var flagAuditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent remote commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := stateDir()
		if err != nil {
			return err
		}
		path := daemon.NewPaths(dir).Audit
		out := cmd.OutOrStdout()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintln(out, mutedStyle.Render("No remote commands recorded"))
			return nil
		}

		audit, err := remote.OpenAudit(path)
		if err != nil {
			return err
		}
		defer audit.Close()

		entries, err := audit.Recent(cmd.Context(), flagAuditLimit)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s (%d)\n", headerStyle.Render("Remote commands"), len(entries))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, e := range entries {
			who := successStyle.Render(fmt.Sprint(e.ChannelID))
			if !e.Authorized {
				who = errorStyle.Render(fmt.Sprint(e.ChannelID))
			}
			result, _, _ := strings.Cut(e.Result, "\n")
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				mutedStyle.Render(e.At.Local().Format("2006-01-02 15:04:05")),
				who,
				valueStyle.Render(strings.TrimSpace(e.Command+" "+e.Args)),
				mutedStyle.Render(result))
		}
		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().IntVarP(&flagAuditLimit, "lines", "n", 20, "Number of entries to show")
	rootCmd.AddCommand(auditCmd)
}
