package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/config"
	"github.com/gabe/botpool/internal/errreport"
)

var (
	flagErrorsLimit int
	flagErrorsTrace bool
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show the most frequent captured errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := config.Resolve(dir, cfg.Errors.LogFile)

		records, err := errreport.ReadLog(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("No errors captured"))
			return nil
		}
		if flagErrorsLimit > 0 && len(records) > flagErrorsLimit {
			records = records[:flagErrorsLimit]
		}

		for _, r := range records {
			lines := strings.Split(r.Trace, "\n")
			fmt.Fprintf(out, "%s %s %s\n",
				labelStyle.Render("#"+r.Hash),
				warningStyle.Render(fmt.Sprintf("%dx", r.Count)),
				valueStyle.Render(lines[0]))
			if flagErrorsTrace && len(lines) > 1 {
				for _, line := range lines[1:] {
					fmt.Fprintln(out, mutedStyle.Render("    "+line))
				}
			}
		}
		return nil
	},
}

func init() {
	errorsCmd.Flags().IntVarP(&flagErrorsLimit, "lines", "n", 10, "Number of distinct errors to show")
	errorsCmd.Flags().BoolVar(&flagErrorsTrace, "trace", false, "Print the full trace of each error")
	rootCmd.AddCommand(errorsCmd)
}
