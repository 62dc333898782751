package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/config"
	"github.com/gabe/botpool/internal/history"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/remote"
)

var (
	flagWeekly  bool
	flagMonthly bool
	flagFrom    string
	flagTo      string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize performance history",
	Long: `Summarize recorded sessions. Defaults to today; --weekly and --monthly
cover the last 7 and 30 days, --from and --to pick an explicit range (YYYY-MM-DD).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		start, end, title, err := reportRange(time.Now())
		if err != nil {
			return err
		}

		h, err := history.New(config.Resolve(dir, cfg.History.Dir), cfg.History.BotID, nil)
		if err != nil {
			return err
		}
		summary, err := h.Summarize(start, end)
		if err != nil {
			return err
		}

		if flagJSON {
			data, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), remote.FormatSummary(title, summary))
		return nil
	},
}

// reportRange resolves the flags into an inclusive day range
func reportRange(now time.Time) (time.Time, time.Time, string, error) {
	if flagFrom != "" || flagTo != "" {
		if flagWeekly || flagMonthly {
			return time.Time{}, time.Time{}, "", fmt.Errorf("--from/--to cannot be combined with --weekly or --monthly")
		}
		start, end := history.WindowDaily.Range(now)
		var err error
		if flagFrom != "" {
			if start, err = time.ParseInLocation(models.DayLayout, flagFrom, now.Location()); err != nil {
				return time.Time{}, time.Time{}, "", fmt.Errorf("invalid --from: %w", err)
			}
		}
		if flagTo != "" {
			if end, err = time.ParseInLocation(models.DayLayout, flagTo, now.Location()); err != nil {
				return time.Time{}, time.Time{}, "", fmt.Errorf("invalid --to: %w", err)
			}
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, "", fmt.Errorf("--to is before --from")
		}
		return start, end, "Report", nil
	}

	switch {
	case flagWeekly && flagMonthly:
		return time.Time{}, time.Time{}, "", fmt.Errorf("--weekly and --monthly are exclusive")
	case flagWeekly:
		start, end := history.WindowWeekly.Range(now)
		return start, end, "Weekly report", nil
	case flagMonthly:
		start, end := history.WindowMonthly.Range(now)
		return start, end, "Monthly report", nil
	}
	start, end := history.WindowDaily.Range(now)
	return start, end, "Daily report", nil
}

func init() {
	reportCmd.Flags().BoolVar(&flagWeekly, "weekly", false, "Last 7 days")
	reportCmd.Flags().BoolVar(&flagMonthly, "monthly", false, "Last 30 days")
	reportCmd.Flags().StringVar(&flagFrom, "from", "", "First day (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&flagTo, "to", "", "Last day (YYYY-MM-DD)")
	reportCmd.Flags().BoolVar(&flagJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(reportCmd)
}
