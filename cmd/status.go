package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/daemon"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/registry"
)

var (
	flagJSON  bool
	flagWatch bool
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the state of every slot",
	Long:    `Show the daemon and slot status. Falls back to the last snapshot on disk when the daemon is not reachable.`,
	Aliases: []string{"s"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagWatch {
			return showStatus(cmd.OutOrStdout())
		}
		// Watch mode - refresh every 2 seconds
		for {
			clearScreen(cmd.OutOrStdout())
			if err := showStatus(cmd.OutOrStdout()); err != nil {
				return err
			}
			select {
			case <-cmd.Context().Done():
				return nil
			case <-time.After(2 * time.Second):
			}
		}
	},
}

func showStatus(w io.Writer) error {
	snap, live, err := readSnapshot()
	if err != nil {
		return err
	}

	if flagJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	printDaemonStatus(w, snap, live)
	fmt.Fprintln(w)
	printSlots(w, snap, time.Now())
	return nil
}

// readSnapshot asks the daemon, then falls back to the registry file
func readSnapshot() (registry.Snapshot, bool, error) {
	if client, err := dialDaemon(); err == nil {
		defer client.Close()
		if snap, err := client.Status(); err == nil {
			return snap, true, nil
		}
	}

	dir, err := stateDir()
	if err != nil {
		return registry.Snapshot{}, false, err
	}
	snap, err := registry.New(daemon.NewPaths(dir).Registry).Read()
	return snap, false, err
}

func printDaemonStatus(w io.Writer, snap registry.Snapshot, live bool) {
	fmt.Fprintln(w, sectionStyle.Render("Daemon"))
	switch {
	case live && snap.Paused:
		fmt.Fprintf(w, "  %s %s (PID %d)\n", warningStyle.Render("●"), valueStyle.Render("paused"), snap.PID)
	case live:
		fmt.Fprintf(w, "  %s %s (PID %d)\n", successStyle.Render("●"), valueStyle.Render("running"), snap.PID)
	case len(snap.Slots) > 0:
		fmt.Fprintf(w, "  %s %s, last snapshot %s\n",
			errorStyle.Render("○"),
			mutedStyle.Render("not reachable"),
			humanize.Time(snap.UpdatedAt))
	default:
		fmt.Fprintf(w, "  %s %s\n", errorStyle.Render("○"), mutedStyle.Render("not running"))
	}
}

func printSlots(w io.Writer, snap registry.Snapshot, now time.Time) {
	fmt.Fprintf(w, "%s (%d)\n", sectionStyle.Render("Slots"), len(snap.Slots))
	if len(snap.Slots) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No slots"))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
		labelStyle.Render("SLOT"), labelStyle.Render("STATE"), labelStyle.Render("PROXY"),
		labelStyle.Render("RETRY"), labelStyle.Render("PROFIT"), labelStyle.Render("HEARTBEAT"))
	for _, st := range snap.Slots {
		proxy := st.Proxy
		if proxy == "" {
			proxy = "direct"
		}
		heartbeat := "-"
		if !st.LastHeartbeat.IsZero() {
			heartbeat = humanize.RelTime(st.LastHeartbeat, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			valueStyle.Render(strconv.Itoa(st.ID)),
			formatSlotState(st.State),
			mutedStyle.Render(proxy),
			valueStyle.Render(strconv.Itoa(st.Retries)),
			valueStyle.Render(humanize.FormatFloat("#,###.##", st.Stats.Profit)),
			mutedStyle.Render(heartbeat))
	}
	tw.Flush()
}

func formatSlotState(state models.SlotState) string {
	switch state {
	case models.SlotRunning:
		return successStyle.Render(string(state))
	case models.SlotPaused, models.SlotInitializing:
		return warningStyle.Render(string(state))
	case models.SlotRestarting:
		return errorStyle.Render(string(state))
	default:
		return mutedStyle.Render(string(state))
	}
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[H\033[2J")
}

func init() {
	statusCmd.Flags().BoolVar(&flagJSON, "json", false, "Output in JSON format")
	statusCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Refresh every 2 seconds")
	rootCmd.AddCommand(statusCmd)
}
