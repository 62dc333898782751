package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gabe/botpool/internal/history"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/proxy"
	"github.com/gabe/botpool/internal/scheduler"
)

// FormatStatus renders a per-slot summary for chat
func FormatStatus(slots []scheduler.SlotStatus, paused bool, now time.Time) string {
	if len(slots) == 0 {
		return "No slots are running."
	}

	running := 0
	for _, st := range slots {
		if st.State == models.SlotRunning {
			running++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pool: %d slots, %d running", len(slots), running)
	if paused {
		b.WriteString(" (paused)")
	}
	b.WriteString("\n")

	for _, st := range slots {
		fmt.Fprintf(&b, "#%d %s", st.ID, st.State)
		if st.Proxy != "" {
			fmt.Fprintf(&b, " via %s", st.Proxy)
		}
		fmt.Fprintf(&b, " | %d ok / %d err", st.Stats.Successes, st.Stats.Failures)
		if st.Retries > 0 {
			fmt.Fprintf(&b, " | retry %d", st.Retries)
		}
		if st.Stats.Restarts > 0 {
			fmt.Fprintf(&b, " | %s", pluralize(st.Stats.Restarts, "restart"))
		}
		fmt.Fprintf(&b, " | profit %.2f", st.Stats.Profit)
		if !st.LastHeartbeat.IsZero() {
			fmt.Fprintf(&b, " | seen %s", humanize.RelTime(st.LastHeartbeat, now, "ago", "from now"))
		}
		b.WriteString("\n")
	}
	b.WriteString("Use \"restart <id>\" to restart a slot.")
	return b.String()
}

// FormatSummary renders a report
func FormatSummary(title string, s history.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s to %s)\n", title, s.Start.Format(models.DayLayout), s.End.Format(models.DayLayout))
	fmt.Fprintf(&b, "Profit: %s (%s/day over %d days)\n",
		humanize.FormatFloat("#,###.##", s.TotalProfit),
		humanize.FormatFloat("#,###.##", s.AverageDailyProfit),
		s.NumDays)
	fmt.Fprintf(&b, "Participations: %s\n", humanize.Comma(int64(s.TotalParticipations)))
	fmt.Fprintf(&b, "Successes: %s, failures: %s\n",
		humanize.Comma(int64(s.TotalSuccesses)), humanize.Comma(int64(s.TotalFailures)))
	fmt.Fprintf(&b, "Active time: %s across %s\n",
		(time.Duration(s.TotalActiveTime) * time.Second).Round(time.Minute),
		pluralize(s.Sessions, "session"))
	if s.ROI != nil {
		fmt.Fprintf(&b, "ROI: %.2f%%\n", *s.ROI)
	} else {
		b.WriteString("ROI: n/a\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatProxies renders the proxy pool
func FormatProxies(records []proxy.Record) string {
	if len(records) == 0 {
		return "No proxies configured; slots connect directly."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", pluralize(len(records), "proxy"))
	for _, r := range records {
		fmt.Fprintf(&b, "%s: %s", r.Address, pluralize(r.Failures, "failure"))
		if len(r.Slots) > 0 {
			fmt.Fprintf(&b, ", slots %v", r.Slots)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if strings.HasSuffix(noun, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
