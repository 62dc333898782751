// Package remote lets allow-listed operators drive the pool over chat
// transports.
package remote

import (
	"strings"
	"time"

	"github.com/gabe/botpool/internal/models"
)

// Command names
const (
	CmdStatus        = "status"
	CmdRestart       = "restart"
	CmdStop          = "stop"
	CmdEmergencyStop = "emergency-stop"
	CmdReport        = "report"
	CmdReportWeekly  = "report-weekly"
	CmdReportMonthly = "report-monthly"
	CmdPause         = "pause"
	CmdResume        = "resume"
	CmdProxies       = "proxies"
	CmdHelp          = "help"
)

var helpText = strings.Join([]string{
	"status - per-slot summary",
	"restart <slot> - restart one slot",
	"pause / resume - stop or resume dispatching tasks",
	"stop - graceful stop",
	"emergency-stop - kill every browser now",
	"report - today's numbers",
	"report-weekly - last 7 days",
	"report-monthly - last 30 days",
	"proxies - proxy pool and failure counts",
}, "\n")

// ParseCommand turns chat text into a command. Leading slashes and
// "@botname" suffixes are dropped and underscores read as dashes, so
// "/emergency_stop@pool_bot" is emergency-stop. ok is false for blank text.
func ParseCommand(text string, channelID int64, at time.Time) (models.Command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return models.Command{}, false
	}

	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(strings.ToLower(name), "_", "-")
	if name == "" {
		return models.Command{}, false
	}

	return models.Command{
		Name:       name,
		Args:       fields[1:],
		ChannelID:  channelID,
		ReceivedAt: at,
	}, true
}
