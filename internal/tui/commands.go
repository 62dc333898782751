package tui

import "strings"

// PaletteCommand is an operator command offered by the ":" prompt
type PaletteCommand struct {
	Name        string
	Description string
	Shortcut    string
}

// Commands lists what the prompt completes
var Commands = []PaletteCommand{
	{Name: "status", Description: "per-slot summary"},
	{Name: "restart", Description: "restart <slot>", Shortcut: "r"},
	{Name: "pause", Description: "stop dispatching tasks", Shortcut: "p"},
	{Name: "resume", Description: "resume dispatching", Shortcut: "p"},
	{Name: "report", Description: "today's numbers"},
	{Name: "report-weekly", Description: "last 7 days"},
	{Name: "report-monthly", Description: "last 30 days"},
	{Name: "proxies", Description: "proxy pool and failures"},
	{Name: "stop", Description: "graceful stop"},
	{Name: "emergency-stop", Description: "kill every browser now"},
}

// FilterCommands returns the commands whose name starts with the first word
// of input
func FilterCommands(commands []PaletteCommand, input string) []PaletteCommand {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	if len(fields) == 0 {
		return commands
	}
	query := fields[0]
	var out []PaletteCommand
	for _, cmd := range commands {
		if strings.HasPrefix(cmd.Name, query) {
			out = append(out, cmd)
		}
	}
	return out
}

func NextIndex(current int, total int, delta int) int {
	if total <= 0 {
		return 0
	}
	updated := current + delta
	if updated < 0 {
		return total - 1
	}
	if updated >= total {
		return 0
	}
	return updated
}
