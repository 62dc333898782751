package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/gabe/botpool/internal/models"
)

// Dark palette
var (
	bgColor        = lipgloss.Color("#0a0a0a")
	bgPanelColor   = lipgloss.Color("#141414")
	bgElementColor = lipgloss.Color("#1e1e1e")

	borderSubtleColor = lipgloss.Color("#3c3c3c")

	primaryColor   = lipgloss.Color("#fab283") // warm peach
	secondaryColor = lipgloss.Color("#5c9cf5") // blue

	errorColor   = lipgloss.Color("#e06c75")
	warningColor = lipgloss.Color("#f5a742")
	successColor = lipgloss.Color("#7fd88f")
	infoColor    = lipgloss.Color("#56b6c2")

	textColor      = lipgloss.Color("#eeeeee")
	textMutedColor = lipgloss.Color("#808080")
)

var baseStyle = lipgloss.NewStyle().Background(bgColor)

var (
	logoStyle = baseStyle.
			Foreground(primaryColor).
			Bold(true)

	summaryStyle = baseStyle.
			Foreground(textColor)

	pausedStyle = baseStyle.
			Foreground(warningColor).
			Bold(true)

	errorStyle = baseStyle.
			Foreground(errorColor)

	toastStyle = baseStyle.
			Foreground(infoColor)

	helpStyle = baseStyle.
			Foreground(textMutedColor)

	keyStyle = baseStyle.
			Foreground(textColor).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Background(bgPanelColor).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(borderSubtleColor)

	promptStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	suggestionStyle = lipgloss.NewStyle().
			Foreground(textMutedColor)

	activeSuggestionStyle = lipgloss.NewStyle().
				Foreground(primaryColor).
				Background(bgElementColor)
)

// stateColor colors a slot state in the table
func stateColor(state models.SlotState) lipgloss.Color {
	switch state {
	case models.SlotRunning:
		return successColor
	case models.SlotPaused:
		return warningColor
	case models.SlotRestarting, models.SlotInitializing:
		return infoColor
	case models.SlotStopped:
		return errorColor
	default:
		return textMutedColor
	}
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(borderSubtleColor).
		BorderBottom(true).
		Foreground(primaryColor).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(textColor).
		Background(bgElementColor).
		Bold(false)
	return s
}
