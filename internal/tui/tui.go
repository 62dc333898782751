// Package tui is the live pool dashboard behind "botpool top".
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/registry"
	"github.com/gabe/botpool/internal/scheduler"
)

const (
	refreshEvery = time.Second
	toastFor     = 4 * time.Second
)

// Source yields the current pool snapshot
type Source interface {
	Read() (registry.Snapshot, error)
}

// Controller acts on the pool. A nil Controller makes the dashboard
// read-only.
type Controller interface {
	Pause() error
	Resume() error
	RestartSlot(id int) (bool, error)
	Command(text string) (string, error)
}

type tickMsg time.Time

type snapshotMsg struct {
	snap registry.Snapshot
	err  error
}

type actionMsg struct {
	text string
	err  error
}

// Model is the dashboard state
type Model struct {
	source Source
	ctl    Controller
	now    func() time.Time

	table   table.Model
	spinner spinner.Model
	input   textinput.Model
	toasts  *ToastQueue

	snap registry.Snapshot
	err  error

	prompting   bool
	suggestions []PaletteCommand
	suggestIdx  int

	width, height int
}

var columns = []table.Column{
	{Title: "Slot", Width: 4},
	{Title: "State", Width: 12},
	{Title: "Proxy", Width: 22},
	{Title: "Retry", Width: 5},
	{Title: "OK", Width: 6},
	{Title: "Err", Width: 6},
	{Title: "Restarts", Width: 8},
	{Title: "Profit", Width: 10},
	{Title: "Heartbeat", Width: 16},
}

func tableWidth() int {
	w := 0
	for _, c := range columns {
		w += c.Width + 2 // cell padding
	}
	return w
}

// NewModel creates a dashboard reading from source
func NewModel(source Source, ctl Controller) Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithWidth(tableWidth()),
	)
	t.SetStyles(tableStyles())

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	in := textinput.New()
	in.Prompt = ":"
	in.PromptStyle = promptStyle
	in.Placeholder = "command"
	in.CharLimit = 64
	in.Cursor.SetMode(cursor.CursorStatic)

	return Model{
		source:      source,
		ctl:         ctl,
		now:         time.Now,
		table:       t,
		spinner:     sp,
		input:       in,
		toasts:      NewToastQueue(),
		suggestions: Commands,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) refresh() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		snap, err := source.Read()
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetHeight(clampHeight(msg.Height - 8))
		return m, nil

	case tickMsg:
		m.toasts.Expire(time.Time(msg))
		return m, tea.Batch(m.refresh(), tick())

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.table.SetRows(slotRows(msg.snap.Slots, m.now()))
		}
		return m, nil

	case actionMsg:
		toast := Toast{Message: msg.text, Expires: m.now().Add(toastFor)}
		if msg.err != nil {
			toast = Toast{Message: msg.err.Error(), Err: true, Expires: m.now().Add(toastFor)}
		}
		m.toasts.Push(toast)
		return m, m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.updateTable(msg)
	}
	return m, nil
}

func (m Model) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p":
		if m.ctl == nil {
			return m, nil
		}
		return m, m.togglePause()
	case "r":
		id, ok := m.selectedSlot()
		if m.ctl == nil || !ok {
			return m, nil
		}
		return m, m.restart(id)
	case ":":
		if m.ctl == nil {
			return m, nil
		}
		m.prompting = true
		m.input.Reset()
		m.suggestions = Commands
		m.suggestIdx = 0
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.prompting = false
		m.input.Blur()
		return m, nil
	case "tab", "down":
		m.suggestIdx = NextIndex(m.suggestIdx, len(m.suggestions), 1)
		return m, nil
	case "shift+tab", "up":
		m.suggestIdx = NextIndex(m.suggestIdx, len(m.suggestions), -1)
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if len(strings.Fields(text)) == 1 && len(m.suggestions) > 0 {
			// a lone prefix runs the highlighted command
			text = m.suggestions[m.suggestIdx].Name
		}
		m.prompting = false
		m.input.Blur()
		if text == "" {
			return m, nil
		}
		return m, m.command(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.suggestions = FilterCommands(Commands, m.input.Value())
	if m.suggestIdx >= len(m.suggestions) {
		m.suggestIdx = 0
	}
	return m, cmd
}

func (m Model) selectedSlot() (int, bool) {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return 0, false
	}
	id, err := strconv.Atoi(row[0])
	return id, err == nil
}

func (m Model) togglePause() tea.Cmd {
	ctl, paused := m.ctl, m.snap.Paused
	return func() tea.Msg {
		if paused {
			return actionMsg{text: "Resumed", err: ctl.Resume()}
		}
		return actionMsg{text: "Paused", err: ctl.Pause()}
	}
}

func (m Model) restart(id int) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ok, err := ctl.RestartSlot(id)
		if err == nil && !ok {
			return actionMsg{text: fmt.Sprintf("Slot %d not found", id)}
		}
		return actionMsg{text: fmt.Sprintf("Restarting slot %d", id), err: err}
	}
}

func (m Model) command(text string) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		reply, err := ctl.Command(text)
		return actionMsg{text: reply, err: err}
	}
}

func slotRows(slots []scheduler.SlotStatus, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(slots))
	for _, st := range slots {
		proxy := st.Proxy
		if proxy == "" {
			proxy = "direct"
		}
		heartbeat := "-"
		if !st.LastHeartbeat.IsZero() {
			heartbeat = humanize.RelTime(st.LastHeartbeat, now, "ago", "from now")
		}
		rows = append(rows, table.Row{
			strconv.Itoa(st.ID),
			string(st.State),
			proxy,
			strconv.Itoa(st.Retries),
			strconv.Itoa(st.Stats.Successes),
			strconv.Itoa(st.Stats.Failures),
			strconv.Itoa(st.Stats.Restarts),
			humanize.FormatFloat("#,###.##", st.Stats.Profit),
			heartbeat,
		})
	}
	return rows
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(logoStyle.Render("botpool") + " " + m.spinner.View() + "  " + m.summary())
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("snapshot unavailable: "+m.err.Error()) + "\n\n")
	}
	b.WriteString(panelStyle.Render(m.table.View()))
	b.WriteString("\n")

	if toast, ok := m.toasts.Peek(); ok {
		style := toastStyle
		if toast.Err {
			style = errorStyle
		}
		b.WriteString(style.Render(toast.Message) + "\n")
	}

	if m.prompting {
		b.WriteString(m.input.View() + "\n")
		b.WriteString(m.suggestionsView() + "\n")
	} else {
		b.WriteString(m.helpView() + "\n")
	}
	return b.String()
}

func (m Model) summary() string {
	if len(m.snap.Slots) == 0 {
		return helpStyle.Render("no slots")
	}

	counts := make(map[models.SlotState]int)
	for _, st := range m.snap.Slots {
		counts[st.State]++
	}
	parts := []string{summaryStyle.Render(fmt.Sprintf("%d slots", len(m.snap.Slots)))}
	for _, state := range []models.SlotState{
		models.SlotRunning, models.SlotPaused, models.SlotInitializing, models.SlotRestarting, models.SlotStopped,
	} {
		if n := counts[state]; n > 0 {
			style := lipgloss.NewStyle().Background(bgColor).Foreground(stateColor(state))
			parts = append(parts, style.Render(fmt.Sprintf("%d %s", n, state)))
		}
	}
	line := strings.Join(parts, helpStyle.Render(" · "))
	if m.snap.Paused {
		line += "  " + pausedStyle.Render("PAUSED")
	}
	return line
}

func (m Model) suggestionsView() string {
	var lines []string
	for i, cmd := range m.suggestions {
		text := fmt.Sprintf("%-16s %s", cmd.Name, cmd.Description)
		if i == m.suggestIdx {
			lines = append(lines, activeSuggestionStyle.Render(text))
		} else {
			lines = append(lines, suggestionStyle.Render(text))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) helpView() string {
	keys := [][2]string{{"↑/↓", "select"}, {"q", "quit"}}
	if m.ctl != nil {
		keys = [][2]string{{"↑/↓", "select"}, {"r", "restart"}, {"p", "pause/resume"}, {":", "command"}, {"q", "quit"}}
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, keyStyle.Render(k[0])+" "+helpStyle.Render(k[1]))
	}
	return strings.Join(parts, helpStyle.Render("  "))
}

func clampHeight(height int) int {
	if height < 3 {
		return 3
	}
	if height > 24 {
		return 24
	}
	return height
}

var startProgram = func(model tea.Model) error {
	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// Run shows the dashboard until the user quits
func Run(source Source, ctl Controller) error {
	return startProgram(NewModel(source, ctl))
}
