// Package ui provides a terminal dashboard for watching turns: teams, the
// global backlog and the event stream.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/idlecrew/internal/events"
	"github.com/marcus/idlecrew/internal/state"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

// Panel represents which panel is currently focused.
type Panel int

const (
	PanelTeams Panel = iota
	PanelTasks
	PanelEvents
)

const panelCount = 3

// maxEvents bounds the event log kept in memory.
const maxEvents = 500

// TeamRow is one line of the teams panel.
type TeamRow struct {
	Index    int
	Name     string
	Active   bool
	State    teams.ActionState
	InCombat bool
	Location string
	Task     tasks.TaskType
	Members  int
	Plan     string
}

// TaskItem is one line of the backlog panel.
type TaskItem struct {
	ID        string
	Name      string
	Type      tasks.TaskType
	Priority  int
	Policy    tasks.ConsumptionPolicy
	Progress  int
	Target    int
	Completed bool
}

// Percent returns progress as 0-100, or -1 when the task has no target.
func (t TaskItem) Percent() int {
	if t.Target <= 0 {
		return -1
	}
	return min(100, t.Progress*100/t.Target)
}

// LogEntry is one line of the events panel.
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
}

// BoardMsg replaces the teams and tasks panels.
type BoardMsg struct {
	Turn  int
	Teams []TeamRow
	Tasks []TaskItem
}

// EventMsg appends a scheduler notification to the events panel.
type EventMsg events.Event

// ErrMsg reports a failed turn.
type ErrMsg struct{ Err error }

// StepFunc advances the world by one turn and returns the message to show.
type StepFunc func() tea.Msg

// FromBoard builds a BoardMsg from a board and the plans issued for it.
func FromBoard(b state.Board, plans []state.TeamPlan) BoardMsg {
	byTeam := make(map[int]string, len(plans))
	for _, tp := range plans {
		byTeam[tp.TeamIndex] = tp.Plan.String()
	}
	msg := BoardMsg{Turn: b.Turn}
	for i, t := range b.Teams {
		taskType := t.AssignedTask
		if slot, ok := t.ActiveTask(); ok {
			taskType = slot.Type
		}
		msg.Teams = append(msg.Teams, TeamRow{
			Index:    i,
			Name:     t.Name,
			Active:   t.Active,
			State:    t.ActionState,
			InCombat: t.InCombat,
			Location: t.LocationID,
			Task:     taskType,
			Members:  len(t.Members),
			Plan:     byTeam[i],
		})
	}
	for _, t := range b.Tasks {
		msg.Tasks = append(msg.Tasks, TaskItem{
			ID:        t.ID,
			Name:      t.DisplayName,
			Type:      t.Type,
			Priority:  t.Priority,
			Policy:    t.Policy,
			Progress:  t.CurrentProgress,
			Target:    t.TargetQuantity,
			Completed: t.Completed,
		})
	}
	return msg
}

// Model holds the TUI state.
type Model struct {
	width       int
	height      int
	activePanel Panel
	quitting    bool

	turn     int
	lastTurn time.Time
	lastErr  string

	// auto-advance
	step     StepFunc
	auto     bool
	stepping bool
	interval time.Duration
	sinceRun time.Duration

	teams        []TeamRow
	selectedTeam int

	tasks        []TaskItem
	selectedTask int

	events    []LogEntry
	logScroll int

	progressTick int
	styles       *Styles
}

// Styles holds lipgloss styles for the UI.
type Styles struct {
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	Title     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Muted     lipgloss.Style
	Selected  lipgloss.Style
	Highlight lipgloss.Style

	StateIdle    lipgloss.Style
	StateBusy    lipgloss.Style
	StateCombat  lipgloss.Style
	StateBlocked lipgloss.Style

	LogInfo  lipgloss.Style
	LogWarn  lipgloss.Style
	LogError lipgloss.Style

	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	accent := lipgloss.AdaptiveColor{Light: "#2f6f4f", Dark: "#56d39b"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		ActiveBorder:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent),
		InactiveBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(subtle),

		Title:     lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1),
		Label:     lipgloss.NewStyle().Foreground(subtle),
		Value:     lipgloss.NewStyle().Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(subtle),
		Selected:  lipgloss.NewStyle().Background(accent).Foreground(lipgloss.Color("#fff")).Bold(true),
		Highlight: lipgloss.NewStyle().Foreground(accent).Bold(true),

		StateIdle:    lipgloss.NewStyle().Foreground(subtle),
		StateBusy:    lipgloss.NewStyle().Foreground(blue).Bold(true),
		StateCombat:  lipgloss.NewStyle().Foreground(red).Bold(true),
		StateBlocked: lipgloss.NewStyle().Foreground(yellow).Bold(true),

		LogInfo:  lipgloss.NewStyle().Foreground(blue),
		LogWarn:  lipgloss.NewStyle().Foreground(yellow),
		LogError: lipgloss.NewStyle().Foreground(red),

		HelpKey:  lipgloss.NewStyle().Foreground(accent).Bold(true),
		HelpText: lipgloss.NewStyle().Foreground(subtle),
	}
}

// tickMsg is sent periodically to update the UI.
type tickMsg time.Time

const tickEvery = time.Second

// Option configures the model.
type Option func(*Model)

// WithStep lets the user advance turns with "n" and toggle auto-advance
// every interval with "a".
func WithStep(fn StepFunc, interval time.Duration) Option {
	return func(m *Model) {
		m.step = fn
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithBoard seeds the teams and tasks panels.
func WithBoard(msg BoardMsg) Option {
	return func(m *Model) {
		m.applyBoard(msg)
		m.lastTurn = time.Time{}
	}
}

// New creates a new TUI model.
func New(opts ...Option) *Model {
	m := &Model{
		width:       100,
		height:      30,
		activePanel: PanelTeams,
		interval:    5 * time.Second,
		styles:      newStyles(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen)
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.progressTick++
		if m.auto && !m.stepping && m.step != nil {
			m.sinceRun += tickEvery
			if m.sinceRun >= m.interval {
				m.sinceRun = 0
				m.stepping = true
				return m, tea.Batch(tickCmd(), tea.Cmd(m.step))
			}
		}
		return m, tickCmd()

	case BoardMsg:
		m.applyBoard(msg)
		return m, nil

	case EventMsg:
		m.addEvent(events.Event(msg))
		return m, nil

	case ErrMsg:
		m.stepping = false
		m.lastErr = msg.Err.Error()
		m.AddLog("error", msg.Err.Error())
		return m, nil
	}

	return m, nil
}

func (m *Model) applyBoard(msg BoardMsg) {
	if msg.Turn != m.turn {
		m.lastTurn = time.Now()
	}
	m.turn = msg.Turn
	m.stepping = false
	m.lastErr = ""
	m.teams = msg.Teams
	m.tasks = msg.Tasks
	if m.selectedTask >= len(m.tasks) {
		m.selectedTask = max(0, len(m.tasks)-1)
	}
	if m.selectedTeam >= len(m.teams) {
		m.selectedTeam = max(0, len(m.teams)-1)
	}
}

func (m *Model) addEvent(e events.Event) {
	level := "info"
	switch e.Type {
	case events.CombatStarted, events.CombatEnded:
		level = "warn"
	case events.TurnStarted, events.TurnEnded, events.PlanIssued:
		level = "debug"
	}
	m.events = append(m.events, LogEntry{Time: e.Time, Level: level, Message: describe(e)})
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	if m.logScroll >= len(m.events)-2 {
		m.logScroll = len(m.events) - 1
	}
}

func describe(e events.Event) string {
	switch e.Type {
	case events.TurnStarted, events.TurnEnded:
		return fmt.Sprintf("%s %d", e.Type, e.Turn)
	case events.PlanIssued:
		return fmt.Sprintf("team %d: %s", e.TeamIndex, e.Message)
	case events.TaskAdded, events.TaskRemoved, events.TaskCompleted, events.TaskPriorityChanged:
		return fmt.Sprintf("%s %s (p%d)", e.Type, e.TaskID, e.Priority)
	case events.TaskQuantityChanged:
		return fmt.Sprintf("%s %s %d -> %d", e.Type, e.TaskID, e.OldQuantity, e.NewQuantity)
	case events.ActionStateChanged:
		return fmt.Sprintf("team %d: %s", e.TeamIndex, e.Message)
	}
	s := fmt.Sprintf("team %d: %s", e.TeamIndex, e.Type)
	if e.TaskType != "" {
		s += " " + e.TaskType
	}
	if e.Reason != "" {
		s += " (" + e.Reason + ")"
	}
	return s
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "right", "l":
		m.activePanel = (m.activePanel + 1) % panelCount
	case "shift+tab", "left", "h":
		m.activePanel = (m.activePanel + panelCount - 1) % panelCount

	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	case "home", "g":
		m.move(-maxEvents * 2)
	case "end", "G":
		m.move(maxEvents * 2)

	case "n":
		if m.step != nil && !m.stepping {
			m.stepping = true
			return m, tea.Cmd(m.step)
		}
	case "a":
		if m.step != nil {
			m.auto = !m.auto
			m.sinceRun = 0
		}
	}
	return m, nil
}

func (m *Model) move(delta int) {
	clamp := func(v, n int) int {
		return max(0, min(v, n-1))
	}
	switch m.activePanel {
	case PanelTeams:
		m.selectedTeam = clamp(m.selectedTeam+delta, len(m.teams))
	case PanelTasks:
		m.selectedTask = clamp(m.selectedTask+delta, len(m.tasks))
	case PanelEvents:
		m.logScroll = clamp(m.logScroll+delta, len(m.events))
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	topHeight := m.height / 2
	bottomHeight := m.height - topHeight - 3
	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth

	teamsPanel := m.renderTeamsPanel(leftWidth-2, topHeight-2)
	tasksPanel := m.renderTasksPanel(rightWidth-2, topHeight-2)
	eventsPanel := m.renderEventsPanel(m.width-2, bottomHeight-2)

	topRow := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.border(PanelTeams).Width(leftWidth-2).Height(topHeight-2).Render(teamsPanel),
		m.border(PanelTasks).Width(rightWidth-2).Height(topHeight-2).Render(tasksPanel),
	)
	return lipgloss.JoinVertical(
		lipgloss.Left,
		topRow,
		m.border(PanelEvents).Width(m.width-2).Height(bottomHeight-2).Render(eventsPanel),
		m.renderHelpBar(),
	)
}

func (m Model) border(panel Panel) lipgloss.Style {
	if m.activePanel == panel {
		return m.styles.ActiveBorder
	}
	return m.styles.InactiveBorder
}

func (m Model) stateStyle(row TeamRow) lipgloss.Style {
	switch {
	case !row.Active:
		return m.styles.Muted
	case row.InCombat:
		return m.styles.StateCombat
	case row.State == teams.StateIdle:
		return m.styles.StateIdle
	case row.State == teams.StateLocked:
		return m.styles.StateBlocked
	}
	return m.styles.StateBusy
}

func (m Model) renderTeamsPanel(width, height int) string {
	var b strings.Builder

	title := fmt.Sprintf("Turn %d", m.turn)
	if m.auto {
		title += " (auto)"
	}
	b.WriteString(m.styles.Title.Render(title))
	b.WriteString("\n")
	if !m.lastTurn.IsZero() {
		b.WriteString(m.styles.Label.Render("Last turn: "))
		b.WriteString(m.styles.Value.Render(formatDuration(time.Since(m.lastTurn)) + " ago"))
		b.WriteString("\n")
	}
	if m.lastErr != "" {
		b.WriteString(m.styles.LogError.Render(truncate(m.lastErr, width)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(m.teams) == 0 {
		b.WriteString(m.styles.Muted.Render("No teams"))
		return b.String()
	}

	for i, row := range m.teams {
		state := string(row.State)
		if m.stepping && row.State != teams.StateIdle {
			state = m.spinner() + " " + state
		}
		line := fmt.Sprintf(" %s %s @%s [%s] %dp",
			row.Name, m.stateStyle(row).Render(state), row.Location, row.Task, row.Members)
		if i == m.selectedTeam && m.activePanel == PanelTeams {
			line = m.styles.Selected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		if row.Plan != "" {
			b.WriteString(m.styles.Muted.Render("   " + truncate(row.Plan, width-4)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderTasksPanel(width, height int) string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(fmt.Sprintf("Backlog (%d/%d)", len(m.tasks), tasks.MaxGlobalTasks)))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(m.styles.Muted.Render("No tasks queued"))
		return b.String()
	}

	visible := max(1, height-4)
	scroll := 0
	if m.selectedTask >= visible {
		scroll = m.selectedTask - visible + 1
	}

	barWidth := max(6, width/4)
	for i := scroll; i < len(m.tasks) && i < scroll+visible; i++ {
		task := m.tasks[i]
		icon := "o"
		if task.Completed {
			icon = "*"
		}
		line := fmt.Sprintf(" %s %2d %s %s", icon, task.Priority, m.renderProgressBar(task.Percent(), barWidth), task.Name)
		if task.Policy != tasks.PolicyUnlimited {
			line += m.styles.Muted.Render(fmt.Sprintf(" %s %d/%d", task.Policy, task.Progress, task.Target))
		}
		if i == m.selectedTask && m.activePanel == PanelTasks {
			line = m.styles.Selected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.tasks) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", m.selectedTask+1, len(m.tasks))))
	}
	return b.String()
}

func (m Model) renderProgressBar(pct, width int) string {
	if pct < 0 {
		return "[" + m.styles.Muted.Render(strings.Repeat("~", width)) + "]"
	}
	filled := min(width, width*pct/100)
	bar := strings.Repeat("=", filled) + strings.Repeat("-", width-filled)
	return "[" + m.styles.Highlight.Render(bar) + "]"
}

func (m Model) spinner() string {
	frames := []string{"|", "/", "-", "\\"}
	return frames[m.progressTick%len(frames)]
}

func (m Model) renderEventsPanel(width, height int) string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Events"))
	b.WriteString("\n\n")

	if len(m.events) == 0 {
		b.WriteString(m.styles.Muted.Render("No events yet"))
		return b.String()
	}

	visible := max(1, height-4)
	start := m.logScroll - visible + 1
	start = max(0, min(start, len(m.events)-visible))

	for i := start; i < len(m.events) && i < start+visible; i++ {
		entry := m.events[i]
		style := m.styles.Muted
		switch entry.Level {
		case "info":
			style = m.styles.LogInfo
		case "warn":
			style = m.styles.LogWarn
		case "error":
			style = m.styles.LogError
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			m.styles.Muted.Render(entry.Time.Format("15:04:05")),
			style.Render(fmt.Sprintf("[%-5s]", entry.Level)),
			truncate(entry.Message, width-20),
		))
	}
	return b.String()
}

func (m Model) renderHelpBar() string {
	items := []struct{ key, desc string }{
		{"tab", "switch panel"},
		{"j/k", "up/down"},
	}
	if m.step != nil {
		items = append(items, struct{ key, desc string }{"n", "next turn"}, struct{ key, desc string }{"a", "auto"})
	}
	items = append(items, struct{ key, desc string }{"q", "quit"})

	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, m.styles.HelpKey.Render(item.key)+" "+m.styles.HelpText.Render(item.desc))
	}
	return "  " + strings.Join(parts, "  |  ")
}

func truncate(s string, n int) string {
	if n > 3 && len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// AddLog appends a free-form line to the events panel.
func (m *Model) AddLog(level, message string) {
	m.events = append(m.events, LogEntry{Time: time.Now(), Level: level, Message: message})
	if m.logScroll >= len(m.events)-2 {
		m.logScroll = len(m.events) - 1
	}
}

// Observer forwards flushed notifications to a running program.
type Observer struct {
	Program *tea.Program
}

// Notify implements events.Observer.
func (o Observer) Notify(e events.Event) {
	if o.Program != nil {
		o.Program.Send(EventMsg(e))
	}
}

// Run starts the TUI and blocks until it exits.
func (m *Model) Run() error {
	_, err := m.Program().Run()
	return err
}

// Program wraps the model in a program so callers can wire an Observer
// before running it.
func (m *Model) Program() *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}
