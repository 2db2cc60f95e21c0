package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/idlecrew/internal/events"
	"github.com/marcus/idlecrew/internal/planner"
	"github.com/marcus/idlecrew/internal/state"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

func sampleBoard() state.Board {
	return state.Board{
		Turn: 7,
		Tasks: []tasks.GlobalTask{
			{ID: "wood", DisplayName: "Wood", Priority: 1, Type: tasks.TypeGathering, TargetItemID: "wood", TargetQuantity: 10, CurrentProgress: 4, Policy: tasks.PolicySpecified},
			{ID: "stone", DisplayName: "Stone", Priority: 2, Type: tasks.TypeGathering, TargetItemID: "stone", Policy: tasks.PolicyUnlimited},
		},
		Teams: []teams.Team{
			{
				Name:        "Alpha",
				Active:      true,
				ActionState: teams.StateWorking,
				LocationID:  "forest",
				Members:     []teams.Member{{ID: "a"}, {ID: "b"}},
				Tasks:       []teams.TeamTask{{Priority: 1, Type: tasks.TypeGathering, Active: true}},
			},
			{Name: "Bravo", ActionState: teams.StateIdle, LocationID: "base"},
		},
	}
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out, cmd
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
		return
	}
	if m.width != 100 || m.height != 30 {
		t.Errorf("size = %dx%d, want 100x30", m.width, m.height)
	}
	if m.activePanel != PanelTeams {
		t.Errorf("activePanel = %d, want PanelTeams", m.activePanel)
	}
	if m.step != nil {
		t.Error("step should be unset without WithStep")
	}
	if m.styles == nil {
		t.Error("expected styles to be initialized")
	}
}

func TestFromBoard(t *testing.T) {
	plans := []state.TeamPlan{{TeamIndex: 0, Plan: planner.Plan{Action: planner.ActionExecuteGathering, TargetItem: "wood"}}}
	msg := FromBoard(sampleBoard(), plans)

	if msg.Turn != 7 {
		t.Errorf("Turn = %d, want 7", msg.Turn)
	}
	if len(msg.Teams) != 2 || len(msg.Tasks) != 2 {
		t.Fatalf("rows = %d teams, %d tasks", len(msg.Teams), len(msg.Tasks))
	}
	alpha := msg.Teams[0]
	if alpha.Task != tasks.TypeGathering || alpha.Members != 2 || alpha.Plan == "" {
		t.Errorf("alpha row = %+v", alpha)
	}
	if msg.Teams[1].Plan != "" {
		t.Errorf("bravo should have no plan, got %q", msg.Teams[1].Plan)
	}
	if got := msg.Tasks[0].Percent(); got != 40 {
		t.Errorf("wood percent = %d, want 40", got)
	}
	if got := msg.Tasks[1].Percent(); got != -1 {
		t.Errorf("unlimited percent = %d, want -1", got)
	}
}

func TestTaskItemPercentCaps(t *testing.T) {
	tests := []struct {
		item TaskItem
		want int
	}{
		{TaskItem{Progress: 0, Target: 5}, 0},
		{TaskItem{Progress: 5, Target: 5}, 100},
		{TaskItem{Progress: 9, Target: 5}, 100},
		{TaskItem{Progress: 3, Target: 0}, -1},
	}
	for _, tt := range tests {
		if got := tt.item.Percent(); got != tt.want {
			t.Errorf("Percent(%d/%d) = %d, want %d", tt.item.Progress, tt.item.Target, got, tt.want)
		}
	}
}

func TestBoardMsgClampsSelection(t *testing.T) {
	m := *New()
	m.selectedTask = 5
	m.selectedTeam = 3
	m, _ = update(t, m, FromBoard(sampleBoard(), nil))

	if m.turn != 7 {
		t.Errorf("turn = %d, want 7", m.turn)
	}
	if m.selectedTask != 1 || m.selectedTeam != 1 {
		t.Errorf("selection = team %d task %d, want 1/1", m.selectedTeam, m.selectedTask)
	}
	if m.lastTurn.IsZero() {
		t.Error("lastTurn should be stamped when the turn changes")
	}
}

func TestEventMsg(t *testing.T) {
	m := *New()
	m, _ = update(t, m, EventMsg{Type: events.CombatStarted, TeamIndex: 1, Time: time.Now()})
	m, _ = update(t, m, EventMsg{Type: events.TaskQuantityChanged, TaskID: "wood", OldQuantity: 5, NewQuantity: 8})

	if len(m.events) != 2 {
		t.Fatalf("events = %d, want 2", len(m.events))
	}
	if m.events[0].Level != "warn" {
		t.Errorf("combat level = %s, want warn", m.events[0].Level)
	}
	if !strings.Contains(m.events[1].Message, "5 -> 8") {
		t.Errorf("quantity message = %q", m.events[1].Message)
	}
}

func TestEventLogBounded(t *testing.T) {
	m := New()
	for i := 0; i < maxEvents+10; i++ {
		m.addEvent(events.Event{Type: events.TurnStarted, Turn: i})
	}
	if len(m.events) != maxEvents {
		t.Errorf("events = %d, want %d", len(m.events), maxEvents)
	}
	if !strings.HasSuffix(m.events[len(m.events)-1].Message, "509") {
		t.Errorf("newest event = %q", m.events[len(m.events)-1].Message)
	}
}

func TestErrMsg(t *testing.T) {
	m := *New()
	m.stepping = true
	m, _ = update(t, m, ErrMsg{Err: errors.New("boom")})
	if m.stepping {
		t.Error("stepping should clear on error")
	}
	if m.lastErr != "boom" || len(m.events) != 1 || m.events[0].Level != "error" {
		t.Errorf("error not recorded: %q %+v", m.lastErr, m.events)
	}
}

func TestPanelNavigation(t *testing.T) {
	m := *New()
	tab := tea.KeyMsg{Type: tea.KeyTab}

	m, _ = update(t, m, tab)
	if m.activePanel != PanelTasks {
		t.Errorf("after tab: %d, want PanelTasks", m.activePanel)
	}
	m, _ = update(t, m, tab)
	m, _ = update(t, m, tab)
	if m.activePanel != PanelTeams {
		t.Errorf("tab should wrap, got %d", m.activePanel)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.activePanel != PanelEvents {
		t.Errorf("shift+tab should wrap backwards, got %d", m.activePanel)
	}
}

func TestScrolling(t *testing.T) {
	m := *New()
	m, _ = update(t, m, FromBoard(sampleBoard(), nil))
	m.activePanel = PanelTasks

	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}}
	m, _ = update(t, m, down)
	m, _ = update(t, m, down)
	if m.selectedTask != 1 {
		t.Errorf("selectedTask = %d, want 1", m.selectedTask)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	if m.selectedTask != 0 {
		t.Errorf("g should jump to top, got %d", m.selectedTask)
	}
}

func TestStepKey(t *testing.T) {
	calls := 0
	step := func() tea.Msg {
		calls++
		return FromBoard(state.Board{Turn: 1}, nil)
	}

	m := *New(WithStep(step, time.Second))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	if cmd == nil || !m.stepping {
		t.Fatal("n should issue a step command")
	}
	// A second press while stepping is ignored.
	if _, again := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}}); again != nil {
		t.Error("step should not be issued twice")
	}

	m, _ = update(t, m, cmd())
	if calls != 1 || m.stepping || m.turn != 1 {
		t.Errorf("calls=%d stepping=%v turn=%d", calls, m.stepping, m.turn)
	}
}

func TestAutoStepOnTick(t *testing.T) {
	step := func() tea.Msg { return nil }
	m := *New(WithStep(step, 2*time.Second))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	if !m.auto {
		t.Fatal("a should toggle auto")
	}

	m, _ = update(t, m, tickMsg(time.Now()))
	if m.stepping {
		t.Error("first tick should not step yet")
	}
	m, _ = update(t, m, tickMsg(time.Now()))
	if !m.stepping {
		t.Error("second tick should step")
	}
}

func TestNoStepWithoutFunc(t *testing.T) {
	m := *New()
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	if cmd != nil || m.stepping {
		t.Error("n without a step func should do nothing")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	if m.auto {
		t.Error("auto needs a step func")
	}
}

func TestQuit(t *testing.T) {
	m := *New()
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !m.quitting || cmd == nil {
		t.Error("q should quit")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestWindowResize(t *testing.T) {
	m := *New()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 50})
	if m.width != 140 || m.height != 50 {
		t.Errorf("size = %dx%d", m.width, m.height)
	}
}

func TestView(t *testing.T) {
	m := *New(WithStep(func() tea.Msg { return nil }, 0))
	m, _ = update(t, m, FromBoard(sampleBoard(), []state.TeamPlan{{TeamIndex: 0, Plan: planner.Plan{Action: planner.ActionExecuteGathering}}}))
	m.AddLog("info", "hello crew")

	view := m.View()
	for _, want := range []string{"Turn 7", "Alpha", "Bravo", "Backlog (2/20)", "Wood", "hello crew", "next turn"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewEmpty(t *testing.T) {
	view := New().View()
	for _, want := range []string{"No teams", "No tasks queued", "No events yet"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "next turn") {
		t.Error("help should hide step keys without a step func")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{49 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Errorf("short string changed: %q", got)
	}
}

func TestObserverNilProgram(t *testing.T) {
	var o events.Observer = Observer{}
	o.Notify(events.Event{Type: events.TurnStarted})
}

func TestWithBoard(t *testing.T) {
	m := New(WithBoard(FromBoard(sampleBoard(), nil)))
	if m.turn != 7 || len(m.teams) != 2 || len(m.tasks) != 2 {
		t.Errorf("seeded model = turn %d, %d teams, %d tasks", m.turn, len(m.teams), len(m.tasks))
	}
	if !m.lastTurn.IsZero() {
		t.Error("seeding should not stamp a turn time")
	}
}
