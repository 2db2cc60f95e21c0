// Package reporting renders markdown reports of recent turns: what the
// teams did, how the backlog moved and what needs attention next.
package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/marcus/idlecrew/internal/config"
	"github.com/marcus/idlecrew/internal/logging"
	"github.com/marcus/idlecrew/internal/planner"
	"github.com/marcus/idlecrew/internal/state"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

// Report is a generated turn report.
type Report struct {
	Date         time.Time
	Content      string
	FirstTurn    int
	LastTurn     int
	Turns        int
	FailedTurns  []state.TurnRecord
	ActionCounts map[planner.Action]int
	Completed    int
	Open         int
}

// Generator creates turn reports.
type Generator struct {
	logger *logging.Logger
	now    func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator() *Generator {
	return &Generator{
		logger: logging.Component("reporting"),
		now:    time.Now,
	}
}

// Generate builds a report from turn records, newest first as returned by
// the turn history, and the board they left behind.
func (g *Generator) Generate(records []state.TurnRecord, board state.Board) (*Report, error) {
	if len(records) == 0 {
		return nil, errors.New("no turns to report")
	}

	r := &Report{
		Date:         g.now(),
		FirstTurn:    records[len(records)-1].Turn,
		LastTurn:     records[0].Turn,
		Turns:        len(records),
		ActionCounts: make(map[planner.Action]int),
	}
	for _, rec := range records {
		if rec.Error != "" {
			r.FailedTurns = append(r.FailedTurns, rec)
		}
		for _, tp := range rec.Plans {
			r.ActionCounts[tp.Plan.Action]++
		}
	}
	for _, t := range board.Tasks {
		if t.Completed {
			r.Completed++
		} else {
			r.Open++
		}
	}

	r.Content = g.renderMarkdown(r, records, board)
	return r, nil
}

func (g *Generator) renderMarkdown(r *Report, records []state.TurnRecord, board state.Board) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Idlecrew Report - %s\n\n", r.Date.Format("2006-01-02"))

	buf.WriteString("## Turns\n")
	fmt.Fprintf(&buf, "- Range: %d to %d (%d turns)\n", r.FirstTurn, r.LastTurn, r.Turns)
	fmt.Fprintf(&buf, "- Failed: %d\n", len(r.FailedTurns))
	var busy time.Duration
	for _, rec := range records {
		busy += rec.Duration()
	}
	fmt.Fprintf(&buf, "- Planning time: %s\n\n", busy.Round(time.Millisecond))

	if len(r.ActionCounts) > 0 {
		buf.WriteString("## Actions\n")
		type actionCount struct {
			action planner.Action
			count  int
		}
		counts := make([]actionCount, 0, len(r.ActionCounts))
		for a, n := range r.ActionCounts {
			counts = append(counts, actionCount{a, n})
		}
		sort.Slice(counts, func(i, j int) bool {
			if counts[i].count != counts[j].count {
				return counts[i].count > counts[j].count
			}
			return counts[i].action < counts[j].action
		})
		for _, c := range counts {
			fmt.Fprintf(&buf, "- %s: %d\n", c.action, c.count)
		}
		buf.WriteString("\n")
	}

	if len(board.Tasks) > 0 {
		buf.WriteString("## Backlog\n")
		list := append([]tasks.GlobalTask(nil), board.Tasks...)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
		for _, t := range list {
			buf.WriteString(formatTaskLine(t))
		}
		buf.WriteString("\n")
	}

	if len(board.Teams) > 0 {
		buf.WriteString("## Teams\n")
		for _, t := range board.Teams {
			buf.WriteString(formatTeamLine(t))
		}
		buf.WriteString("\n")
	}

	if len(r.FailedTurns) > 0 {
		buf.WriteString("## Failed Turns\n")
		for _, rec := range r.FailedTurns {
			fmt.Fprintf(&buf, "- **Turn %d**: %s\n", rec.Turn, rec.Error)
		}
		buf.WriteString("\n")
	}

	if next := whatsNext(board); len(next) > 0 {
		buf.WriteString("## What's Next?\n")
		for _, item := range next {
			fmt.Fprintf(&buf, "- %s\n", item)
		}
		buf.WriteString("\n")
	}

	if len(board.Storage) > 0 {
		items := make([]string, 0, len(board.Storage))
		for item := range board.Storage {
			items = append(items, item)
		}
		sort.Strings(items)
		buf.WriteString("---\n*Storage:")
		for _, item := range items {
			fmt.Fprintf(&buf, " %s %d", item, board.Storage[item])
		}
		buf.WriteString("*\n")
	}

	return buf.String()
}

func formatTaskLine(t tasks.GlobalTask) string {
	mark := "[ ]"
	if t.Completed {
		mark = "[x]"
	}
	switch t.Policy {
	case tasks.PolicyUnlimited:
		return fmt.Sprintf("- %s %d. %s (%s, %d so far)\n", mark, t.Priority, t.DisplayName, t.Type, t.CurrentProgress)
	case tasks.PolicyKeep:
		return fmt.Sprintf("- %s %d. %s (%s, keep %d)\n", mark, t.Priority, t.DisplayName, t.Type, t.TargetQuantity)
	}
	return fmt.Sprintf("- %s %d. %s (%s, %d/%d, %d%%)\n", mark, t.Priority, t.DisplayName, t.Type,
		t.CurrentProgress, t.TargetQuantity, int(t.ProgressRatio()*100))
}

func formatTeamLine(t teams.Team) string {
	status := string(t.ActionState)
	if t.InCombat {
		status = "in combat"
	}
	if !t.Active {
		status = "inactive"
	}
	return fmt.Sprintf("- **%s** %s at %s, %d members, task %s\n", t.Name, status, t.LocationID, len(t.Members), t.AssignedTask)
}

// whatsNext lists teams and tasks that need a player's attention.
func whatsNext(board state.Board) []string {
	var items []string
	covered := make(map[tasks.TaskType]bool)
	for _, t := range board.Teams {
		if !t.Active {
			continue
		}
		for _, slot := range t.Tasks {
			covered[slot.Type] = true
		}
		switch {
		case len(t.Members) == 0:
			items = append(items, fmt.Sprintf("Assign members to %s", t.Name))
		case len(t.Tasks) == 0:
			items = append(items, fmt.Sprintf("Give %s a task slot", t.Name))
		case t.ActionState == teams.StateIdle:
			items = append(items, fmt.Sprintf("%s is idle; check slot requirements", t.Name))
		}
	}
	for _, t := range board.Tasks {
		if !t.Completed && !covered[t.Type] && !covered[tasks.TypeAll] {
			items = append(items, fmt.Sprintf("No active team takes %s tasks (%s)", t.Type, t.DisplayName))
		}
	}
	return items
}

// Save writes the report to path.
func (g *Generator) Save(r *Report, path string) error {
	if r == nil {
		return errors.New("report cannot be nil")
	}
	path = logging.ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(r.Content), 0644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	g.logger.Infof("report saved to %s", path)
	return nil
}

// DefaultReportPath returns the default path for a report written on date.
func DefaultReportPath(date time.Time) string {
	return filepath.Join(config.DefaultDataDir(), "reports",
		fmt.Sprintf("report-%s.md", date.Format("2006-01-02")))
}
