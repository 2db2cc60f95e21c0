// Package state persists the scheduling board (backlog, teams, stock) and
// per-turn history in SQLite.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/marcus/idlecrew/internal/db"
	"github.com/marcus/idlecrew/internal/logging"
	"github.com/marcus/idlecrew/internal/planner"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

// storageOwner is the inventory owner key for shared base storage.
const storageOwner = ""

const turnMetaKey = "turn"

// maxHistory bounds the turn_history table.
const maxHistory = 500

// Board is the complete persisted scheduling state.
type Board struct {
	Turn    int                       `json:"turn"`
	Tasks   []tasks.GlobalTask        `json:"tasks"`
	Teams   []teams.Team              `json:"teams"`
	Storage map[string]int            `json:"storage"`
	Members map[string]map[string]int `json:"members"`
}

// TeamPlan is the plan one team received during a turn.
type TeamPlan struct {
	TeamIndex int          `json:"team"`
	Plan      planner.Plan `json:"plan"`
}

// TurnRecord summarizes one scheduling pass.
type TurnRecord struct {
	Turn           int        `json:"turn"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        time.Time  `json:"ended_at"`
	Plans          []TeamPlan `json:"plans"`
	Events         int        `json:"events"`
	ResolvedCombat int        `json:"resolved_combat"`
	Error          string     `json:"error,omitempty"`
}

// Duration returns how long the pass took.
func (r TurnRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// State reads and writes the board.
type State struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *logging.Logger
}

// New creates a State backed by database.
func New(database *db.DB) (*State, error) {
	if database == nil || database.SQL() == nil {
		return nil, errors.New("state: db is nil")
	}
	return &State{db: database.SQL(), logger: logging.Component("state")}, nil
}

// Save replaces the stored board with b.
func (s *State) Save(ctx context.Context, b Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"team_tasks", "team_members", "teams", "global_tasks", "inventory"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for pos, t := range b.Tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO global_tasks (id, position, display_name, priority, type, target_item,
				target_quantity, current_progress, completed, policy, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, pos, t.DisplayName, t.Priority, string(t.Type), t.TargetItemID,
			t.TargetQuantity, t.CurrentProgress, boolInt(t.Completed), string(t.Policy), t.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}

	for idx, team := range b.Teams {
		if err := saveTeam(ctx, tx, idx, team); err != nil {
			return err
		}
	}

	for item, qty := range b.Storage {
		if err := insertStock(ctx, tx, storageOwner, item, qty); err != nil {
			return err
		}
	}
	for member, pack := range b.Members {
		for item, qty := range pack {
			if err := insertStock(ctx, tx, member, item, qty); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO board_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		turnMetaKey, strconv.Itoa(b.Turn)); err != nil {
		return fmt.Errorf("save turn counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.logger.Debugf("board saved: turn %d, %d tasks, %d teams", b.Turn, len(b.Tasks), len(b.Teams))
	return nil
}

func saveTeam(ctx context.Context, tx *sql.Tx, idx int, team teams.Team) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO teams (idx, name, assigned_task, active, action_state, combat_state, in_combat,
			location, gathering_location, adventure_location, action_started_at, estimated_completion)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idx, team.Name, string(team.AssignedTask), boolInt(team.Active), string(team.ActionState),
		string(team.CombatState), boolInt(team.InCombat), team.LocationID, team.GatheringLocationID,
		team.AdventureLocationID, nullTime(team.ActionStartedAt), int64(team.EstimatedCompletion))
	if err != nil {
		return fmt.Errorf("insert team %d: %w", idx, err)
	}

	for pos, m := range team.Members {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO team_members (member_id, team_idx, position, name, health, stamina)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, idx, pos, m.Name, m.Health, m.Stamina)
		if err != nil {
			return fmt.Errorf("insert member %s: %w", m.ID, err)
		}
	}

	for _, slot := range team.Tasks {
		resources, err := json.Marshal(nonNil(slot.RequiredResources))
		if err != nil {
			return fmt.Errorf("encode resources: %w", err)
		}
		items, err := json.Marshal(nonNil(slot.RequiredItems))
		if err != nil {
			return fmt.Errorf("encode items: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO team_tasks (team_idx, priority, type, required_resources, required_items,
				min_team_size, estimated_duration, active, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			idx, slot.Priority, string(slot.Type), string(resources), string(items),
			slot.MinTeamSize, int64(slot.EstimatedDuration), boolInt(slot.Active), nullTime(slot.StartedAt))
		if err != nil {
			return fmt.Errorf("insert team %d task %d: %w", idx, slot.Priority, err)
		}
	}
	return nil
}

func insertStock(ctx context.Context, tx *sql.Tx, owner, item string, qty int) error {
	if qty <= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO inventory (owner, item, quantity) VALUES (?, ?, ?)`, owner, item, qty); err != nil {
		return fmt.Errorf("insert stock %s/%s: %w", owner, item, err)
	}
	return nil
}

// Load reads the stored board. An empty database yields an empty board.
func (s *State) Load(ctx context.Context) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := Board{
		Storage: make(map[string]int),
		Members: make(map[string]map[string]int),
	}

	var err error
	if b.Tasks, err = s.loadTasks(ctx); err != nil {
		return Board{}, err
	}
	if b.Teams, err = s.loadTeams(ctx); err != nil {
		return Board{}, err
	}
	if err := s.loadStock(ctx, &b); err != nil {
		return Board{}, err
	}
	if b.Turn, err = s.turn(ctx); err != nil {
		return Board{}, err
	}
	return b, nil
}

func (s *State) loadTasks(ctx context.Context) ([]tasks.GlobalTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, priority, type, target_item, target_quantity,
			current_progress, completed, policy, created_at
		FROM global_tasks ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tasks.GlobalTask
	for rows.Next() {
		var (
			t         tasks.GlobalTask
			typ, pol  string
			completed int
		)
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.Priority, &typ, &t.TargetItemID,
			&t.TargetQuantity, &t.CurrentProgress, &completed, &pol, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Type = tasks.TaskType(typ)
		t.Policy = tasks.ConsumptionPolicy(pol)
		t.Completed = completed != 0
		t.RelatedSkills = tasks.RelatedSkills(t.Type)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *State) loadTeams(ctx context.Context) ([]teams.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, name, assigned_task, active, action_state, combat_state, in_combat,
			location, gathering_location, adventure_location, action_started_at, estimated_completion
		FROM teams ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}

	var (
		out  []teams.Team
		idxs []int
	)
	for rows.Next() {
		var (
			t                        teams.Team
			idx, active, inCombat    int
			assigned, action, combat string
			startedAt                sql.NullTime
			estimated                int64
		)
		if err := rows.Scan(&idx, &t.Name, &assigned, &active, &action, &combat, &inCombat,
			&t.LocationID, &t.GatheringLocationID, &t.AdventureLocationID, &startedAt, &estimated); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan team: %w", err)
		}
		t.AssignedTask = tasks.TaskType(assigned)
		t.Active = active != 0
		t.ActionState = teams.ActionState(action)
		t.CombatState = teams.CombatState(combat)
		t.InCombat = inCombat != 0
		t.ActionStartedAt = startedAt.Time
		t.EstimatedCompletion = time.Duration(estimated)
		out = append(out, t)
		idxs = append(idxs, idx)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for i, idx := range idxs {
		if out[i].Members, err = s.loadMembers(ctx, idx); err != nil {
			return nil, err
		}
		if out[i].Tasks, err = s.loadTeamTasks(ctx, idx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *State) loadMembers(ctx context.Context, idx int) ([]teams.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, name, health, stamina FROM team_members
		WHERE team_idx = ? ORDER BY position`, idx)
	if err != nil {
		return nil, fmt.Errorf("query members of team %d: %w", idx, err)
	}
	defer func() { _ = rows.Close() }()

	var out []teams.Member
	for rows.Next() {
		var m teams.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Health, &m.Stamina); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *State) loadTeamTasks(ctx context.Context, idx int) ([]teams.TeamTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT priority, type, required_resources, required_items, min_team_size,
			estimated_duration, active, started_at
		FROM team_tasks WHERE team_idx = ? ORDER BY priority`, idx)
	if err != nil {
		return nil, fmt.Errorf("query tasks of team %d: %w", idx, err)
	}
	defer func() { _ = rows.Close() }()

	var out []teams.TeamTask
	for rows.Next() {
		var (
			slot             teams.TeamTask
			typ, res, items  string
			duration         int64
			active           int
			startedAt        sql.NullTime
		)
		if err := rows.Scan(&slot.Priority, &typ, &res, &items, &slot.MinTeamSize,
			&duration, &active, &startedAt); err != nil {
			return nil, fmt.Errorf("scan team task: %w", err)
		}
		if err := decodeCounts(res, &slot.RequiredResources); err != nil {
			return nil, err
		}
		if err := decodeCounts(items, &slot.RequiredItems); err != nil {
			return nil, err
		}
		slot.Type = tasks.TaskType(typ)
		slot.EstimatedDuration = time.Duration(duration)
		slot.Active = active != 0
		slot.StartedAt = startedAt.Time
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *State) loadStock(ctx context.Context, b *Board) error {
	rows, err := s.db.QueryContext(ctx, `SELECT owner, item, quantity FROM inventory`)
	if err != nil {
		return fmt.Errorf("query inventory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			owner, item string
			qty         int
		)
		if err := rows.Scan(&owner, &item, &qty); err != nil {
			return fmt.Errorf("scan inventory: %w", err)
		}
		if owner == storageOwner {
			b.Storage[item] = qty
			continue
		}
		if b.Members[owner] == nil {
			b.Members[owner] = make(map[string]int)
		}
		b.Members[owner][item] = qty
	}
	return rows.Err()
}

func (s *State) turn(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM board_meta WHERE key = ?`, turnMetaKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query turn counter: %w", err)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse turn counter %q: %w", value, err)
	}
	return n, nil
}

// AddTurnRecord appends a turn to history, keeping the newest entries.
func (s *State) AddTurnRecord(ctx context.Context, rec TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans, err := json.Marshal(rec.Plans)
	if err != nil {
		return fmt.Errorf("encode plans: %w", err)
	}
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turn_history (turn, started_at, ended_at, plans, events, resolved_combat, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(turn) DO UPDATE SET
			started_at = excluded.started_at, ended_at = excluded.ended_at, plans = excluded.plans,
			events = excluded.events, resolved_combat = excluded.resolved_combat, error = excluded.error`,
		rec.Turn, rec.StartedAt.UTC(), rec.EndedAt.UTC(), string(plans), rec.Events, rec.ResolvedCombat, errText)
	if err != nil {
		return fmt.Errorf("insert turn %d: %w", rec.Turn, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM turn_history WHERE turn <= (SELECT MAX(turn) FROM turn_history) - ?`, maxHistory); err != nil {
		return fmt.Errorf("trim turn history: %w", err)
	}
	return nil
}

// GetTurnHistory returns the last n turns, most recent first. n <= 0 returns
// everything kept.
func (s *State) GetTurnHistory(ctx context.Context, n int) ([]TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		n = maxHistory
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn, started_at, ended_at, plans, events, resolved_combat, error
		FROM turn_history ORDER BY turn DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query turn history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TurnRecord
	for rows.Next() {
		var (
			rec     TurnRecord
			plans   string
			errText sql.NullString
		)
		if err := rows.Scan(&rec.Turn, &rec.StartedAt, &rec.EndedAt, &plans, &rec.Events,
			&rec.ResolvedCombat, &errText); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(plans), &rec.Plans); err != nil {
			return nil, fmt.Errorf("decode plans of turn %d: %w", rec.Turn, err)
		}
		rec.Error = errText.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary aggregates recent turn history.
type Summary struct {
	Turns        int
	FailedTurns  int
	Events       int
	ActionCounts map[string]int
}

// GetSummary aggregates the last n turns.
func (s *State) GetSummary(ctx context.Context, n int) (Summary, error) {
	history, err := s.GetTurnHistory(ctx, n)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{ActionCounts: make(map[string]int)}
	for _, rec := range history {
		sum.Turns++
		sum.Events += rec.Events
		if rec.Error != "" {
			sum.FailedTurns++
		}
		for _, tp := range rec.Plans {
			sum.ActionCounts[tp.Plan.Action.String()]++
		}
	}
	return sum, nil
}

func decodeCounts(raw string, dst *map[string]int) error {
	if raw == "" || raw == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode counts %q: %w", raw, err)
	}
	return nil
}

func nonNil(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
