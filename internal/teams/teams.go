// Package teams implements team rosters, per-team task lists and the team
// action state machine that gates task switching.
package teams

import (
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/marcus/idlecrew/internal/tasks"
)

// MaxTeamTasks is the number of task slots per team.
const MaxTeamTasks = 3

// Rejection errors for team task and roster operations.
var (
	ErrInvalidTeam       = errors.New("invalid team index")
	ErrTeamTaskFull      = errors.New("team task list is full")
	ErrInvalidTeamTask   = errors.New("invalid team task")
	ErrDuplicatePriority = errors.New("team task priority already used")
)

// ActionState is a team's current interruptibility state.
type ActionState string

const (
	StateIdle      ActionState = "idle"
	StateMoving    ActionState = "moving"
	StateReturning ActionState = "returning"
	StateWorking   ActionState = "working"
	StateInCombat  ActionState = "in_combat"
	StateLocked    ActionState = "locked"
)

// IsValid reports whether s is a known state.
func (s ActionState) IsValid() bool {
	switch s {
	case StateIdle, StateMoving, StateReturning, StateWorking, StateInCombat, StateLocked:
		return true
	}
	return false
}

// Interruptible reports whether task scheduling may reassign a team in s.
func (s ActionState) Interruptible() bool {
	switch s {
	case StateIdle, StateMoving, StateReturning, StateWorking:
		return true
	}
	return false
}

// CombatState tracks a team's progress through a fight.
type CombatState string

const (
	CombatNone       CombatState = "not_in_combat"
	CombatStarting   CombatState = "starting"
	CombatInProgress CombatState = "in_progress"
	// CombatEnding means the end was reported and is resolved on the next
	// scheduling pass.
	CombatEnding   CombatState = "ending"
	CombatFinished CombatState = "finished"
)

// SwitchReason records why a team changed tasks.
type SwitchReason string

const (
	ReasonNormal         SwitchReason = "normal"
	ReasonPostCombat     SwitchReason = "post_combat"
	ReasonResourceChange SwitchReason = "resource_change"
	ReasonForced         SwitchReason = "forced"
)

// Member is a character on a team.
type Member struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Health  int    `json:"health" yaml:"health"`
	Stamina int    `json:"stamina" yaml:"stamina"`
}

// TeamTask is a ranked task slot owned by exactly one team.
type TeamTask struct {
	Priority          int            `json:"priority" yaml:"priority"`
	Type              tasks.TaskType `json:"type" yaml:"type"`
	RequiredResources map[string]int `json:"required_resources,omitempty" yaml:"required_resources"`
	RequiredItems     map[string]int `json:"required_items,omitempty" yaml:"required_items"`
	MinTeamSize       int            `json:"min_team_size" yaml:"min_team_size"`
	EstimatedDuration time.Duration  `json:"estimated_duration" yaml:"estimated_duration"`
	Active            bool           `json:"active" yaml:"-"`
	StartedAt         time.Time      `json:"started_at" yaml:"-"`
}

// Normalize fills defaults: a zero minimum team size means one member.
func (t TeamTask) Normalize() TeamTask {
	if t.MinTeamSize == 0 {
		t.MinTeamSize = 1
	}
	return t
}

// Validate checks the structural rules for a team task.
func (t TeamTask) Validate() error {
	if t.Priority < 1 || t.Priority > MaxTeamTasks {
		return fmt.Errorf("%w: priority %d outside [1,%d]", ErrInvalidTeamTask, t.Priority, MaxTeamTasks)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTeamTask, t.Type)
	}
	if t.MinTeamSize < 1 {
		return fmt.Errorf("%w: min team size %d", ErrInvalidTeamTask, t.MinTeamSize)
	}
	if t.EstimatedDuration <= 0 {
		return fmt.Errorf("%w: estimated duration %s", ErrInvalidTeamTask, t.EstimatedDuration)
	}
	for item, qty := range t.RequiredResources {
		if qty < 0 {
			return fmt.Errorf("%w: negative resource %s", ErrInvalidTeamTask, item)
		}
	}
	for item, qty := range t.RequiredItems {
		if qty < 0 {
			return fmt.Errorf("%w: negative item %s", ErrInvalidTeamTask, item)
		}
	}
	return nil
}

// Elapsed returns how long the task has been running.
func (t TeamTask) Elapsed(now time.Time) time.Duration {
	if !t.Active || t.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(t.StartedAt)
}

// Remaining returns the estimated time left, never negative.
func (t TeamTask) Remaining(now time.Time) time.Duration {
	if !t.Active {
		return 0
	}
	return max(0, t.EstimatedDuration-t.Elapsed(now))
}

func (t TeamTask) clone() TeamTask {
	if t.RequiredResources != nil {
		t.RequiredResources = maps.Clone(t.RequiredResources)
	}
	if t.RequiredItems != nil {
		t.RequiredItems = maps.Clone(t.RequiredItems)
	}
	return t
}

// Team is a roster of characters plus its scheduling state. Values returned
// by Roster are copies.
type Team struct {
	Name                string         `json:"name"`
	Members             []Member       `json:"members"`
	AssignedTask        tasks.TaskType `json:"assigned_task"`
	Tasks               []TeamTask     `json:"tasks"`
	Active              bool           `json:"active"`
	ActionState         ActionState    `json:"action_state"`
	CombatState         CombatState    `json:"combat_state"`
	InCombat            bool           `json:"in_combat"`
	LocationID          string         `json:"location_id"`
	GatheringLocationID string         `json:"gathering_location_id,omitempty"`
	AdventureLocationID string         `json:"adventure_location_id,omitempty"`
	ActionStartedAt     time.Time      `json:"action_started_at"`
	EstimatedCompletion time.Duration  `json:"estimated_completion"`

	// switching is set while this team's task switch is in progress.
	switching bool
	key       uint64
}

var teamKeys atomic.Uint64

// Key identifies the team for the life of the process. Keys are never reused.
func (t Team) Key() uint64 { return t.key }

// MemberIDs returns the ids of the team's members in roster order.
func (t Team) MemberIDs() []string {
	ids := make([]string, len(t.Members))
	for i, m := range t.Members {
		ids[i] = m.ID
	}
	return ids
}

// ActiveTask returns the running task slot, if any.
func (t Team) ActiveTask() (TeamTask, bool) {
	for _, task := range t.Tasks {
		if task.Active {
			return task.clone(), true
		}
	}
	return TeamTask{}, false
}

func (t *Team) clone() Team {
	out := *t
	out.switching = false
	out.Members = append([]Member(nil), t.Members...)
	out.Tasks = make([]TeamTask, len(t.Tasks))
	for i, task := range t.Tasks {
		out.Tasks[i] = task.clone()
	}
	return out
}

// Snapshot is a point-in-time view of a team's task state.
type Snapshot struct {
	TeamIndex    int            `json:"team_index"`
	Name         string         `json:"name"`
	Tasks        []TeamTask     `json:"tasks"`
	AssignedTask tasks.TaskType `json:"assigned_task"`
	ActionState  ActionState    `json:"action_state"`
	CombatState  CombatState    `json:"combat_state"`
	TakenAt      time.Time      `json:"taken_at"`
}
