// Package events carries scheduler notifications from the task queue and
// team roster to presentation layers.
//
// Notifications are buffered in an Outbox and delivered in FIFO order when
// the owner flushes it, so observers never run inside a queue or roster
// mutation.
package events

import (
	"fmt"
	"time"
)

// Type classifies a scheduler notification.
type Type int

const (
	TaskAdded           Type = iota // global task inserted
	TaskRemoved                     // global task removed
	TaskPriorityChanged             // global task re-ranked
	TaskQuantityChanged             // global task target changed
	TaskCompleted                   // global task reached its target
	TeamCreated
	TeamDeleted
	MemberAssigned
	MemberRemoved
	TeamTaskChanged // team's assigned task type changed
	TeamTaskStarted
	TeamTaskCompleted
	TeamTaskSwitched
	ActionStateChanged
	CombatStarted
	CombatEnded
	TurnStarted
	TurnEnded
	PlanIssued
)

var typeNames = map[Type]string{
	TaskAdded:           "task_added",
	TaskRemoved:         "task_removed",
	TaskPriorityChanged: "task_priority_changed",
	TaskQuantityChanged: "task_quantity_changed",
	TaskCompleted:       "task_completed",
	TeamCreated:         "team_created",
	TeamDeleted:         "team_deleted",
	MemberAssigned:      "member_assigned",
	MemberRemoved:       "member_removed",
	TeamTaskChanged:     "team_task_changed",
	TeamTaskStarted:     "team_task_started",
	TeamTaskCompleted:   "team_task_completed",
	TeamTaskSwitched:    "team_task_switched",
	ActionStateChanged:  "action_state_changed",
	CombatStarted:       "combat_started",
	CombatEnded:         "combat_ended",
	TurnStarted:         "turn_started",
	TurnEnded:           "turn_ended",
	PlanIssued:          "plan_issued",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// MarshalText renders the type by name for JSON consumers.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event carries data about a single notification. Only the fields relevant
// to the Type are populated.
type Event struct {
	Type        Type      `json:"type"`
	Time        time.Time `json:"time"`
	Turn        int       `json:"turn,omitempty"`
	TeamIndex   int       `json:"team_index"`
	TaskID      string    `json:"task_id,omitempty"`
	TaskIndex   int       `json:"task_index"`
	Priority    int       `json:"priority,omitempty"`
	OldQuantity int       `json:"old_quantity,omitempty"`
	NewQuantity int       `json:"new_quantity,omitempty"`
	TaskType    string    `json:"task_type,omitempty"`
	State       string    `json:"state,omitempty"`
	MemberID    string    `json:"member_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Observer receives flushed notifications. Implementations must treat
// events as informational and must not call back into the scheduler.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

// Notify calls f(e).
func (f ObserverFunc) Notify(e Event) { f(e) }

// Publisher is the write side of the outbox used by the queue and roster.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
