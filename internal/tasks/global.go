package tasks

import (
	"errors"
	"fmt"
	"time"
)

// Structural rejection errors.
var (
	ErrQueueFull    = errors.New("global task queue is full")
	ErrInvalidTask  = errors.New("invalid global task")
	ErrDuplicateID  = errors.New("duplicate global task id")
	ErrInvalidIndex = errors.New("task index out of range")
)

// GlobalTask is one entry of the shared backlog.
type GlobalTask struct {
	ID              string            `json:"id" yaml:"id"`
	DisplayName     string            `json:"display_name" yaml:"display_name"`
	Priority        int               `json:"priority" yaml:"priority"`
	Type            TaskType          `json:"type" yaml:"type"`
	TargetItemID    string            `json:"target_item_id" yaml:"target_item_id"`
	TargetQuantity  int               `json:"target_quantity" yaml:"target_quantity"`
	RelatedSkills   []SkillWeight     `json:"related_skills,omitempty" yaml:"-"`
	CurrentProgress int               `json:"current_progress" yaml:"current_progress"`
	Completed       bool              `json:"completed" yaml:"completed"`
	Policy          ConsumptionPolicy `json:"policy" yaml:"policy"`
	CreatedAt       time.Time         `json:"created_at" yaml:"-"`
}

// IdleTask returns the sentinel returned when no task qualifies.
func IdleTask() GlobalTask {
	return GlobalTask{
		ID:          "idle",
		DisplayName: "Idle",
		Priority:    MaxPriority,
		Type:        TypeIdle,
		Policy:      PolicyUnlimited,
	}
}

// IsIdle reports whether t is the idle sentinel.
func (t GlobalTask) IsIdle() bool {
	return t.Type == TypeIdle
}

// Normalize fills defaults: an unset policy means unlimited.
func (t GlobalTask) Normalize() GlobalTask {
	if t.Policy == "" {
		t.Policy = PolicyUnlimited
	}
	return t
}

// Validate checks the structural rules for a backlog entry. Call it on a
// normalized task.
func (t GlobalTask) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTask)
	}
	if t.DisplayName == "" {
		return fmt.Errorf("%w: %s: empty display name", ErrInvalidTask, t.ID)
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return fmt.Errorf("%w: %s: priority %d outside [%d,%d]", ErrInvalidTask, t.ID, t.Priority, MinPriority, MaxPriority)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidTask, t.ID, t.Type)
	}
	if !t.Policy.IsValid() {
		return fmt.Errorf("%w: %s: unknown policy %q", ErrInvalidTask, t.ID, t.Policy)
	}
	if !t.quantityAllowed(t.TargetQuantity) {
		return fmt.Errorf("%w: %s: target quantity %d", ErrInvalidTask, t.ID, t.TargetQuantity)
	}
	return nil
}

// quantityAllowed applies the target quantity rule: zero is only allowed
// for unlimited gathering tasks.
func (t GlobalTask) quantityAllowed(q int) bool {
	if t.Type == TypeGathering && t.Policy == PolicyUnlimited {
		return q >= 0
	}
	return q > 0
}

// ProgressRatio returns progress over target, clamped to [0,1].
func (t GlobalTask) ProgressRatio() float64 {
	if t.TargetQuantity <= 0 {
		return 0
	}
	r := float64(t.CurrentProgress) / float64(t.TargetQuantity)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// RemainingQuantity returns how many units are still needed.
func (t GlobalTask) RemainingQuantity() int {
	return max(0, t.TargetQuantity-t.CurrentProgress)
}

// IsGathering reports whether the task can be served by gathering its
// target item.
func (t GlobalTask) IsGathering() bool {
	return t.Type == TypeGathering || t.Type == TypeAll
}

// completesOnProgress reports whether reaching the target finishes the task.
// Unlimited and keep gathering tasks stay in the backlog indefinitely.
func (t GlobalTask) completesOnProgress() bool {
	if t.Type == TypeGathering {
		return t.Policy != PolicyUnlimited && t.Policy != PolicyKeep
	}
	return true
}

func (t GlobalTask) clone() GlobalTask {
	if t.RelatedSkills != nil {
		t.RelatedSkills = append([]SkillWeight(nil), t.RelatedSkills...)
	}
	return t
}
