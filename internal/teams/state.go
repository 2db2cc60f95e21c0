package teams

import (
	"fmt"
	"time"

	"github.com/marcus/idlecrew/internal/events"
	"github.com/marcus/idlecrew/internal/tasks"
)

// AddTeamTask adds a task slot to team i. If the team is idle the new task
// is dispatched immediately; otherwise it waits until the team's next
// switch picks it up.
func (r *Roster) AddTeamTask(i int, task TeamTask) error {
	t := r.team(i)
	if t == nil {
		r.logger.Warnf("add team task: invalid team index %d", i)
		return fmt.Errorf("%w: %d", ErrInvalidTeam, i)
	}
	if len(t.Tasks) >= r.maxTasks {
		r.logger.Warnf("add team task: team %d already has %d tasks", i, len(t.Tasks))
		return fmt.Errorf("%w: team %d", ErrTeamTaskFull, i)
	}
	task = task.Normalize()
	if err := task.Validate(); err != nil {
		r.logger.Warnf("add team task: %v", err)
		return err
	}
	if task.Priority > r.maxTasks {
		r.logger.Warnf("add team task: team %d priority %d exceeds %d slots", i, task.Priority, r.maxTasks)
		return fmt.Errorf("%w: priority %d exceeds %d slots", ErrInvalidTeamTask, task.Priority, r.maxTasks)
	}
	for _, existing := range t.Tasks {
		if existing.Priority == task.Priority {
			r.logger.Warnf("add team task: team %d already has priority %d", i, task.Priority)
			return fmt.Errorf("%w: team %d priority %d", ErrDuplicatePriority, i, task.Priority)
		}
	}

	task.Active = false
	task.StartedAt = time.Time{}
	t.Tasks = append(t.Tasks, task.clone())
	sortTasks(t.Tasks)
	r.logger.InfoCtx("team task added", map[string]any{
		"team":     i,
		"priority": task.Priority,
		"type":     string(task.Type),
	})

	if t.ActionState == StateIdle {
		r.switchTask(i, ReasonNormal)
	}
	return nil
}

// RemoveTeamTask deletes the slot with the given priority. Removing the
// running task idles the team and dispatches the next one.
func (r *Roster) RemoveTeamTask(i, priority int) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	for k, task := range t.Tasks {
		if task.Priority != priority {
			continue
		}
		t.Tasks = append(t.Tasks[:k], t.Tasks[k+1:]...)
		if task.Active && t.ActionState == StateWorking {
			r.setState(i, t, StateIdle)
			r.switchTask(i, ReasonForced)
		}
		return true
	}
	return false
}

// TeamTasks returns copies of team i's tasks in priority order.
func (r *Roster) TeamTasks(i int) []TeamTask {
	t := r.team(i)
	if t == nil {
		return nil
	}
	return t.clone().Tasks
}

// CurrentTeamTask returns the running task of team i.
func (r *Roster) CurrentTeamTask(i int) (TeamTask, bool) {
	t := r.team(i)
	if t == nil {
		return TeamTask{}, false
	}
	return t.ActiveTask()
}

// CurrentTaskType returns the running task's type, falling back to the
// team's assigned type. Invalid teams report idle.
func (r *Roster) CurrentTaskType(i int) tasks.TaskType {
	t := r.team(i)
	if t == nil {
		return tasks.TypeIdle
	}
	if task, ok := t.ActiveTask(); ok {
		return task.Type
	}
	return t.AssignedTask
}

// CanInterruptAction reports whether scheduling may reassign team i. It is
// false while the team is in combat, locked, or mid-switch.
func (r *Roster) CanInterruptAction(i int) bool {
	t := r.team(i)
	return t != nil && !t.switching && t.ActionState.Interruptible()
}

// CanExecuteTask reports whether team i could start task right now.
func (r *Roster) CanExecuteTask(i int, task TeamTask) bool {
	return r.CanInterruptAction(i) && r.MeetsRequirements(i, task)
}

// MeetsRequirements checks roster size and resources for task, ignoring the
// team's current action state.
func (r *Roster) MeetsRequirements(i int, task TeamTask) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	if len(t.Members) < max(1, task.MinTeamSize) {
		return false
	}
	return r.checker == nil || r.checker.HasResources(i, task)
}

// SwitchToNextAvailableTaskSafe runs the first executable task of team i in
// priority order, or idles the team if none qualifies. It returns false
// without doing anything while a switch for the same team is in progress;
// other teams are unaffected.
func (r *Roster) SwitchToNextAvailableTaskSafe(i int) bool {
	return r.switchTask(i, ReasonNormal)
}

// SwitchToNextAvailableTask is SwitchToNextAvailableTaskSafe with an explicit
// reason carried on the switch notification.
func (r *Roster) SwitchToNextAvailableTask(i int, reason SwitchReason) bool {
	return r.switchTask(i, reason)
}

func (r *Roster) switchTask(i int, reason SwitchReason) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	if t.switching {
		r.logger.Debugf("switch for team %d suppressed: already switching", i)
		return false
	}
	if !t.ActionState.Interruptible() {
		return false
	}
	t.switching = true
	defer func() { t.switching = false }()

	for k := range t.Tasks {
		if r.MeetsRequirements(i, t.Tasks[k]) {
			r.execute(i, t, k, reason)
			return true
		}
	}

	r.deactivateAll(t)
	r.setState(i, t, StateIdle)
	return false
}

// ExecuteTask starts team i's task slot with the given priority.
func (r *Roster) ExecuteTask(i, priority int) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	for k := range t.Tasks {
		if t.Tasks[k].Priority != priority {
			continue
		}
		if !r.CanExecuteTask(i, t.Tasks[k]) {
			return false
		}
		r.execute(i, t, k, ReasonForced)
		return true
	}
	return false
}

func (r *Roster) execute(i int, t *Team, k int, reason SwitchReason) {
	task := &t.Tasks[k]
	if task.Active && t.ActionState == StateWorking {
		return
	}
	prev, hadPrev := t.ActiveTask()
	r.deactivateAll(t)

	now := r.now()
	task.Active = true
	task.StartedAt = now
	t.ActionStartedAt = now
	t.EstimatedCompletion = task.EstimatedDuration
	if t.AssignedTask != task.Type {
		t.AssignedTask = task.Type
		r.pub.Publish(events.Event{Type: events.TeamTaskChanged, TeamIndex: i, TaskType: string(task.Type)})
	}

	if hadPrev && prev.Priority != task.Priority {
		r.pub.Publish(events.Event{
			Type:      events.TeamTaskSwitched,
			TeamIndex: i,
			Priority:  task.Priority,
			TaskType:  string(task.Type),
			Reason:    string(reason),
		})
	}
	r.pub.Publish(events.Event{
		Type:      events.TeamTaskStarted,
		TeamIndex: i,
		Priority:  task.Priority,
		TaskType:  string(task.Type),
		Reason:    string(reason),
	})
	r.setState(i, t, StateWorking)
}

// CompleteCurrentTask reports that team i finished its running task. The
// slot stays in the list as a standing order; the team idles and the next
// executable task is dispatched.
func (r *Roster) CompleteCurrentTask(i int) bool {
	t := r.team(i)
	if t == nil {
		return false
	}
	for k := range t.Tasks {
		if !t.Tasks[k].Active {
			continue
		}
		t.Tasks[k].Active = false
		r.pub.Publish(events.Event{
			Type:      events.TeamTaskCompleted,
			TeamIndex: i,
			Priority:  t.Tasks[k].Priority,
			TaskType:  string(t.Tasks[k].Type),
		})
		if t.ActionState == StateWorking {
			r.setState(i, t, StateIdle)
			r.switchTask(i, ReasonNormal)
		}
		return true
	}
	return false
}

// SetActionState moves team i to state.
func (r *Roster) SetActionState(i int, state ActionState) bool {
	t := r.team(i)
	if t == nil || !state.IsValid() {
		return false
	}
	if state != t.ActionState {
		t.ActionStartedAt = r.now()
	}
	r.setState(i, t, state)
	return true
}

// ActionState returns team i's state; invalid teams report idle.
func (r *Roster) ActionState(i int) ActionState {
	t := r.team(i)
	if t == nil {
		return StateIdle
	}
	return t.ActionState
}

// RemainingActionTime returns the estimated time left on team i's current
// action.
func (r *Roster) RemainingActionTime(i int) time.Duration {
	t := r.team(i)
	if t == nil || t.ActionStartedAt.IsZero() {
		return 0
	}
	return max(0, t.EstimatedCompletion-r.now().Sub(t.ActionStartedAt))
}

// StartCombat puts team i into combat for an estimated duration. The running
// task is paused and re-selected once combat ends.
func (r *Roster) StartCombat(i int, estimated time.Duration) bool {
	t := r.team(i)
	if t == nil || t.InCombat {
		return false
	}
	t.InCombat = true
	t.CombatState = CombatStarting
	r.deactivateAll(t)

	now := r.now()
	t.ActionStartedAt = now
	t.EstimatedCompletion = estimated
	r.setState(i, t, StateInCombat)
	t.CombatState = CombatInProgress
	r.pub.Publish(events.Event{Type: events.CombatStarted, TeamIndex: i, State: string(t.CombatState)})
	return true
}

// EndCombat records that team i's fight is over. Nothing else changes until
// the next ResolvePendingCombat, so callers may invoke it from inside a
// combat notification.
func (r *Roster) EndCombat(i int) bool {
	t := r.team(i)
	if t == nil || !t.InCombat {
		return false
	}
	if t.CombatState == CombatEnding {
		return true
	}
	t.CombatState = CombatEnding
	r.pendingCombat = append(r.pendingCombat, t)
	return true
}

// ResolvePendingCombat completes every combat end reported since the last
// pass: the team leaves combat, goes idle, and is re-dispatched. It returns
// the number of teams resolved.
func (r *Roster) ResolvePendingCombat() int {
	pending := r.pendingCombat
	r.pendingCombat = nil

	resolved := 0
	for _, t := range pending {
		i := r.indexOf(t)
		if i < 0 || t.CombatState != CombatEnding {
			continue
		}
		t.CombatState = CombatFinished
		t.InCombat = false
		t.EstimatedCompletion = 0
		r.setState(i, t, StateIdle)
		t.CombatState = CombatNone
		r.pub.Publish(events.Event{Type: events.CombatEnded, TeamIndex: i, State: string(CombatFinished)})
		r.switchTask(i, ReasonPostCombat)
		resolved++
	}
	return resolved
}

// PendingCombatEnds returns how many combat ends await resolution.
func (r *Roster) PendingCombatEnds() int { return len(r.pendingCombat) }

// CombatState returns team i's combat sub-state.
func (r *Roster) CombatState(i int) CombatState {
	t := r.team(i)
	if t == nil {
		return CombatNone
	}
	return t.CombatState
}

// IsInCombat reports whether team i is fighting.
func (r *Roster) IsInCombat(i int) bool {
	t := r.team(i)
	return t != nil && t.InCombat
}

// IsCombatFinished reports whether team i's combat end has been reported
// but not yet resolved.
func (r *Roster) IsCombatFinished(i int) bool {
	t := r.team(i)
	return t != nil && (t.CombatState == CombatEnding || t.CombatState == CombatFinished)
}

func (r *Roster) setState(i int, t *Team, state ActionState) {
	if t.ActionState == state {
		return
	}
	prev := t.ActionState
	t.ActionState = state
	r.pub.Publish(events.Event{
		Type:      events.ActionStateChanged,
		TeamIndex: i,
		State:     string(state),
		Message:   fmt.Sprintf("%s -> %s", prev, state),
	})
}

func (r *Roster) deactivateAll(t *Team) {
	for k := range t.Tasks {
		t.Tasks[k].Active = false
	}
}

func (r *Roster) dropPending(t *Team) {
	kept := r.pendingCombat[:0]
	for _, p := range r.pendingCombat {
		if p != t {
			kept = append(kept, p)
		}
	}
	r.pendingCombat = kept
}
