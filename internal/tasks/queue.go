package tasks

import (
	"fmt"
	"sort"
	"time"

	"github.com/marcus/idlecrew/internal/events"
	"github.com/marcus/idlecrew/internal/logging"
)

// Queue is the ranked global backlog. Indices refer to storage order, which
// is insertion order; priority order is derived on demand. A Queue is not
// safe for concurrent use.
type Queue struct {
	tasks    []GlobalTask
	capacity int
	pub      events.Publisher
	now      func() time.Time
	logger   *logging.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCapacity caps the backlog below MaxGlobalTasks.
func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 && n <= MaxGlobalTasks {
			q.capacity = n
		}
	}
}

// WithPublisher routes queue notifications to p.
func WithPublisher(p events.Publisher) QueueOption {
	return func(q *Queue) {
		if p != nil {
			q.pub = p
		}
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = l
	}
}

// NewQueue creates an empty backlog.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		capacity: MaxGlobalTasks,
		pub:      events.Discard,
		now:      time.Now,
		logger:   logging.Component("tasks"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Len returns the number of tasks in the backlog.
func (q *Queue) Len() int { return len(q.tasks) }

// Capacity returns the maximum number of tasks.
func (q *Queue) Capacity() int { return q.capacity }

// IsFull reports whether Add would be rejected for capacity.
func (q *Queue) IsFull() bool { return len(q.tasks) >= q.capacity }

func (q *Queue) validIndex(i int) bool {
	return i >= 0 && i < len(q.tasks)
}

// Get returns a copy of the task at storage index i.
func (q *Queue) Get(i int) (GlobalTask, bool) {
	if !q.validIndex(i) {
		return GlobalTask{}, false
	}
	return q.tasks[i].clone(), true
}

// All returns a copy of the backlog in storage order.
func (q *Queue) All() []GlobalTask {
	out := make([]GlobalTask, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.clone()
	}
	return out
}

// IndexOf returns the storage index of the task with the given id, or -1.
func (q *Queue) IndexOf(id string) int {
	for i := range q.tasks {
		if q.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns a copy of the task with the given id.
func (q *Queue) Find(id string) (GlobalTask, bool) {
	return q.Get(q.IndexOf(id))
}

// Add inserts a task and returns its storage index. If another task already
// holds the requested priority, every task ranked at or below it shifts down
// by one. It returns -1 and an error wrapping ErrQueueFull, ErrInvalidTask
// or ErrDuplicateID on rejection.
func (q *Queue) Add(t GlobalTask) (int, error) {
	if q.IsFull() {
		q.logger.Warnf("add %s rejected: queue full (%d)", t.ID, q.capacity)
		return -1, fmt.Errorf("%w: capacity %d", ErrQueueFull, q.capacity)
	}
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		q.logger.Warnf("add rejected: %v", err)
		return -1, err
	}
	if q.IndexOf(t.ID) >= 0 {
		q.logger.Warnf("add %s rejected: duplicate id", t.ID)
		return -1, fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
	}

	before := q.priorities()
	if q.priorityTaken(t.Priority, -1) {
		q.shiftFrom(t.Priority, -1)
	}

	t.CreatedAt = q.now()
	if len(t.RelatedSkills) == 0 {
		t.RelatedSkills = RelatedSkills(t.Type)
	}
	t.Completed = false
	q.tasks = append(q.tasks, t.clone())
	index := len(q.tasks) - 1

	if q.maxPriority() > MaxPriority {
		q.renumber()
	}
	q.publishPriorityDiff(before)

	q.logger.InfoCtx("task added", map[string]any{
		"id":       t.ID,
		"type":     string(t.Type),
		"priority": q.tasks[index].Priority,
	})
	q.pub.Publish(events.Event{
		Type:      events.TaskAdded,
		TaskID:    t.ID,
		TaskIndex: index,
		Priority:  q.tasks[index].Priority,
		TaskType:  string(t.Type),
	})
	return index, nil
}

// Remove deletes the task at storage index i and renumbers the remaining
// priorities contiguously.
func (q *Queue) Remove(i int) bool {
	if !q.validIndex(i) {
		q.logger.Warnf("remove: index %d out of range", i)
		return false
	}
	removed := q.tasks[i]
	q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)

	q.logger.Infof("task removed: %s", removed.ID)
	q.pub.Publish(events.Event{
		Type:      events.TaskRemoved,
		TaskID:    removed.ID,
		TaskIndex: i,
		Priority:  removed.Priority,
	})
	q.RecalculatePriorities()
	return true
}

// RemoveByID deletes the task with the given id.
func (q *Queue) RemoveByID(id string) bool {
	i := q.IndexOf(id)
	if i < 0 {
		q.logger.Warnf("remove: unknown task %q", id)
		return false
	}
	return q.Remove(i)
}

// UpdatePriority re-ranks the task at index i. A collision with another task
// pushes that task and everything ranked below it down by one.
func (q *Queue) UpdatePriority(i, priority int) bool {
	if !q.validIndex(i) {
		q.logger.Warnf("update priority: index %d out of range", i)
		return false
	}
	if priority < MinPriority || priority > MaxPriority {
		q.logger.Warnf("update priority: %d outside [%d,%d]", priority, MinPriority, MaxPriority)
		return false
	}
	if q.tasks[i].Priority == priority {
		return true
	}

	before := q.priorities()
	if q.priorityTaken(priority, i) {
		q.shiftFrom(priority, i)
	}
	q.tasks[i].Priority = priority
	if q.maxPriority() > MaxPriority {
		q.renumber()
	}
	q.publishPriorityDiff(before)
	return true
}

// UpdateTargetQuantity changes the target of the task at index i. The same
// quantity rule as Add applies.
func (q *Queue) UpdateTargetQuantity(i, qty int) bool {
	if !q.validIndex(i) {
		q.logger.Warnf("update quantity: index %d out of range", i)
		return false
	}
	t := &q.tasks[i]
	if !t.quantityAllowed(qty) {
		q.logger.Warnf("update quantity: %d not allowed for %s", qty, t.ID)
		return false
	}
	old := t.TargetQuantity
	t.TargetQuantity = qty
	q.pub.Publish(events.Event{
		Type:        events.TaskQuantityChanged,
		TaskID:      t.ID,
		TaskIndex:   i,
		OldQuantity: old,
		NewQuantity: qty,
	})
	return true
}

// Complete marks the task at index i as completed without removing it.
func (q *Queue) Complete(i int) bool {
	if !q.validIndex(i) {
		q.logger.Warnf("complete: index %d out of range", i)
		return false
	}
	if q.tasks[i].Completed {
		return true
	}
	q.tasks[i].Completed = true
	q.pub.Publish(events.Event{
		Type:      events.TaskCompleted,
		TaskID:    q.tasks[i].ID,
		TaskIndex: i,
		Priority:  q.tasks[i].Priority,
	})
	return true
}

// ByPriority returns a copy of the backlog ordered by ascending priority.
// Equal priorities keep insertion order.
func (q *Queue) ByPriority() []GlobalTask {
	order := q.sortedIndices()
	out := make([]GlobalTask, len(order))
	for pos, i := range order {
		out[pos] = q.tasks[i].clone()
	}
	return out
}

// SwapPriority exchanges the priorities of two tasks.
func (q *Queue) SwapPriority(i, j int) bool {
	if !q.validIndex(i) || !q.validIndex(j) {
		q.logger.Warnf("swap priority: invalid indices %d, %d", i, j)
		return false
	}
	if i == j {
		return true
	}
	q.tasks[i].Priority, q.tasks[j].Priority = q.tasks[j].Priority, q.tasks[i].Priority
	for _, k := range []int{i, j} {
		q.pub.Publish(events.Event{
			Type:      events.TaskPriorityChanged,
			TaskID:    q.tasks[k].ID,
			TaskIndex: k,
			Priority:  q.tasks[k].Priority,
		})
	}
	return true
}

// MoveUp swaps the task at index i with its predecessor in priority order.
func (q *Queue) MoveUp(i int) bool {
	return q.moveBy(i, -1)
}

// MoveDown swaps the task at index i with its successor in priority order.
func (q *Queue) MoveDown(i int) bool {
	return q.moveBy(i, 1)
}

func (q *Queue) moveBy(i, step int) bool {
	if !q.validIndex(i) {
		return false
	}
	order := q.sortedIndices()
	pos := -1
	for p, idx := range order {
		if idx == i {
			pos = p
			break
		}
	}
	next := pos + step
	if pos < 0 || next < 0 || next >= len(order) {
		return false
	}
	return q.SwapPriority(i, order[next])
}

// RecalculatePriorities renumbers priorities 1..n in current priority order.
// Storage order is unchanged.
func (q *Queue) RecalculatePriorities() {
	if len(q.tasks) == 0 {
		return
	}
	before := q.priorities()
	q.renumber()
	q.publishPriorityDiff(before)
}

// ClearCompleted removes every completed task and returns how many were
// removed.
func (q *Queue) ClearCompleted() int {
	kept := q.tasks[:0]
	removed := 0
	for _, t := range q.tasks {
		if t.Completed {
			removed++
			q.pub.Publish(events.Event{Type: events.TaskRemoved, TaskID: t.ID, TaskIndex: -1, Priority: t.Priority})
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
	if removed > 0 {
		q.RecalculatePriorities()
	}
	return removed
}

// IsCompleted reports whether a task is done. An empty or unknown id counts
// as completed, so callers holding a stale id stop working on it.
func (q *Queue) IsCompleted(id string) bool {
	if id == "" {
		return true
	}
	i := q.IndexOf(id)
	if i < 0 {
		return true
	}
	return q.tasks[i].Completed
}

// UpdateProgress adds delta to a task's progress, never going below zero. Tasks that finish on
// progress are completed and removed from the backlog once they reach their
// target; unlimited and keep gathering tasks only accumulate. It returns
// true when the task completed.
func (q *Queue) UpdateProgress(id string, delta int) bool {
	i := q.IndexOf(id)
	if i < 0 {
		q.logger.Warnf("update progress: unknown task %q", id)
		return false
	}
	t := &q.tasks[i]
	if t.Completed {
		return false
	}
	t.CurrentProgress = max(0, t.CurrentProgress+delta)
	if !t.completesOnProgress() || t.TargetQuantity <= 0 || t.CurrentProgress < t.TargetQuantity {
		return false
	}

	t.Completed = true
	q.logger.InfoCtx("task completed", map[string]any{
		"id":       t.ID,
		"progress": t.CurrentProgress,
		"target":   t.TargetQuantity,
	})
	q.pub.Publish(events.Event{
		Type:      events.TaskCompleted,
		TaskID:    t.ID,
		TaskIndex: i,
		Priority:  t.Priority,
	})
	q.Remove(i)
	return true
}

// ProcessCompletion adds amount to a task's progress and marks it completed
// once the target is reached. The task stays in the backlog until
// ClearCompleted.
func (q *Queue) ProcessCompletion(id string, amount int) bool {
	i := q.IndexOf(id)
	if i < 0 || q.tasks[i].Completed {
		return false
	}
	q.tasks[i].CurrentProgress = max(0, q.tasks[i].CurrentProgress+amount)
	if q.tasks[i].CurrentProgress >= q.tasks[i].TargetQuantity {
		return q.Complete(i)
	}
	return false
}

// Restore replaces the backlog with previously persisted tasks, keeping
// their priorities, progress and timestamps. No events are published.
func (q *Queue) Restore(tasks []GlobalTask) error {
	if len(tasks) > q.capacity {
		return fmt.Errorf("%w: restoring %d tasks", ErrQueueFull, len(tasks))
	}
	seen := make(map[string]bool, len(tasks))
	restored := make([]GlobalTask, 0, len(tasks))
	for _, t := range tasks {
		t = t.Normalize()
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		seen[t.ID] = true
		if len(t.RelatedSkills) == 0 {
			t.RelatedSkills = RelatedSkills(t.Type)
		}
		restored = append(restored, t.clone())
	}
	q.tasks = restored
	return nil
}

// IncompleteCount returns the number of tasks not yet completed.
func (q *Queue) IncompleteCount() int {
	n := 0
	for _, t := range q.tasks {
		if !t.Completed {
			n++
		}
	}
	return n
}

func (q *Queue) sortedIndices() []int {
	order := make([]int, len(q.tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return q.tasks[order[a]].Priority < q.tasks[order[b]].Priority
	})
	return order
}

func (q *Queue) renumber() {
	for pos, i := range q.sortedIndices() {
		q.tasks[i].Priority = pos + 1
	}
}

func (q *Queue) priorityTaken(priority, exclude int) bool {
	for i, t := range q.tasks {
		if i != exclude && t.Priority == priority {
			return true
		}
	}
	return false
}

// shiftFrom pushes every task ranked at or below priority down by one.
func (q *Queue) shiftFrom(priority, exclude int) {
	for i := range q.tasks {
		if i != exclude && q.tasks[i].Priority >= priority {
			q.tasks[i].Priority++
		}
	}
}

func (q *Queue) maxPriority() int {
	m := 0
	for _, t := range q.tasks {
		m = max(m, t.Priority)
	}
	return m
}

func (q *Queue) priorities() map[string]int {
	out := make(map[string]int, len(q.tasks))
	for _, t := range q.tasks {
		out[t.ID] = t.Priority
	}
	return out
}

func (q *Queue) publishPriorityDiff(before map[string]int) {
	for i, t := range q.tasks {
		old, ok := before[t.ID]
		if !ok || old == t.Priority {
			continue
		}
		q.pub.Publish(events.Event{
			Type:      events.TaskPriorityChanged,
			TaskID:    t.ID,
			TaskIndex: i,
			Priority:  t.Priority,
		})
	}
}
