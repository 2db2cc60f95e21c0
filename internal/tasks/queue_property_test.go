package tasks

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// TestPropertyByPriorityIdempotent verifies that two successive reads with no
// mutation in between return identical orderings.
func TestPropertyByPriorityIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := NewQueue()
		n := rapid.IntRange(0, MaxGlobalTasks).Draw(rt, "num_tasks")
		for i := 0; i < n; i++ {
			p := rapid.IntRange(MinPriority, MaxPriority).Draw(rt, "priority")
			if _, err := q.Add(gatherTask(fmt.Sprintf("t%d", i), p)); err != nil {
				rt.Fatalf("Add #%d failed: %v", i, err)
			}
		}

		first := q.ByPriority()
		second := q.ByPriority()
		if len(first) != len(second) {
			rt.Fatalf("lengths differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i].ID != second[i].ID || first[i].Priority != second[i].Priority {
				rt.Fatalf("position %d differs: %s:%d vs %s:%d",
					i, first[i].ID, first[i].Priority, second[i].ID, second[i].Priority)
			}
		}
	})
}

// TestPropertyAddKeepsPrioritiesUnique verifies that inserting through Add
// never leaves two tasks sharing a rank and never exceeds the rank range.
func TestPropertyAddKeepsPrioritiesUnique(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := NewQueue()
		n := rapid.IntRange(1, MaxGlobalTasks).Draw(rt, "num_tasks")
		for i := 0; i < n; i++ {
			p := rapid.IntRange(MinPriority, MaxPriority).Draw(rt, "priority")
			if _, err := q.Add(gatherTask(fmt.Sprintf("t%d", i), p)); err != nil {
				rt.Fatalf("Add #%d failed: %v", i, err)
			}
		}

		seen := make(map[int]string)
		for _, task := range q.All() {
			if task.Priority < MinPriority || task.Priority > MaxPriority {
				rt.Fatalf("task %s has priority %d outside range", task.ID, task.Priority)
			}
			if other, ok := seen[task.Priority]; ok {
				rt.Fatalf("tasks %s and %s share priority %d", other, task.ID, task.Priority)
			}
			seen[task.Priority] = task.ID
		}
	})
}

// TestPropertyByPriorityAscending verifies the ordering contract.
func TestPropertyByPriorityAscending(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := NewQueue()
		n := rapid.IntRange(0, MaxGlobalTasks).Draw(rt, "num_tasks")
		var restored []GlobalTask
		for i := 0; i < n; i++ {
			p := rapid.IntRange(MinPriority, MaxPriority).Draw(rt, "priority")
			restored = append(restored, gatherTask(fmt.Sprintf("t%d", i), p))
		}
		if err := q.Restore(restored); err != nil {
			rt.Fatalf("Restore failed: %v", err)
		}

		sorted := q.ByPriority()
		for i := 1; i < len(sorted); i++ {
			if sorted[i-1].Priority > sorted[i].Priority {
				rt.Fatalf("position %d: priority %d after %d", i, sorted[i].Priority, sorted[i-1].Priority)
			}
		}
	})
}
