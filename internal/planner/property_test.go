package planner

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/marcus/idlecrew/internal/tasks"
)

// TestPropertyNextAvailableTaskIsMinimal verifies that the chosen task is
// executable and that no executable open task outranks it.
func TestPropertyNextAvailableTaskIsMinimal(t *testing.T) {
	kinds := []tasks.TaskType{
		tasks.TypeGathering,
		tasks.TypeAdventure,
		tasks.TypeCooking,
		tasks.TypeConstruction,
	}
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture("alice")
		f.store.AddStorage("ingredient", rapid.IntRange(0, 2).Draw(rt, "ingredient"))
		f.store.AddStorage("wood", rapid.IntRange(0, 15).Draw(rt, "wood"))
		f.store.AddStorage("stone", rapid.IntRange(0, 8).Draw(rt, "stone"))

		n := rapid.IntRange(0, 10).Draw(rt, "num_tasks")
		for i := 0; i < n; i++ {
			task := work(fmt.Sprintf("t%d", i), rapid.SampledFrom(kinds).Draw(rt, "type"), rapid.IntRange(1, 20).Draw(rt, "priority"))
			idx, err := f.queue.Add(task)
			if err != nil {
				rt.Fatalf("Add #%d failed: %v", i, err)
			}
			if rapid.Bool().Draw(rt, "completed") {
				f.queue.Complete(idx)
			}
		}

		got := f.p.GetNextAvailableTask(0)
		if !got.IsIdle() && !f.p.CanTeamExecuteTask(0, got) {
			rt.Fatalf("chose %s which the team cannot execute", got.ID)
		}
		for _, task := range f.queue.ByPriority() {
			if task.Completed || !f.p.CanTeamExecuteTask(0, task) {
				continue
			}
			if got.IsIdle() {
				rt.Fatalf("returned idle while %s (priority %d) is executable", task.ID, task.Priority)
			}
			if task.Priority < got.Priority {
				rt.Fatalf("chose %s (priority %d) over %s (priority %d)", got.ID, got.Priority, task.ID, task.Priority)
			}
		}
	})
}

// TestPropertyKeepContinuesBelowTarget verifies that a keep-policy task
// continues exactly while the team's reachable stock is below target.
func TestPropertyKeepContinuesBelowTarget(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture("alice")
		target := rapid.IntRange(1, 30).Draw(rt, "target")
		storage := rapid.IntRange(0, 30).Draw(rt, "storage")
		held := rapid.IntRange(0, 10).Draw(rt, "held")

		if _, err := f.queue.Add(gather("keep", "wood", 1, tasks.PolicyKeep, target)); err != nil {
			rt.Fatalf("Add failed: %v", err)
		}
		f.store.AddStorage("wood", storage)
		f.store.Give("alice", "wood", held)

		want := storage+held < target
		if got := f.p.ShouldContinueGathering(0, "wood"); got != want {
			rt.Fatalf("ShouldContinueGathering() = %v with stock %d+%d and target %d", got, storage, held, target)
		}
	})
}
