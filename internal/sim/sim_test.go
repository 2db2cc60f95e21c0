package sim

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/marcus/idlecrew/internal/orchestrator"
	"github.com/marcus/idlecrew/internal/planner"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

func testConfig() Config {
	return Config{GatherPerMember: 2, CombatTurns: 2, StaminaPerTurn: 5, TurnLength: time.Minute}
}

func newWorld(t *testing.T, slot tasks.TaskType, task tasks.GlobalTask) (*orchestrator.Orchestrator, *Sim) {
	t.Helper()
	s := New(testConfig())
	o := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.WithDecider(s))
	err := o.Update(func(w *orchestrator.World) error {
		if task.ID != "" {
			if _, err := w.Queue.Add(task); err != nil {
				return err
			}
		}
		i := w.Roster.CreateTeam("Crew")
		w.Roster.AssignMember(i, teams.Member{ID: "ash", Name: "Ash", Health: 100, Stamina: 100})
		return w.Roster.AddTeamTask(i, teams.TeamTask{Priority: 1, Type: slot, EstimatedDuration: time.Minute})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return o, s
}

func runTurns(t *testing.T, o *orchestrator.Orchestrator, n int) []planner.Action {
	t.Helper()
	var actions []planner.Action
	for k := 0; k < n; k++ {
		rec, err := o.RunTurn(context.Background())
		if err != nil {
			t.Fatalf("turn %d: %v", k+1, err)
		}
		if len(rec.Plans) > 0 {
			actions = append(actions, rec.Plans[0].Plan.Action)
		}
	}
	return actions
}

func TestGatheringLoop(t *testing.T) {
	o, _ := newWorld(t, tasks.TypeGathering, tasks.GlobalTask{
		ID: "wood", DisplayName: "Wood", Priority: 1, Type: tasks.TypeGathering,
		TargetItemID: "wood", TargetQuantity: 4, Policy: tasks.PolicySpecified,
	})

	got := runTurns(t, o, 4)
	want := []planner.Action{
		planner.ActionMoveToLocation,
		planner.ActionExecuteGathering,
		planner.ActionExecuteGathering,
		planner.ActionReturnToBase,
	}
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turn %d action = %s, want %s", i+1, got[i], want[i])
		}
	}

	o.View(func(w *orchestrator.World) {
		if w.Queue.Len() != 0 {
			t.Errorf("backlog still has %d tasks", w.Queue.Len())
		}
		if w.Stock.Storage("wood") != 4 {
			t.Errorf("storage wood = %d, want 4", w.Stock.Storage("wood"))
		}
		if w.Stock.HeldTotal("ash") != 0 {
			t.Errorf("ash still carries %d", w.Stock.HeldTotal("ash"))
		}
		team, _ := w.Roster.Team(0)
		if team.LocationID != "base" {
			t.Errorf("location = %s, want base", team.LocationID)
		}
		if team.Members[0].Stamina != 90 {
			t.Errorf("stamina = %d, want 90", team.Members[0].Stamina)
		}
	})
}

func TestCombatLoop(t *testing.T) {
	o, s := newWorld(t, tasks.TypeAdventure, tasks.GlobalTask{
		ID: "rats", DisplayName: "Rats", Priority: 1, Type: tasks.TypeAdventure,
		TargetItemID: "plains", TargetQuantity: 1, Policy: tasks.PolicySpecified,
	})

	got := runTurns(t, o, 2)
	if got[0] != planner.ActionMoveToLocation || got[1] != planner.ActionExecuteCombat {
		t.Fatalf("actions = %v", got)
	}
	o.View(func(w *orchestrator.World) {
		if !w.Roster.IsInCombat(0) {
			t.Fatal("team should be fighting")
		}
	})
	if len(s.fights) != 1 {
		t.Errorf("fights = %d, want 1", len(s.fights))
	}

	// Two fight turns, then the end is resolved on the following pass.
	got = runTurns(t, o, 2)
	if got[0] != planner.ActionNone || got[1] != planner.ActionNone {
		t.Errorf("in-combat actions = %v, want none", got)
	}
	o.View(func(w *orchestrator.World) {
		if !w.Roster.IsCombatFinished(0) {
			t.Error("combat end should be pending")
		}
		if w.Queue.Len() != 0 {
			t.Error("adventure task should be complete")
		}
	})

	rec, err := o.RunTurn(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rec.ResolvedCombat != 1 {
		t.Errorf("ResolvedCombat = %d, want 1", rec.ResolvedCombat)
	}
	if rec.Plans[0].Plan.Action != planner.ActionReturnToBase {
		t.Errorf("post-combat plan = %s", rec.Plans[0].Plan)
	}
	o.View(func(w *orchestrator.World) {
		team, _ := w.Roster.Team(0)
		if team.InCombat || team.LocationID != "base" {
			t.Errorf("team = in_combat %v at %s", team.InCombat, team.LocationID)
		}
		if team.Members[0].Health != 90 {
			t.Errorf("health = %d, want 90", team.Members[0].Health)
		}
	})
	if len(s.fights) != 0 {
		t.Errorf("fights = %d, want 0", len(s.fights))
	}
}

func TestWorkConsumesRequirements(t *testing.T) {
	o, _ := newWorld(t, tasks.TypeConstruction, tasks.GlobalTask{
		ID: "wall", DisplayName: "Wall", Priority: 1, Type: tasks.TypeConstruction,
		TargetQuantity: 1, Policy: tasks.PolicySpecified,
	})
	_ = o.Update(func(w *orchestrator.World) error {
		w.Stock.AddStorage("wood", 8)
		w.Stock.AddStorage("stone", 5)
		w.Stock.Give("ash", "wood", 2)
		return nil
	})

	got := runTurns(t, o, 1)
	if got[0] != planner.ActionExecuteWork {
		t.Fatalf("action = %s", got[0])
	}
	o.View(func(w *orchestrator.World) {
		if w.Queue.Len() != 0 {
			t.Error("construction task should be complete")
		}
		if w.Stock.Storage("wood") != 0 || w.Stock.Storage("stone") != 0 {
			t.Errorf("storage = %v", w.Stock.StorageSnapshot())
		}
	})
}

func TestWorkFailsWithoutStock(t *testing.T) {
	o, s := newWorld(t, tasks.TypeConstruction, tasks.GlobalTask{
		ID: "wall", DisplayName: "Wall", Priority: 1, Type: tasks.TypeConstruction,
		TargetQuantity: 1, Policy: tasks.PolicySpecified,
	})
	err := o.Update(func(w *orchestrator.World) error {
		return s.Apply(context.Background(), w, 0, planner.Plan{Action: planner.ActionExecuteWork, TaskID: "wall"})
	})
	if err == nil {
		t.Fatal("expected error for missing construction stock")
	}

	err = o.Update(func(w *orchestrator.World) error {
		return s.Apply(context.Background(), w, 0, planner.Plan{Action: planner.ActionExecuteWork, TaskID: "gone"})
	})
	if err == nil {
		t.Fatal("expected error for unknown work task")
	}
}

func TestMoveRejectsUnknownLocation(t *testing.T) {
	o, s := newWorld(t, tasks.TypeGathering, tasks.GlobalTask{})
	err := o.Update(func(w *orchestrator.World) error {
		return s.Apply(context.Background(), w, 0, planner.Plan{Action: planner.ActionMoveToLocation, TargetLocation: "moon"})
	})
	if !errors.Is(err, ErrUnknownLocation) {
		t.Errorf("error = %v, want ErrUnknownLocation", err)
	}
}

func TestApplyInvalidTeam(t *testing.T) {
	o, s := newWorld(t, tasks.TypeGathering, tasks.GlobalTask{})
	err := o.Update(func(w *orchestrator.World) error {
		return s.Apply(context.Background(), w, 5, planner.Plan{Action: planner.ActionWaitIdle})
	})
	if err == nil {
		t.Fatal("expected error for missing team")
	}
}

func TestRestRecoversAtBase(t *testing.T) {
	o, s := newWorld(t, tasks.TypeGathering, tasks.GlobalTask{})
	_ = o.Update(func(w *orchestrator.World) error {
		w.Roster.UpdateMemberVitals(0, "ash", 40, 95)
		return s.Apply(context.Background(), w, 0, planner.Plan{Action: planner.ActionWaitIdle})
	})
	o.View(func(w *orchestrator.World) {
		team, _ := w.Roster.Team(0)
		if team.Members[0].Health != 50 || team.Members[0].Stamina != MaxVital {
			t.Errorf("vitals = %d/%d, want 50/%d", team.Members[0].Health, team.Members[0].Stamina, MaxVital)
		}
	})
}

func TestInstantFight(t *testing.T) {
	cfg := testConfig()
	cfg.CombatTurns = 0
	s := New(cfg)
	o := orchestrator.New(orchestrator.DefaultConfig())
	_ = o.Update(func(w *orchestrator.World) error {
		i := w.Roster.CreateTeam("Quick")
		w.Roster.AssignMember(i, teams.Member{ID: "x", Health: 100, Stamina: 100})
		return s.Apply(context.Background(), w, i, planner.Plan{Action: planner.ActionExecuteCombat})
	})
	o.View(func(w *orchestrator.World) {
		if !w.Roster.IsCombatFinished(0) {
			t.Error("zero-turn fight should end immediately")
		}
	})
}

func TestFightsTrackedPerTeamNotName(t *testing.T) {
	s := New(testConfig())
	o := orchestrator.New(orchestrator.DefaultConfig())
	ctx := context.Background()
	err := o.Update(func(w *orchestrator.World) error {
		for k, id := range []string{"a", "b"} {
			if _, err := w.Queue.Add(tasks.GlobalTask{
				ID: id, DisplayName: id, Priority: k + 1, Type: tasks.TypeAdventure,
				TargetItemID: "plains", TargetQuantity: 1, Policy: tasks.PolicySpecified,
			}); err != nil {
				return err
			}
		}
		for k, id := range []string{"a", "b"} {
			i := w.Roster.CreateTeam("Crew")
			w.Roster.AssignMember(i, teams.Member{ID: fmt.Sprintf("m%d", k), Health: 100, Stamina: 100})
			if err := s.Apply(ctx, w, i, planner.Plan{Action: planner.ActionExecuteCombat, TaskID: id}); err != nil {
				return err
			}
		}
		for turn := 0; turn < testConfig().CombatTurns; turn++ {
			for i := 0; i < 2; i++ {
				if err := s.Apply(ctx, w, i, planner.Plan{Action: planner.ActionNone}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	o.View(func(w *orchestrator.World) {
		for i, id := range []string{"a", "b"} {
			if !w.Roster.IsCombatFinished(i) {
				t.Errorf("team %d fight not finished", i)
			}
			if _, ok := w.Queue.Find(id); ok {
				t.Errorf("task %s got no progress from team %d", id, i)
			}
		}
	})
	if len(s.fights) != 0 {
		t.Errorf("fights = %d, want 0", len(s.fights))
	}
}

func TestDrain(t *testing.T) {
	if drain(3, 5) != 0 || drain(10, 4) != 6 {
		t.Error("drain should subtract and floor at zero")
	}
}
