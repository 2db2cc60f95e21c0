package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcus/idlecrew/internal/config"
	"github.com/marcus/idlecrew/internal/db"
	"github.com/marcus/idlecrew/internal/events"
	"github.com/marcus/idlecrew/internal/planner"
	"github.com/marcus/idlecrew/internal/state"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

type call struct {
	team int
	plan planner.Plan
}

type recordingDecider struct {
	calls []call
	fail  map[int]error
}

func (d *recordingDecider) Apply(_ context.Context, _ *World, team int, plan planner.Plan) error {
	d.calls = append(d.calls, call{team, plan})
	return d.fail[team]
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Notify(e events.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) types() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Type, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func woodTask() tasks.GlobalTask {
	return tasks.GlobalTask{
		ID:             "wood",
		DisplayName:    "Wood",
		Priority:       1,
		Type:           tasks.TypeGathering,
		TargetItemID:   "wood",
		TargetQuantity: 10,
		Policy:         tasks.PolicySpecified,
	}
}

// seed adds one gathering team with a single member and the wood task.
func seed(t *testing.T, o *Orchestrator) {
	t.Helper()
	err := o.Update(func(w *World) error {
		if _, err := w.Queue.Add(woodTask()); err != nil {
			return err
		}
		i := w.Roster.CreateTeam("Lumber")
		w.Roster.AssignMember(i, teams.Member{ID: "ash", Name: "Ash", Health: 100, Stamina: 100})
		return w.Roster.AddTeamTask(i, teams.TeamTask{Priority: 1, Type: tasks.TypeGathering, EstimatedDuration: time.Minute})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRunTurnEmptyBoard(t *testing.T) {
	log := &eventLog{}
	o := New(DefaultConfig(), WithObserver(log), WithClock(fixedClock()))

	rec, err := o.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}
	if rec.Turn != 1 || o.Turn() != 1 {
		t.Errorf("turn = %d/%d, want 1", rec.Turn, o.Turn())
	}
	if len(rec.Plans) != 0 {
		t.Errorf("Plans = %+v, want none", rec.Plans)
	}
	got := log.types()
	if len(got) != 2 || got[0] != events.TurnStarted || got[1] != events.TurnEnded {
		t.Errorf("events = %v", got)
	}
	if rec.Events != 2 {
		t.Errorf("rec.Events = %d, want 2", rec.Events)
	}
}

func TestRunTurnPlansActiveTeams(t *testing.T) {
	d := &recordingDecider{}
	log := &eventLog{}
	o := New(DefaultConfig(), WithDecider(d), WithObserver(log))
	seed(t, o)
	_ = o.Update(func(w *World) error {
		i := w.Roster.CreateTeam("Benched")
		w.Roster.SetActive(i, false)
		return nil
	})

	rec, err := o.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn() error: %v", err)
	}
	if len(rec.Plans) != 1 || len(d.calls) != 1 {
		t.Fatalf("plans=%d calls=%d, want 1 each", len(rec.Plans), len(d.calls))
	}
	plan := d.calls[0].plan
	if plan.Action != planner.ActionMoveToLocation || plan.TargetLocation != "plains" || plan.TaskID != "wood" {
		t.Errorf("plan = %s", plan)
	}

	var issued int
	for _, typ := range log.types() {
		if typ == events.PlanIssued {
			issued++
		}
	}
	if issued != 1 {
		t.Errorf("PlanIssued events = %d, want 1", issued)
	}
}

func TestRunTurnCollectsDeciderErrors(t *testing.T) {
	d := &recordingDecider{fail: map[int]error{0: errors.New("stuck")}}
	o := New(DefaultConfig(), WithDecider(d))
	seed(t, o)
	_ = o.Update(func(w *World) error {
		w.Roster.CreateTeam("Second")
		return nil
	})

	rec, err := o.RunTurn(context.Background())
	if err == nil {
		t.Fatal("expected decider error")
	}
	if !strings.Contains(err.Error(), "team 0: stuck") {
		t.Errorf("error = %v", err)
	}
	if len(d.calls) != 2 {
		t.Errorf("decider called %d times, want 2", len(d.calls))
	}
	if rec.Error == "" {
		t.Error("TurnRecord.Error should be set")
	}
}

func TestRunTurnResolvesPendingCombat(t *testing.T) {
	o := New(DefaultConfig())
	seed(t, o)
	_ = o.Update(func(w *World) error {
		w.Roster.StartCombat(0, time.Minute)
		w.Roster.EndCombat(0)
		return nil
	})

	rec, err := o.RunTurn(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rec.ResolvedCombat != 1 {
		t.Errorf("ResolvedCombat = %d, want 1", rec.ResolvedCombat)
	}
	o.View(func(w *World) {
		if w.Roster.IsInCombat(0) {
			t.Error("team still in combat")
		}
		if w.Roster.ActionState(0) != teams.StateWorking {
			t.Errorf("state = %s, want working after re-dispatch", w.Roster.ActionState(0))
		}
	})
}

func TestRunTurnRedispatchesIdleTeamWhenStockArrives(t *testing.T) {
	o := New(DefaultConfig())
	err := o.Update(func(w *World) error {
		i := w.Roster.CreateTeam("Builders")
		w.Roster.AssignMember(i, teams.Member{ID: "bo", Health: 100, Stamina: 100})
		return w.Roster.AddTeamTask(i, teams.TeamTask{
			Priority:          1,
			Type:              tasks.TypeConstruction,
			RequiredResources: map[string]int{"wood": 5},
			EstimatedDuration: time.Minute,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	o.View(func(w *World) {
		if w.Roster.ActionState(0) != teams.StateIdle {
			t.Fatalf("team should wait for wood, state %s", w.Roster.ActionState(0))
		}
	})

	_ = o.Update(func(w *World) error {
		w.Stock.AddStorage("wood", 5)
		return nil
	})
	if _, err := o.RunTurn(context.Background()); err != nil {
		t.Fatal(err)
	}
	o.View(func(w *World) {
		if w.Roster.ActionState(0) != teams.StateWorking {
			t.Errorf("state = %s, want working", w.Roster.ActionState(0))
		}
		if w.Roster.CurrentTaskType(0) != tasks.TypeConstruction {
			t.Errorf("task type = %s", w.Roster.CurrentTaskType(0))
		}
	})
}

func TestRunTurnPersists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	database, err := db.Open(filepath.Join(home, "idlecrew.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = database.Close() })
	store, err := state.New(database)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	o := New(DefaultConfig(), WithState(store))
	seed(t, o)
	if _, err := o.Run(ctx, 2); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	b, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b.Turn != 2 || len(b.Tasks) != 1 || len(b.Teams) != 1 {
		t.Errorf("stored board turn=%d tasks=%d teams=%d", b.Turn, len(b.Tasks), len(b.Teams))
	}
	history, err := store.GetTurnHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Turn != 2 {
		t.Errorf("history = %+v", history)
	}

	reloaded := New(DefaultConfig(), WithState(store))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if reloaded.Turn() != 2 {
		t.Errorf("reloaded turn = %d", reloaded.Turn())
	}
}

func TestLoadSaveWithoutStore(t *testing.T) {
	o := New(DefaultConfig())
	if err := o.Load(context.Background()); err == nil {
		t.Error("Load() without store should fail")
	}
	if err := o.Save(context.Background()); err == nil {
		t.Error("Save() without store should fail")
	}
}

func TestBoardRoundTrip(t *testing.T) {
	o := New(DefaultConfig())
	seed(t, o)
	_ = o.Update(func(w *World) error {
		w.Stock.AddStorage("stone", 3)
		w.Stock.Give("ash", "wood", 2)
		return nil
	})
	b := o.Board()

	other := New(DefaultConfig())
	if err := other.LoadBoard(b); err != nil {
		t.Fatalf("LoadBoard() error: %v", err)
	}
	got := other.Board()
	if len(got.Tasks) != 1 || got.Tasks[0].ID != "wood" {
		t.Errorf("tasks = %+v", got.Tasks)
	}
	if len(got.Teams) != 1 || got.Teams[0].ActionState != teams.StateWorking {
		t.Errorf("teams = %+v", got.Teams)
	}
	if got.Storage["stone"] != 3 || got.Members["ash"]["wood"] != 2 {
		t.Errorf("stock = %v / %v", got.Storage, got.Members)
	}
}

func TestPlanAllDoesNotAdvance(t *testing.T) {
	d := &recordingDecider{}
	o := New(DefaultConfig(), WithDecider(d))
	seed(t, o)

	plans := o.PlanAll()
	if len(plans) != 1 || plans[0].Plan.Action != planner.ActionMoveToLocation {
		t.Errorf("plans = %+v", plans)
	}
	if o.Turn() != 0 || len(d.calls) != 0 {
		t.Errorf("PlanAll advanced the world: turn %d, calls %d", o.Turn(), len(d.calls))
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(DefaultConfig())
	records, err := o.Run(ctx, 3)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(records) != 0 || o.Turn() != 0 {
		t.Errorf("records=%d turn=%d after cancelled run", len(records), o.Turn())
	}
}

func TestDeciderFunc(t *testing.T) {
	var seen planner.Action = -1
	d := DeciderFunc(func(_ context.Context, _ *World, _ int, p planner.Plan) error {
		seen = p.Action
		return nil
	})
	o := New(DefaultConfig(), WithDecider(d))
	seed(t, o)
	if _, err := o.RunTurn(context.Background()); err != nil {
		t.Fatal(err)
	}
	if seen != planner.ActionMoveToLocation {
		t.Errorf("seen = %s", seen)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{
		World: config.WorldConfig{
			BaseLocation:       "base",
			GatheringLocations: []string{"forest"},
		},
		Return: config.ReturnConfig{InventoryCapacity: 5, MinHealth: 10, MinStamina: 10},
		Limits: config.LimitsConfig{MaxGlobalTasks: 8, MaxTeamTasks: 2},
	}
	out, err := ConfigFrom(cfg)
	if err != nil {
		t.Fatalf("ConfigFrom() error: %v", err)
	}
	if out.MaxGlobalTasks != 8 || out.MaxTeamTasks != 2 {
		t.Errorf("limits = %d/%d", out.MaxGlobalTasks, out.MaxTeamTasks)
	}
	if out.Planner.InventoryCapacity != 5 || out.Planner.GatheringLocations[0] != "forest" {
		t.Errorf("planner = %+v", out.Planner)
	}
	if out.Catalog == nil {
		t.Error("Catalog should default to the built-in map")
	}

	cfg.World.Catalog = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := ConfigFrom(cfg); err == nil {
		t.Error("expected error for missing catalog")
	}
}
