// Package sim is a small deterministic decision layer that acts out plans:
// teams walk, gather, fight and build so the scheduler can run without a
// game client attached.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/idlecrew/internal/config"
	"github.com/marcus/idlecrew/internal/logging"
	"github.com/marcus/idlecrew/internal/orchestrator"
	"github.com/marcus/idlecrew/internal/planner"
	"github.com/marcus/idlecrew/internal/teams"
)

// MaxVital caps health and stamina.
const MaxVital = 100

// ErrUnknownLocation is returned for plans that target a location missing
// from the catalog.
var ErrUnknownLocation = errors.New("unknown location")

// Config tunes the simulation.
type Config struct {
	GatherPerMember int
	CombatTurns     int
	StaminaPerTurn  int
	// TurnLength is the wall-clock estimate of one turn, used for combat
	// duration estimates.
	TurnLength time.Duration
}

// DefaultConfig returns the stock simulation settings.
func DefaultConfig() Config {
	return Config{
		GatherPerMember: config.DefaultGatherPerMember,
		CombatTurns:     config.DefaultCombatTurns,
		StaminaPerTurn:  config.DefaultStaminaPerTurn,
		TurnLength:      time.Minute,
	}
}

// ConfigFrom reads the sim section of the config file.
func ConfigFrom(cfg *config.Config) Config {
	out := Config{
		GatherPerMember: cfg.Sim.GatherPerMember,
		CombatTurns:     cfg.Sim.CombatTurns,
		StaminaPerTurn:  cfg.Sim.StaminaPerTurn,
		TurnLength:      time.Minute,
	}
	if d := cfg.ScheduleInterval(); d > 0 {
		out.TurnLength = d
	}
	return out
}

type fight struct {
	taskID    string
	remaining int
}

// Sim implements orchestrator.Decider.
type Sim struct {
	cfg    Config
	logger *logging.Logger
	fights map[uint64]*fight
}

// New creates a simulator.
func New(cfg Config) *Sim {
	return &Sim{
		cfg:    cfg,
		logger: logging.Component("sim"),
		fights: make(map[uint64]*fight),
	}
}

// Apply acts out plan for team. Teams already fighting advance their fight
// regardless of the plan they were given.
func (s *Sim) Apply(ctx context.Context, w *orchestrator.World, team int, plan planner.Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, ok := w.Roster.Team(team)
	if !ok {
		return fmt.Errorf("team %d does not exist", team)
	}
	if t.InCombat {
		s.fightTurn(w, team, t)
		return nil
	}

	switch plan.Action {
	case planner.ActionMoveToLocation:
		return s.move(w, team, t, plan.TargetLocation)
	case planner.ActionReturnToBase:
		if err := s.move(w, team, t, w.Planner.BaseLocation()); err != nil {
			return err
		}
		s.unload(w, team, t)
	case planner.ActionUnloadItems:
		s.unload(w, team, t)
	case planner.ActionExecuteGathering:
		s.gather(w, team, t, plan)
	case planner.ActionExecuteCombat:
		s.startFight(w, team, t, plan)
	case planner.ActionExecuteWork:
		return s.work(w, team, t, plan)
	default:
		s.rest(w, team, t)
	}
	return nil
}

func (s *Sim) move(w *orchestrator.World, team int, t teams.Team, dest string) error {
	if dest == "" || !w.Planner.Catalog().Has(dest) {
		return fmt.Errorf("%w: %q", ErrUnknownLocation, dest)
	}
	if t.LocationID == dest {
		return nil
	}
	prev := t.ActionState
	w.Roster.SetActionState(team, teams.StateMoving)
	w.Roster.SetLocation(team, dest)
	w.Roster.SetActionState(team, prev)
	s.logger.Debugf("team %d moved %s -> %s", team, t.LocationID, dest)
	return nil
}

func (s *Sim) unload(w *orchestrator.World, team int, t teams.Team) {
	moved := 0
	for _, m := range t.Members {
		moved += w.Stock.Unload(m.ID)
	}
	if moved > 0 {
		s.logger.Debugf("team %d unloaded %d units", team, moved)
	}
}

func (s *Sim) gather(w *orchestrator.World, team int, t teams.Team, plan planner.Plan) {
	total := 0
	for _, m := range t.Members {
		if m.Stamina <= 0 {
			continue
		}
		w.Stock.Give(m.ID, plan.TargetItem, s.cfg.GatherPerMember)
		total += s.cfg.GatherPerMember
		w.Roster.UpdateMemberVitals(team, m.ID, m.Health, drain(m.Stamina, s.cfg.StaminaPerTurn))
	}
	if total > 0 && plan.TaskID != "" {
		w.Queue.UpdateProgress(plan.TaskID, total)
	}
	s.logger.Debugf("team %d gathered %d %s", team, total, plan.TargetItem)
}

func (s *Sim) startFight(w *orchestrator.World, team int, t teams.Team, plan planner.Plan) {
	turns := max(0, s.cfg.CombatTurns)
	if !w.Roster.StartCombat(team, time.Duration(turns)*s.cfg.TurnLength) {
		return
	}
	f := &fight{taskID: plan.TaskID, remaining: turns}
	s.fights[t.Key()] = f
	if f.remaining == 0 {
		s.finishFight(w, team, t.Key(), f)
	}
}

func (s *Sim) fightTurn(w *orchestrator.World, team int, t teams.Team) {
	if w.Roster.IsCombatFinished(team) {
		return
	}
	f, ok := s.fights[t.Key()]
	if !ok {
		f = &fight{remaining: max(1, s.cfg.CombatTurns)}
		s.fights[t.Key()] = f
	}
	for _, m := range t.Members {
		w.Roster.UpdateMemberVitals(team, m.ID, drain(m.Health, s.cfg.StaminaPerTurn), drain(m.Stamina, s.cfg.StaminaPerTurn))
	}
	f.remaining--
	if f.remaining <= 0 {
		s.finishFight(w, team, t.Key(), f)
	}
}

func (s *Sim) finishFight(w *orchestrator.World, team int, key uint64, f *fight) {
	w.Roster.EndCombat(team)
	delete(s.fights, key)
	if f.taskID != "" {
		w.Queue.UpdateProgress(f.taskID, 1)
	}
	s.logger.Debugf("team %d won a fight", team)
}

func (s *Sim) work(w *orchestrator.World, team int, t teams.Team, plan planner.Plan) error {
	task, ok := w.Queue.Find(plan.TaskID)
	if !ok {
		return fmt.Errorf("work task %q not in backlog", plan.TaskID)
	}
	s.unload(w, team, t)
	reqs := w.Planner.Config().Requirements[task.Type]
	for item, qty := range reqs {
		if w.Stock.Storage(item) < qty {
			return fmt.Errorf("%s needs %d %s, storage has %d", task.Type, qty, item, w.Stock.Storage(item))
		}
	}
	for item, qty := range reqs {
		if err := w.Stock.TakeStorage(item, qty); err != nil {
			return fmt.Errorf("take %s: %w", item, err)
		}
	}
	if w.Queue.UpdateProgress(task.ID, 1) {
		w.Roster.CompleteCurrentTask(team)
	}
	return nil
}

func (s *Sim) rest(w *orchestrator.World, team int, t teams.Team) {
	if t.LocationID != w.Planner.BaseLocation() {
		return
	}
	gain := 2 * s.cfg.StaminaPerTurn
	for _, m := range t.Members {
		if m.Health >= MaxVital && m.Stamina >= MaxVital {
			continue
		}
		w.Roster.UpdateMemberVitals(team, m.ID, min(MaxVital, m.Health+gain), min(MaxVital, m.Stamina+gain))
	}
}

func drain(v, by int) int {
	return max(0, v-by)
}
