// Package orchestrator drives turn passes: it resolves finished combat,
// re-dispatches idle teams, asks the planner for one plan per team, hands
// each plan to a Decider and flushes the turn's notifications.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marcus/idlecrew/internal/config"
	"github.com/marcus/idlecrew/internal/events"
	"github.com/marcus/idlecrew/internal/inventory"
	"github.com/marcus/idlecrew/internal/locations"
	"github.com/marcus/idlecrew/internal/logging"
	"github.com/marcus/idlecrew/internal/planner"
	"github.com/marcus/idlecrew/internal/state"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

// Config holds orchestrator configuration.
type Config struct {
	Planner        planner.Config
	Catalog        *locations.Catalog
	MaxGlobalTasks int
	MaxTeamTasks   int
}

// DefaultConfig returns default orchestrator config.
func DefaultConfig() Config {
	return Config{
		Planner:        planner.DefaultConfig(),
		Catalog:        locations.Default(),
		MaxGlobalTasks: tasks.MaxGlobalTasks,
		MaxTeamTasks:   teams.MaxTeamTasks,
	}
}

// ConfigFrom builds orchestrator settings from the loaded config file.
func ConfigFrom(cfg *config.Config) (Config, error) {
	out := DefaultConfig()
	if cfg.World.Catalog != "" {
		catalog, err := locations.Load(cfg.World.Catalog)
		if err != nil {
			return Config{}, fmt.Errorf("loading location catalog: %w", err)
		}
		out.Catalog = catalog
	}
	out.Planner = planner.Config{
		BaseLocation:       cfg.World.BaseLocation,
		GatheringLocations: cfg.World.GatheringLocations,
		AdventureLocations: cfg.World.AdventureLocations,
		InventoryCapacity:  cfg.Return.InventoryCapacity,
		MinHealth:          cfg.Return.MinHealth,
		MinStamina:         cfg.Return.MinStamina,
		Requirements:       cfg.RequirementsByType(),
	}
	if cfg.Limits.MaxGlobalTasks > 0 {
		out.MaxGlobalTasks = cfg.Limits.MaxGlobalTasks
	}
	if cfg.Limits.MaxTeamTasks > 0 {
		out.MaxTeamTasks = cfg.Limits.MaxTeamTasks
	}
	return out, nil
}

// World is the mutable scheduling state handed to deciders and Update
// callbacks. It is only valid for the duration of the call.
type World struct {
	Turn    int
	Queue   *tasks.Queue
	Roster  *teams.Roster
	Stock   *inventory.Store
	Planner *planner.Planner
}

// Decider turns a plan into world changes. Apply is called once per active
// team per turn, including for plans that ask the team to do nothing.
type Decider interface {
	Apply(ctx context.Context, w *World, team int, plan planner.Plan) error
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, w *World, team int, plan planner.Plan) error

// Apply calls f.
func (f DeciderFunc) Apply(ctx context.Context, w *World, team int, plan planner.Plan) error {
	return f(ctx, w, team, plan)
}

// Orchestrator owns the backlog, roster and stock and runs turns over them.
type Orchestrator struct {
	mu sync.Mutex

	outbox  *events.Outbox
	queue   *tasks.Queue
	roster  *teams.Roster
	stock   *inventory.Store
	planner *planner.Planner

	store   *state.State
	decider Decider
	logger  *logging.Logger
	now     func() time.Time
	turn    int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithState persists the board and turn history after every turn.
func WithState(s *state.State) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithDecider sets the layer that acts on plans.
func WithDecider(d Decider) Option {
	return func(o *Orchestrator) {
		o.decider = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithClock overrides the time source for turn records and task timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithObserver subscribes obs to every flushed notification.
func WithObserver(obs events.Observer) Option {
	return func(o *Orchestrator) {
		o.outbox.Subscribe(obs)
	}
}

// New creates an orchestrator with an empty board.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		outbox: events.NewOutbox(),
		logger: logging.Component("orchestrator"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = locations.Default()
	}

	o.queue = tasks.NewQueue(
		tasks.WithCapacity(cfg.MaxGlobalTasks),
		tasks.WithPublisher(o.outbox),
		tasks.WithClock(o.now),
	)
	o.stock = inventory.NewStore()
	o.roster = teams.NewRoster(
		teams.WithMaxTasks(cfg.MaxTeamTasks),
		teams.WithPublisher(o.outbox),
		teams.WithClock(o.now),
		teams.WithBaseLocation(baseOf(cfg.Planner)),
	)
	o.planner = planner.New(o.queue, o.roster, o.stock, cfg.Catalog, planner.WithConfig(cfg.Planner))
	return o
}

func baseOf(cfg planner.Config) string {
	if cfg.BaseLocation != "" {
		return cfg.BaseLocation
	}
	return locations.BaseID
}

// Subscribe registers an observer after construction.
func (o *Orchestrator) Subscribe(obs events.Observer) {
	o.outbox.Subscribe(obs)
}

// Turn returns the number of the last completed turn.
func (o *Orchestrator) Turn() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turn
}

func (o *Orchestrator) world() *World {
	return &World{
		Turn:    o.turn,
		Queue:   o.queue,
		Roster:  o.roster,
		Stock:   o.stock,
		Planner: o.planner,
	}
}

// Update runs fn with exclusive access to the world and then delivers the
// notifications it produced.
func (o *Orchestrator) Update(fn func(w *World) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := fn(o.world())
	o.outbox.Flush()
	return err
}

// View runs fn with exclusive access to the world. fn must not mutate it.
func (o *Orchestrator) View(fn func(w *World)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.world())
}

// Board captures the current board.
func (o *Orchestrator) Board() state.Board {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.board()
}

func (o *Orchestrator) board() state.Board {
	return state.Board{
		Turn:    o.turn,
		Tasks:   o.queue.All(),
		Teams:   o.roster.Teams(),
		Storage: o.stock.StorageSnapshot(),
		Members: o.stock.MemberSnapshot(),
	}
}

// LoadBoard replaces the whole board. Restoring publishes no notifications.
func (o *Orchestrator) LoadBoard(b state.Board) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.queue.Restore(b.Tasks); err != nil {
		return fmt.Errorf("restore tasks: %w", err)
	}
	if err := o.roster.Restore(b.Teams); err != nil {
		return fmt.Errorf("restore teams: %w", err)
	}
	o.stock.Replace(b.Storage, b.Members)
	o.turn = b.Turn
	o.logger.Infof("board loaded: turn %d, %d tasks, %d teams", b.Turn, len(b.Tasks), len(b.Teams))
	return nil
}

// Load reads the board from the state store.
func (o *Orchestrator) Load(ctx context.Context) error {
	if o.store == nil {
		return errors.New("no state store configured")
	}
	b, err := o.store.Load(ctx)
	if err != nil {
		return err
	}
	return o.LoadBoard(b)
}

// Save writes the board to the state store.
func (o *Orchestrator) Save(ctx context.Context) error {
	if o.store == nil {
		return errors.New("no state store configured")
	}
	o.mu.Lock()
	b := o.board()
	o.mu.Unlock()
	return o.store.Save(ctx, b)
}

// PlanAll returns the plan each active team would receive now, without
// acting on it or advancing the turn.
func (o *Orchestrator) PlanAll() []state.TeamPlan {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []state.TeamPlan
	for i := 0; i < o.roster.Len(); i++ {
		t, _ := o.roster.Team(i)
		if !t.Active {
			continue
		}
		plan := o.planner.CreateExecutionPlanForTeam(i, t.LocationID, o.roster.CurrentTaskType(i))
		out = append(out, state.TeamPlan{TeamIndex: i, Plan: plan})
	}
	return out
}

// RunTurn executes one scheduling pass. Decider failures are collected and
// returned together; they do not stop the remaining teams.
func (o *Orchestrator) RunTurn(ctx context.Context) (state.TurnRecord, error) {
	if err := ctx.Err(); err != nil {
		return state.TurnRecord{}, err
	}

	o.mu.Lock()
	o.turn++
	turn := o.turn
	log := o.logger.WithTurn(turn)
	rec := state.TurnRecord{Turn: turn, StartedAt: o.now()}
	o.outbox.Publish(events.Event{Type: events.TurnStarted, Turn: turn})

	rec.ResolvedCombat = o.roster.ResolvePendingCombat()
	if rec.ResolvedCombat > 0 {
		log.Infof("resolved %d finished fights", rec.ResolvedCombat)
	}

	var errs []error
	w := o.world()
	for i := 0; i < o.roster.Len(); i++ {
		t, _ := o.roster.Team(i)
		if !t.Active {
			continue
		}
		if t.ActionState == teams.StateIdle && len(t.Tasks) > 0 {
			o.roster.SwitchToNextAvailableTask(i, teams.ReasonResourceChange)
		}
		t, _ = o.roster.Team(i)

		plan := o.planner.CreateExecutionPlanForTeam(i, t.LocationID, o.roster.CurrentTaskType(i))
		rec.Plans = append(rec.Plans, state.TeamPlan{TeamIndex: i, Plan: plan})
		o.outbox.Publish(events.Event{
			Type:      events.PlanIssued,
			Turn:      turn,
			TeamIndex: i,
			TaskID:    plan.TaskID,
			State:     plan.Action.String(),
			Message:   plan.String(),
		})
		log.DebugCtx("plan issued", map[string]any{
			"team":   i,
			"action": plan.Action.String(),
			"target": plan.TargetLocation,
			"item":   plan.TargetItem,
			"reason": plan.Reason,
		})

		if o.decider == nil {
			continue
		}
		if err := o.decider.Apply(ctx, w, i, plan); err != nil {
			log.Warnf("team %d: decider: %v", i, err)
			errs = append(errs, fmt.Errorf("team %d: %w", i, err))
		}
	}

	o.outbox.Publish(events.Event{Type: events.TurnEnded, Turn: turn})
	rec.Events = o.outbox.Flush()
	rec.EndedAt = o.now()
	b := o.board()
	o.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		rec.Error = err.Error()
	}
	if o.store != nil {
		if serr := o.store.Save(ctx, b); serr != nil {
			err = errors.Join(err, fmt.Errorf("save board: %w", serr))
		}
		if herr := o.store.AddTurnRecord(ctx, rec); herr != nil {
			err = errors.Join(err, fmt.Errorf("record turn: %w", herr))
		}
	}

	log.InfoCtx("turn complete", map[string]any{
		"plans":    len(rec.Plans),
		"events":   rec.Events,
		"duration": rec.Duration().String(),
		"failed":   err != nil,
	})
	return rec, err
}

// Run executes n turns, stopping early when ctx is cancelled. Turn errors
// are logged and joined into the returned error.
func (o *Orchestrator) Run(ctx context.Context, n int) ([]state.TurnRecord, error) {
	var (
		records []state.TurnRecord
		errs    []error
	)
	for k := 0; k < n; k++ {
		rec, err := o.RunTurn(ctx)
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		records = append(records, rec)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return records, errors.Join(errs...)
}
