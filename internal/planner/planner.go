// Package planner matches teams to backlog tasks and turns that match into
// a single execution plan per team per turn.
package planner

import (
	"fmt"
	"maps"

	"github.com/marcus/idlecrew/internal/inventory"
	"github.com/marcus/idlecrew/internal/locations"
	"github.com/marcus/idlecrew/internal/logging"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

// Action is what a plan asks the decision layer to do.
type Action int

const (
	ActionNone Action = iota
	ActionMoveToLocation
	ActionExecuteGathering
	ActionExecuteCombat
	ActionReturnToBase
	ActionUnloadItems
	ActionWaitIdle
	ActionExecuteWork
)

var actionNames = map[Action]string{
	ActionNone:             "none",
	ActionMoveToLocation:   "move_to_location",
	ActionExecuteGathering: "execute_gathering",
	ActionExecuteCombat:    "execute_combat",
	ActionReturnToBase:     "return_to_base",
	ActionUnloadItems:      "unload_items",
	ActionWaitIdle:         "wait_idle",
	ActionExecuteWork:      "execute_work",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// MarshalText encodes the action by name.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes an action name written by MarshalText.
func (a *Action) UnmarshalText(b []byte) error {
	act, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = act
	return nil
}

// ParseAction returns the action with the given name.
func ParseAction(name string) (Action, error) {
	for act, n := range actionNames {
		if n == name {
			return act, nil
		}
	}
	return ActionNone, fmt.Errorf("unknown action %q", name)
}

// Plan is the per-turn decision for one team. Plans are values and are
// never stored by the planner.
type Plan struct {
	Action         Action `json:"action"`
	TaskID         string `json:"task_id,omitempty"`
	TargetLocation string `json:"target_location,omitempty"`
	TargetItem     string `json:"target_item,omitempty"`
	Reason         string `json:"reason"`
	Valid          bool   `json:"valid"`
}

func (p Plan) String() string {
	s := p.Action.String()
	if p.TargetLocation != "" {
		s += " @" + p.TargetLocation
	}
	if p.TargetItem != "" {
		s += " [" + p.TargetItem + "]"
	}
	if p.Reason != "" {
		s += ": " + p.Reason
	}
	return s
}

// Config holds the world layout and thresholds the planner decides with.
type Config struct {
	BaseLocation       string
	GatheringLocations []string
	AdventureLocations []string

	// A member at or above InventoryCapacity held units must return.
	InventoryCapacity int
	// Members below MinHealth or MinStamina must return.
	MinHealth  int
	MinStamina int

	// Requirements lists the stock a team needs before it may take a
	// global task of the given type.
	Requirements map[tasks.TaskType]map[string]int
}

// DefaultConfig returns the stock world settings.
func DefaultConfig() Config {
	return Config{
		BaseLocation:       locations.BaseID,
		GatheringLocations: []string{"plains", "forest", "swamp", "mountain"},
		AdventureLocations: []string{"plains", "forest", "swamp", "cave"},
		InventoryCapacity:  20,
		MinHealth:          50,
		MinStamina:         30,
		Requirements: map[tasks.TaskType]map[string]int{
			tasks.TypeConstruction: {"wood": 10, "stone": 5},
			tasks.TypeCooking:      {"ingredient": 1},
			tasks.TypeCrafting:     {"material": 1},
		},
	}
}

// Planner reads the backlog, the roster and stock to produce plans. It never
// mutates the backlog or stock. It is not safe for concurrent use.
type Planner struct {
	queue   *tasks.Queue
	roster  *teams.Roster
	stock   inventory.Source
	catalog *locations.Catalog
	cfg     Config
	logger  *logging.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithConfig replaces the default world settings. Empty fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(p *Planner) {
		def := p.cfg
		if cfg.BaseLocation == "" {
			cfg.BaseLocation = def.BaseLocation
		}
		if len(cfg.GatheringLocations) == 0 {
			cfg.GatheringLocations = def.GatheringLocations
		}
		if len(cfg.AdventureLocations) == 0 {
			cfg.AdventureLocations = def.AdventureLocations
		}
		if cfg.InventoryCapacity <= 0 {
			cfg.InventoryCapacity = def.InventoryCapacity
		}
		if cfg.Requirements == nil {
			cfg.Requirements = def.Requirements
		}
		p.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Planner) {
		p.logger = l
	}
}

// New creates a planner and installs it as the roster's resource checker.
// A nil catalog means the default world map.
func New(queue *tasks.Queue, roster *teams.Roster, stock inventory.Source, catalog *locations.Catalog, opts ...Option) *Planner {
	if catalog == nil {
		catalog = locations.Default()
	}
	p := &Planner{
		queue:   queue,
		roster:  roster,
		stock:   stock,
		catalog: catalog,
		cfg:     DefaultConfig(),
		logger:  logging.Component("planner"),
	}
	for _, opt := range opts {
		opt(p)
	}
	roster.SetResourceChecker(p)
	return p
}

// Config returns a copy of the active settings.
func (p *Planner) Config() Config {
	c := p.cfg
	c.GatheringLocations = append([]string(nil), c.GatheringLocations...)
	c.AdventureLocations = append([]string(nil), c.AdventureLocations...)
	c.Requirements = make(map[tasks.TaskType]map[string]int, len(p.cfg.Requirements))
	for k, v := range p.cfg.Requirements {
		c.Requirements[k] = maps.Clone(v)
	}
	return c
}

// Catalog returns the world map the planner uses.
func (p *Planner) Catalog() *locations.Catalog { return p.catalog }

// BaseLocation returns the hub location id.
func (p *Planner) BaseLocation() string { return p.cfg.BaseLocation }

// HasResources implements teams.ResourceChecker. Required resources are
// checked against what the team can reach (storage plus its members);
// required items must be carried by the team's members.
func (p *Planner) HasResources(teamIndex int, task teams.TeamTask) bool {
	team, ok := p.roster.Team(teamIndex)
	if !ok {
		return false
	}
	for item, qty := range task.RequiredResources {
		if p.availability(team, item) < qty {
			return false
		}
	}
	for item, qty := range task.RequiredItems {
		if p.carried(team, item) < qty {
			return false
		}
	}
	return true
}
