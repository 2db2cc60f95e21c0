// Package scenario loads a seed board from YAML. Files are checked against
// an embedded JSON Schema before they are decoded.
package scenario

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/marcus/idlecrew/internal/state"
	"github.com/marcus/idlecrew/internal/tasks"
	"github.com/marcus/idlecrew/internal/teams"
)

//go:embed scenario.schema.json
var schemaJSON string

const schemaURL = "scenario.schema.json"

// Defaults applied to members and slots that omit them.
const (
	DefaultVitals       = 100
	DefaultSlotDuration = time.Minute
)

// ErrInvalid wraps schema and semantic validation failures.
var ErrInvalid = errors.New("invalid scenario")

// File is the on-disk scenario layout.
type File struct {
	Turn    int            `yaml:"turn"`
	Storage map[string]int `yaml:"storage"`
	Tasks   []TaskSpec     `yaml:"tasks"`
	Teams   []TeamSpec     `yaml:"teams"`
}

// TaskSpec seeds one backlog entry.
type TaskSpec struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Target   string `yaml:"target"`
	Quantity int    `yaml:"quantity"`
	Progress int    `yaml:"progress"`
	Priority int    `yaml:"priority"`
	Policy   string `yaml:"policy"`
}

// TeamSpec seeds one team.
type TeamSpec struct {
	Name              string       `yaml:"name"`
	Task              string       `yaml:"task"`
	Active            *bool        `yaml:"active"`
	Location          string       `yaml:"location"`
	GatheringLocation string       `yaml:"gathering_location"`
	AdventureLocation string       `yaml:"adventure_location"`
	Members           []MemberSpec `yaml:"members"`
	Slots             []SlotSpec   `yaml:"slots"`
}

// MemberSpec seeds one character.
type MemberSpec struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Health   *int           `yaml:"health"`
	Stamina  *int           `yaml:"stamina"`
	Carrying map[string]int `yaml:"carrying"`
}

// SlotSpec seeds one team task slot.
type SlotSpec struct {
	Priority          int            `yaml:"priority"`
	Type              string         `yaml:"type"`
	MinTeamSize       int            `yaml:"min_team_size"`
	Duration          string         `yaml:"duration"`
	RequiredResources map[string]int `yaml:"required_resources"`
	RequiredItems     map[string]int `yaml:"required_items"`
}

var schema *jsonschema.Schema

func compiled() (*jsonschema.Schema, error) {
	if schema != nil {
		return schema, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add scenario schema: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	schema = s
	return s, nil
}

// Load reads and parses the scenario at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(raw)
}

// Parse validates raw YAML against the schema and decodes it.
func Parse(raw []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	// Round-trip through JSON so the validator sees JSON value types.
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var value any
	if err := json.Unmarshal(js, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s, err := compiled()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}
	return &f, nil
}

// Board converts the scenario into a board. Tasks without an id get a
// generated one; tasks without a priority are ranked after the previous
// entry.
func (f *File) Board(baseLocation string, now time.Time) (state.Board, error) {
	b := state.Board{
		Turn:    f.Turn,
		Storage: make(map[string]int),
		Members: make(map[string]map[string]int),
	}
	for item, qty := range f.Storage {
		if qty > 0 {
			b.Storage[item] = qty
		}
	}

	next := tasks.MinPriority
	for k, ts := range f.Tasks {
		t, err := ts.globalTask(next, now.Add(time.Duration(k)*time.Millisecond))
		if err != nil {
			return state.Board{}, fmt.Errorf("%w: task %d: %v", ErrInvalid, k, err)
		}
		b.Tasks = append(b.Tasks, t)
		next = t.Priority + 1
	}

	seen := make(map[string]string)
	for _, spec := range f.Teams {
		team, err := spec.team(baseLocation)
		if err != nil {
			return state.Board{}, fmt.Errorf("%w: team %q: %v", ErrInvalid, spec.Name, err)
		}
		for _, m := range spec.Members {
			if other, dup := seen[m.ID]; dup {
				return state.Board{}, fmt.Errorf("%w: member %s on teams %q and %q", ErrInvalid, m.ID, other, spec.Name)
			}
			seen[m.ID] = spec.Name
			pack := make(map[string]int)
			for item, qty := range m.Carrying {
				if qty > 0 {
					pack[item] = qty
				}
			}
			if len(pack) > 0 {
				b.Members[m.ID] = pack
			}
		}
		b.Teams = append(b.Teams, team)
	}
	return b, nil
}

func (ts TaskSpec) globalTask(defaultPriority int, created time.Time) (tasks.GlobalTask, error) {
	typ, err := tasks.ParseTaskType(ts.Type)
	if err != nil {
		return tasks.GlobalTask{}, err
	}
	id := ts.ID
	if id == "" {
		id = uuid.NewString()
	}
	priority := ts.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	name := ts.Name
	if name == "" {
		name = typ.DisplayName()
		if ts.Target != "" {
			name += " " + ts.Target
		}
	}
	t := tasks.GlobalTask{
		ID:              id,
		DisplayName:     name,
		Priority:        priority,
		Type:            typ,
		TargetItemID:    ts.Target,
		TargetQuantity:  ts.Quantity,
		CurrentProgress: ts.Progress,
		Policy:          tasks.ConsumptionPolicy(ts.Policy),
		CreatedAt:       created,
		RelatedSkills:   tasks.RelatedSkills(typ),
	}.Normalize()
	if err := t.Validate(); err != nil {
		return tasks.GlobalTask{}, err
	}
	return t, nil
}

func (spec TeamSpec) team(baseLocation string) (teams.Team, error) {
	assigned := tasks.TypeIdle
	if spec.Task != "" {
		typ, err := tasks.ParseTaskType(spec.Task)
		if err != nil {
			return teams.Team{}, err
		}
		assigned = typ
	}
	location := spec.Location
	if location == "" {
		location = baseLocation
	}
	active := true
	if spec.Active != nil {
		active = *spec.Active
	}

	t := teams.Team{
		Name:                spec.Name,
		AssignedTask:        assigned,
		Active:              active,
		ActionState:         teams.StateIdle,
		CombatState:         teams.CombatNone,
		LocationID:          location,
		GatheringLocationID: spec.GatheringLocation,
		AdventureLocationID: spec.AdventureLocation,
	}
	for _, m := range spec.Members {
		t.Members = append(t.Members, teams.Member{
			ID:      m.ID,
			Name:    orDefault(m.Name, m.ID),
			Health:  vital(m.Health),
			Stamina: vital(m.Stamina),
		})
	}

	used := make(map[int]bool)
	for _, s := range spec.Slots {
		if used[s.Priority] {
			return teams.Team{}, fmt.Errorf("duplicate slot priority %d", s.Priority)
		}
		used[s.Priority] = true
		slot, err := s.teamTask()
		if err != nil {
			return teams.Team{}, err
		}
		t.Tasks = append(t.Tasks, slot)
	}
	return t, nil
}

func (s SlotSpec) teamTask() (teams.TeamTask, error) {
	typ, err := tasks.ParseTaskType(s.Type)
	if err != nil {
		return teams.TeamTask{}, err
	}
	duration := DefaultSlotDuration
	if s.Duration != "" {
		duration, err = time.ParseDuration(s.Duration)
		if err != nil {
			return teams.TeamTask{}, fmt.Errorf("slot %d duration: %w", s.Priority, err)
		}
	}
	slot := teams.TeamTask{
		Priority:          s.Priority,
		Type:              typ,
		MinTeamSize:       s.MinTeamSize,
		EstimatedDuration: duration,
		RequiredResources: s.RequiredResources,
		RequiredItems:     s.RequiredItems,
	}.Normalize()
	if err := slot.Validate(); err != nil {
		return teams.TeamTask{}, err
	}
	return slot, nil
}

func vital(v *int) int {
	if v == nil {
		return DefaultVitals
	}
	return *v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
