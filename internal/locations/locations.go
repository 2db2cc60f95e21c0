// Package locations loads the world map: which places exist and what can be
// gathered or fought at each of them.
package locations

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_locations.yaml
var defaultCatalog []byte

// BaseID is the id of the hub location in the default catalog.
const BaseID = "base"

// Type classifies a location.
type Type string

const (
	TypeBase     Type = "base"
	TypePlains   Type = "plains"
	TypeForest   Type = "forest"
	TypeSwamp    Type = "swamp"
	TypeMountain Type = "mountain"
	TypeCave     Type = "cave"
)

// Gatherable is an item that can be collected at a location.
type Gatherable struct {
	Item        string  `yaml:"item" json:"item"`
	Coefficient float64 `yaml:"coefficient" json:"coefficient"`
}

// EnemySpawn is a weighted enemy preset for adventure encounters.
type EnemySpawn struct {
	Preset      string  `yaml:"preset" json:"preset"`
	Probability float64 `yaml:"probability" json:"probability"`
}

// Location is one place on the map.
type Location struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	Type        Type         `yaml:"type" json:"type"`
	Description string       `yaml:"description" json:"description,omitempty"`
	Distance    int          `yaml:"distance" json:"distance"`
	Gatherables []Gatherable `yaml:"gatherables" json:"gatherables,omitempty"`
	Enemies     []EnemySpawn `yaml:"enemies" json:"enemies,omitempty"`
}

// CanGather reports whether item is collectable here.
func (l Location) CanGather(item string) bool {
	for _, g := range l.Gatherables {
		if g.Item == item {
			return true
		}
	}
	return false
}

// Catalog is an immutable set of locations in file order.
type Catalog struct {
	order []string
	byID  map[string]Location
}

type catalogFile struct {
	Locations []Location `yaml:"locations"`
}

// Default returns the built-in world map.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded location catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading location catalog: %w", err)
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing location catalog: %w", err)
	}
	if len(f.Locations) == 0 {
		return nil, errors.New("location catalog is empty")
	}

	c := &Catalog{byID: make(map[string]Location, len(f.Locations))}
	for _, loc := range f.Locations {
		if loc.ID == "" {
			return nil, errors.New("location with empty id")
		}
		if _, dup := c.byID[loc.ID]; dup {
			return nil, fmt.Errorf("duplicate location id %q", loc.ID)
		}
		if loc.Name == "" {
			loc.Name = loc.ID
		}
		c.byID[loc.ID] = loc
		c.order = append(c.order, loc.ID)
	}
	return c, nil
}

// Get returns the location with the given id.
func (c *Catalog) Get(id string) (Location, bool) {
	loc, ok := c.byID[id]
	return loc, ok
}

// Has reports whether id is a known location.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// IDs returns location ids in file order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// CanGather reports whether item is collectable at location id. Unknown
// locations gather nothing.
func (c *Catalog) CanGather(id, item string) bool {
	loc, ok := c.byID[id]
	return ok && loc.CanGather(item)
}

// GatherableItems returns the item ids collectable at location id.
func (c *Catalog) GatherableItems(id string) []string {
	loc := c.byID[id]
	items := make([]string, 0, len(loc.Gatherables))
	for _, g := range loc.Gatherables {
		items = append(items, g.Item)
	}
	return items
}

// LocationsFor returns, in file order, every location where item can be
// gathered.
func (c *Catalog) LocationsFor(item string) []string {
	var ids []string
	for _, id := range c.order {
		if c.byID[id].CanGather(item) {
			ids = append(ids, id)
		}
	}
	return ids
}
