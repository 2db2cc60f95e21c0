package locations

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	for _, id := range []string{BaseID, "plains", "forest", "swamp", "mountain", "cave"} {
		if !c.Has(id) {
			t.Errorf("default catalog missing %q", id)
		}
	}
	if ids := c.IDs(); ids[0] != BaseID {
		t.Errorf("first location = %q, want base", ids[0])
	}
	if items := c.GatherableItems(BaseID); len(items) != 0 {
		t.Errorf("base gatherables = %v, want none", items)
	}
}

func TestCanGather(t *testing.T) {
	c := Default()
	tests := []struct {
		location string
		item     string
		want     bool
	}{
		{"plains", "wood", true},
		{"forest", "wood", true},
		{"forest", "stone", false},
		{"mountain", "stone", true},
		{"nowhere", "wood", false},
		{BaseID, "wood", false},
	}
	for _, tt := range tests {
		if got := c.CanGather(tt.location, tt.item); got != tt.want {
			t.Errorf("CanGather(%q, %q) = %v, want %v", tt.location, tt.item, got, tt.want)
		}
	}
}

func TestLocationsFor(t *testing.T) {
	c := Default()
	got := c.LocationsFor("wood")
	want := []string{"plains", "forest"}
	if len(got) != len(want) {
		t.Fatalf("LocationsFor(wood) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LocationsFor(wood)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := c.LocationsFor("unobtainium"); len(got) != 0 {
		t.Errorf("LocationsFor(unobtainium) = %v", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "locations: []"},
		{"missing id", "locations:\n  - name: Somewhere\n"},
		{"duplicate id", "locations:\n  - id: a\n  - id: a\n"},
		{"bad yaml", "locations:\n\t- id: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() succeeded, want error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	data := "locations:\n  - id: camp\n  - id: lake\n    gatherables:\n      - item: fish\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loc, ok := c.Get("camp")
	if !ok || loc.Name != "camp" {
		t.Errorf("Get(camp) = %+v, %v; want name defaulted to id", loc, ok)
	}
	if !c.CanGather("lake", "fish") {
		t.Error("CanGather(lake, fish) = false")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}
