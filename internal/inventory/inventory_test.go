package inventory

import (
	"errors"
	"testing"
)

func TestStoreCounts(t *testing.T) {
	s := NewStore()
	s.AddStorage("wood", 5)
	s.AddStorage("wood", -3)
	s.Give("alice", "wood", 2)
	s.Give("alice", "stone", 1)

	if got := s.Storage("wood"); got != 5 {
		t.Errorf("Storage(wood) = %d, want 5", got)
	}
	if got := s.Held("alice", "wood"); got != 2 {
		t.Errorf("Held(alice, wood) = %d, want 2", got)
	}
	if got := s.HeldTotal("alice"); got != 3 {
		t.Errorf("HeldTotal(alice) = %d, want 3", got)
	}
	if got := s.Held("bob", "wood"); got != 0 {
		t.Errorf("Held(bob, wood) = %d, want 0", got)
	}
}

func TestStoreUnload(t *testing.T) {
	s := NewStore()
	s.Give("alice", "wood", 4)
	s.Give("alice", "berry", 1)

	if moved := s.Unload("alice"); moved != 5 {
		t.Errorf("Unload() = %d, want 5", moved)
	}
	if s.HeldTotal("alice") != 0 {
		t.Error("pack not empty after unload")
	}
	if s.Storage("wood") != 4 || s.Storage("berry") != 1 {
		t.Errorf("storage after unload = %v", s.StorageSnapshot())
	}
}

func TestStoreTakeStorage(t *testing.T) {
	s := NewStore()
	s.AddStorage("stone", 3)
	if err := s.TakeStorage("stone", 4); !errors.Is(err, ErrInsufficient) {
		t.Errorf("TakeStorage over stock error = %v, want ErrInsufficient", err)
	}
	if err := s.TakeStorage("stone", 3); err != nil {
		t.Fatalf("TakeStorage: %v", err)
	}
	if _, ok := s.StorageSnapshot()["stone"]; ok {
		t.Error("empty item left in storage")
	}
}

func TestStoreSnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	s.Give("alice", "wood", 1)

	snap := s.MemberSnapshot()
	snap["alice"]["wood"] = 99
	if s.Held("alice", "wood") != 1 {
		t.Error("MemberSnapshot aliased internal state")
	}

	s.Replace(map[string]int{"iron": 2}, map[string]map[string]int{"bob": {"iron": 1}})
	if s.Held("alice", "wood") != 0 || s.Held("bob", "iron") != 1 || s.Storage("iron") != 2 {
		t.Error("Replace did not swap contents")
	}
	if items := s.Items(); len(items) != 1 || items[0] != "iron" {
		t.Errorf("Items() = %v, want [iron]", items)
	}
}
