package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_DirPermissions(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "idlecrew.db")

	database, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	defer func() { _ = database.Close() }()

	info, err := os.Stat(filepath.Dir(dbPath))
	if err != nil {
		t.Fatalf("stat db dir: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0700 {
		t.Errorf("DB directory permissions = %o, want 700", mode)
	}
}

func TestOpen_ExistingDirKeepsWorking(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	database, err := Open(filepath.Join(dir, "idlecrew.db"))
	if err != nil {
		t.Fatalf("Open in existing dir: %v", err)
	}
	defer func() { _ = database.Close() }()

	for _, table := range []string{"global_tasks", "teams", "team_members", "team_tasks", "inventory", "turn_history"} {
		if !tableExists(t, database.SQL(), table) {
			t.Fatalf("expected table %q to exist", table)
		}
	}
}

func TestOpen_VersionStableAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idlecrew.db")

	first, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	v1, err := CurrentVersion(first.SQL())
	if err != nil {
		t.Fatalf("version after first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer func() { _ = second.Close() }()
	v2, err := CurrentVersion(second.SQL())
	if err != nil {
		t.Fatalf("version after second open: %v", err)
	}

	if v1 != v2 || v2 != len(migrations) {
		t.Errorf("versions = %d then %d, want both %d", v1, v2, len(migrations))
	}
}

func TestOpen_TeamDeleteCascades(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "idlecrew.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = database.Close() }()
	sqlDB := database.SQL()

	stmts := []string{
		`INSERT INTO teams (idx, name, assigned_task, action_state, combat_state, location) VALUES (0, 'A', 'idle', 'idle', 'not_in_combat', 'base')`,
		`INSERT INTO team_members (member_id, team_idx, position, name, health, stamina) VALUES ('alice', 0, 0, 'Alice', 100, 100)`,
		`INSERT INTO team_tasks (team_idx, priority, type, estimated_duration) VALUES (0, 1, 'gathering', 60)`,
		`DELETE FROM teams WHERE idx = 0`,
	}
	for _, stmt := range stmts {
		if _, err := sqlDB.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	var members, slots int
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM team_members`).Scan(&members); err != nil {
		t.Fatal(err)
	}
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM team_tasks`).Scan(&slots); err != nil {
		t.Fatal(err)
	}
	if members != 0 || slots != 0 {
		t.Errorf("after team delete: %d members, %d slots remain", members, slots)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test.db", filepath.Join(home, "test.db")},
		{"/absolute/test.db", "/absolute/test.db"},
		{"relative/test.db", "relative/test.db"},
	}

	for _, tc := range tests {
		if result := expandPath(tc.input); result != tc.expected {
			t.Errorf("expandPath(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

func TestOpen_EmptyPathUsesDefault(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	database, err := Open("")
	if err != nil {
		t.Fatalf("Open with empty path: %v", err)
	}
	defer func() { _ = database.Close() }()

	expectedPath := filepath.Join(tmpDir, ".local", "share", "idlecrew", "idlecrew.db")
	if database.Path() != expectedPath {
		t.Errorf("database path = %q, want %q", database.Path(), expectedPath)
	}
}

func TestOpen_PragmasApplied(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "idlecrew.db"))
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	defer func() { _ = database.Close() }()

	var journalMode string
	if err := database.SQL().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	var fkEnabled int
	if err := database.SQL().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fkEnabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", fkEnabled)
	}
}
