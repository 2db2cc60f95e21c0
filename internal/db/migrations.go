package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/marcus/idlecrew/internal/logging"
)

// Migration represents a single schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: global_tasks, teams, team_members, team_tasks, inventory, turn_history",
		SQL:         migration001SQL,
	},
	{
		Version:     2,
		Description: "add board_meta table for the turn counter",
		SQL:         migration002SQL,
	},
	{
		Version:     3,
		Description: "add resolved_combat column to turn_history",
		SQL:         migration003SQL,
	},
}

const migration001SQL = `
CREATE TABLE global_tasks (
    id               TEXT PRIMARY KEY,
    position         INTEGER NOT NULL,
    display_name     TEXT NOT NULL,
    priority         INTEGER NOT NULL,
    type             TEXT NOT NULL,
    target_item      TEXT NOT NULL DEFAULT '',
    target_quantity  INTEGER NOT NULL DEFAULT 0,
    current_progress INTEGER NOT NULL DEFAULT 0,
    completed        INTEGER NOT NULL DEFAULT 0,
    policy           TEXT NOT NULL,
    created_at       DATETIME NOT NULL
);

CREATE TABLE teams (
    idx                  INTEGER PRIMARY KEY,
    name                 TEXT NOT NULL,
    assigned_task        TEXT NOT NULL,
    active               INTEGER NOT NULL DEFAULT 1,
    action_state         TEXT NOT NULL,
    combat_state         TEXT NOT NULL,
    in_combat            INTEGER NOT NULL DEFAULT 0,
    location             TEXT NOT NULL,
    gathering_location   TEXT NOT NULL DEFAULT '',
    adventure_location   TEXT NOT NULL DEFAULT '',
    action_started_at    DATETIME,
    estimated_completion INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE team_members (
    member_id TEXT PRIMARY KEY,
    team_idx  INTEGER NOT NULL REFERENCES teams(idx) ON DELETE CASCADE,
    position  INTEGER NOT NULL,
    name      TEXT NOT NULL,
    health    INTEGER NOT NULL,
    stamina   INTEGER NOT NULL
);

CREATE TABLE team_tasks (
    team_idx           INTEGER NOT NULL REFERENCES teams(idx) ON DELETE CASCADE,
    priority           INTEGER NOT NULL,
    type               TEXT NOT NULL,
    required_resources TEXT NOT NULL DEFAULT '{}',
    required_items     TEXT NOT NULL DEFAULT '{}',
    min_team_size      INTEGER NOT NULL DEFAULT 1,
    estimated_duration INTEGER NOT NULL,
    active             INTEGER NOT NULL DEFAULT 0,
    started_at         DATETIME,
    PRIMARY KEY (team_idx, priority)
);

CREATE TABLE inventory (
    owner    TEXT NOT NULL,
    item     TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    PRIMARY KEY (owner, item)
);

CREATE TABLE turn_history (
    turn       INTEGER PRIMARY KEY,
    started_at DATETIME NOT NULL,
    ended_at   DATETIME NOT NULL,
    plans      TEXT NOT NULL,
    events     INTEGER NOT NULL DEFAULT 0,
    error      TEXT
);

CREATE INDEX idx_team_members_team ON team_members(team_idx, position);
CREATE INDEX idx_turn_history_time ON turn_history(started_at DESC);
`

const migration002SQL = `
CREATE TABLE IF NOT EXISTS board_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const migration003SQL = `
ALTER TABLE turn_history ADD COLUMN resolved_combat INTEGER NOT NULL DEFAULT 0;
`

// Migrate runs all pending migrations inside transactions.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}

		logging.Component("db").Infof("applied migration %d: %s", migration.Version, migration.Description)
		currentVersion = migration.Version
	}

	return nil
}

// CurrentVersion returns the current schema version (0 if no migrations applied).
func CurrentVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("db is nil")
	}

	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema_version: %w", err)
	}
	return version, nil
}
