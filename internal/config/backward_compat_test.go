package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestBackwardCompat_ConfigWithoutSimSection verifies that configs written
// before the sim and limits sections existed still load with defaults.
func TestBackwardCompat_ConfigWithoutSimSection(t *testing.T) {
	tmpDir := t.TempDir()

	oldConfigContent := `
schedule:
  interval: 5m
logging:
  level: info
return:
  min_health: 40
`
	configPath := filepath.Join(tmpDir, ProjectConfigName)
	if err := os.WriteFile(configPath, []byte(oldConfigContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPaths(tmpDir, filepath.Join(tmpDir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}

	if cfg.Sim.GatherPerMember != DefaultGatherPerMember {
		t.Errorf("Sim.GatherPerMember = %d, want %d", cfg.Sim.GatherPerMember, DefaultGatherPerMember)
	}
	if cfg.Sim.CombatTurns != DefaultCombatTurns {
		t.Errorf("Sim.CombatTurns = %d, want %d", cfg.Sim.CombatTurns, DefaultCombatTurns)
	}
	if cfg.Limits.MaxTeamTasks != 3 {
		t.Errorf("Limits.MaxTeamTasks = %d, want 3", cfg.Limits.MaxTeamTasks)
	}
	if cfg.Schedule.TurnsPerRun != DefaultTurnsPerRun {
		t.Errorf("Schedule.TurnsPerRun = %d, want %d", cfg.Schedule.TurnsPerRun, DefaultTurnsPerRun)
	}
}

// TestBackwardCompat_ExplicitZeroThreshold verifies that an explicit zero
// threshold is kept rather than replaced by the default.
func TestBackwardCompat_ExplicitZeroThreshold(t *testing.T) {
	tmpDir := t.TempDir()

	content := `
return:
  min_stamina: 0
`
	if err := os.WriteFile(filepath.Join(tmpDir, ProjectConfigName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPaths(tmpDir, filepath.Join(tmpDir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}
	if cfg.Return.MinStamina != 0 {
		t.Errorf("Return.MinStamina = %d, want explicit 0", cfg.Return.MinStamina)
	}
	if cfg.Return.MinHealth != DefaultMinHealth {
		t.Errorf("Return.MinHealth = %d, want default %d", cfg.Return.MinHealth, DefaultMinHealth)
	}
}
