// Package config handles loading and validating idlecrew configuration.
// Supports YAML config files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marcus/idlecrew/internal/tasks"
)

// Config holds all idlecrew configuration.
type Config struct {
	Schedule     ScheduleConfig            `mapstructure:"schedule"`
	Logging      LoggingConfig             `mapstructure:"logging"`
	DB           DBConfig                  `mapstructure:"db"`
	World        WorldConfig               `mapstructure:"world"`
	Limits       LimitsConfig              `mapstructure:"limits"`
	Return       ReturnConfig              `mapstructure:"return"`
	Requirements map[string]map[string]int `mapstructure:"requirements"`
	Sim          SimConfig                 `mapstructure:"sim"`
	Server       ServerConfig              `mapstructure:"server"`
}

// ScheduleConfig controls when the daemon advances turns.
type ScheduleConfig struct {
	Cron        string        `mapstructure:"cron"`
	Interval    string        `mapstructure:"interval"`
	Window      *WindowConfig `mapstructure:"window"`
	TurnsPerRun int           `mapstructure:"turns_per_run"`
}

// WindowConfig restricts turns to a time-of-day window.
type WindowConfig struct {
	Start    string `mapstructure:"start"`
	End      string `mapstructure:"end"`
	Timezone string `mapstructure:"timezone"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Path          string `mapstructure:"path"`
	Format        string `mapstructure:"format"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// DBConfig locates the board database.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// WorldConfig describes the map the planner works over.
type WorldConfig struct {
	BaseLocation       string   `mapstructure:"base_location"`
	GatheringLocations []string `mapstructure:"gathering_locations"`
	AdventureLocations []string `mapstructure:"adventure_locations"`
	// Catalog is an optional YAML location catalog replacing the built-in map.
	Catalog string `mapstructure:"catalog"`
}

// LimitsConfig caps backlog and team task list sizes.
type LimitsConfig struct {
	MaxGlobalTasks int `mapstructure:"max_global_tasks"`
	MaxTeamTasks   int `mapstructure:"max_team_tasks"`
}

// ReturnConfig holds the thresholds that send a team home.
type ReturnConfig struct {
	InventoryCapacity int `mapstructure:"inventory_capacity"`
	MinHealth         int `mapstructure:"min_health"`
	MinStamina        int `mapstructure:"min_stamina"`
}

// SimConfig tunes the built-in demo decision layer.
type SimConfig struct {
	GatherPerMember int `mapstructure:"gather_per_member"`
	CombatTurns     int `mapstructure:"combat_turns"`
	StaminaPerTurn  int `mapstructure:"stamina_per_turn"`
}

// ServerConfig controls the websocket event stream.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`

	// LoopbackOnly rejects clients that are not on the local host.
	LoopbackOnly bool `mapstructure:"loopback_only"`
}

// Default values.
const (
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultRetentionDays     = 7
	DefaultBaseLocation      = "base"
	DefaultInventoryCapacity = 20
	DefaultMinHealth         = 50
	DefaultMinStamina        = 30
	DefaultTurnsPerRun       = 1
	DefaultGatherPerMember   = 1
	DefaultCombatTurns       = 2
	DefaultStaminaPerTurn    = 5
	ProjectConfigName        = "idlecrew.yaml"
)

// Validation errors.
var (
	ErrCronAndInterval  = errors.New("schedule: cron and interval are mutually exclusive")
	ErrInvalidLogLevel  = errors.New("logging: level must be debug, info, warn, or error")
	ErrInvalidLogFormat = errors.New("logging: format must be json or text")
	ErrInvalidThreshold = errors.New("limit or threshold out of range")
	ErrUnknownTaskType  = errors.New("requirements: unknown task type")
)

var (
	defaultGatheringLocations = []string{"plains", "forest", "swamp", "mountain"}
	defaultAdventureLocations = []string{"plains", "forest", "swamp", "cave"}
	defaultRequirements       = map[string]map[string]int{
		"construction": {"wood": 10, "stone": 5},
		"cooking":      {"ingredient": 1},
		"crafting":     {"material": 1},
	}
)

// DefaultDataDir returns the directory holding the database and logs.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "idlecrew")
}

// DefaultDBPath returns the default board database path.
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "idlecrew.db")
}

// DefaultLogPath returns the default log directory.
func DefaultLogPath() string {
	return filepath.Join(DefaultDataDir(), "logs")
}

// GlobalConfigPath returns the per-user config path.
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "idlecrew", "config.yaml")
}

// Load reads configuration from the working directory and the per-user
// config, project values taking precedence.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return LoadFromPaths(cwd, GlobalConfigPath())
}

// LoadFromPaths loads the global config at globalPath, merges
// projectDir/idlecrew.yaml over it, then applies IDLECREW_* environment
// overrides.
func LoadFromPaths(projectDir, globalPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("IDLECREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config %s: %w", globalPath, err)
		}
	}

	projectPath := filepath.Join(projectDir, ProjectConfigName)
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.DB.Path = expandPath(cfg.DB.Path)
	cfg.Logging.Path = expandPath(cfg.Logging.Path)
	cfg.World.Catalog = expandPath(cfg.World.Catalog)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.interval", "")
	v.SetDefault("schedule.turns_per_run", DefaultTurnsPerRun)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", DefaultLogPath())
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.retention_days", DefaultRetentionDays)

	v.SetDefault("db.path", DefaultDBPath())

	v.SetDefault("world.base_location", DefaultBaseLocation)
	v.SetDefault("world.gathering_locations", defaultGatheringLocations)
	v.SetDefault("world.adventure_locations", defaultAdventureLocations)
	v.SetDefault("world.catalog", "")

	v.SetDefault("limits.max_global_tasks", tasks.MaxGlobalTasks)
	v.SetDefault("limits.max_team_tasks", 3)

	v.SetDefault("return.inventory_capacity", DefaultInventoryCapacity)
	v.SetDefault("return.min_health", DefaultMinHealth)
	v.SetDefault("return.min_stamina", DefaultMinStamina)

	for typ, items := range defaultRequirements {
		for item, qty := range items {
			v.SetDefault("requirements."+typ+"."+item, qty)
		}
	}

	v.SetDefault("sim.gather_per_member", DefaultGatherPerMember)
	v.SetDefault("sim.combat_turns", DefaultCombatTurns)
	v.SetDefault("sim.stamina_per_turn", DefaultStaminaPerTurn)

	v.SetDefault("server.listen", "")
	v.SetDefault("server.loopback_only", true)
}

// Validate checks configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Schedule.Cron != "" && cfg.Schedule.Interval != "" {
		return ErrCronAndInterval
	}
	if cfg.Schedule.Interval != "" {
		if _, err := time.ParseDuration(cfg.Schedule.Interval); err != nil {
			return fmt.Errorf("schedule.interval: invalid duration %q: %w", cfg.Schedule.Interval, err)
		}
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return ErrInvalidLogFormat
	}

	if cfg.Limits.MaxGlobalTasks < 0 || cfg.Limits.MaxGlobalTasks > tasks.MaxGlobalTasks {
		return fmt.Errorf("%w: limits.max_global_tasks %d", ErrInvalidThreshold, cfg.Limits.MaxGlobalTasks)
	}
	if cfg.Limits.MaxTeamTasks < 0 || cfg.Limits.MaxTeamTasks > 3 {
		return fmt.Errorf("%w: limits.max_team_tasks %d", ErrInvalidThreshold, cfg.Limits.MaxTeamTasks)
	}
	if cfg.Return.InventoryCapacity < 0 || cfg.Return.MinHealth < 0 || cfg.Return.MinStamina < 0 {
		return fmt.Errorf("%w: return thresholds must not be negative", ErrInvalidThreshold)
	}
	if cfg.Sim.GatherPerMember < 0 || cfg.Sim.CombatTurns < 0 || cfg.Sim.StaminaPerTurn < 0 {
		return fmt.Errorf("%w: sim values must not be negative", ErrInvalidThreshold)
	}

	for typ, items := range cfg.Requirements {
		if _, err := tasks.ParseTaskType(typ); err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownTaskType, typ)
		}
		for item, qty := range items {
			if qty < 0 {
				return fmt.Errorf("%w: requirements.%s.%s is %d", ErrInvalidThreshold, typ, item, qty)
			}
		}
	}
	return nil
}

// RequirementsByType returns the per-type stock requirements keyed by task
// type. Unknown types are dropped; Validate rejects them earlier.
func (c *Config) RequirementsByType() map[tasks.TaskType]map[string]int {
	out := make(map[tasks.TaskType]map[string]int, len(c.Requirements))
	for typ, items := range c.Requirements {
		parsed, err := tasks.ParseTaskType(typ)
		if err != nil {
			continue
		}
		m := make(map[string]int, len(items))
		for item, qty := range items {
			m[item] = qty
		}
		out[parsed] = m
	}
	return out
}

// ScheduleInterval returns the parsed interval, or zero when unset.
func (c *Config) ScheduleInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.Interval)
	if err != nil {
		return 0
	}
	return d
}

// HasSchedule reports whether the daemon has a trigger configured.
func (c *Config) HasSchedule() bool {
	return c.Schedule.Cron != "" || c.Schedule.Interval != ""
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultYAML is the starter config written by `idlecrew init`.
const DefaultYAML = `# idlecrew configuration
schedule:
  # cron: "*/5 * * * *"
  interval: 1m
  turns_per_run: 1

logging:
  level: info
  format: json

world:
  base_location: base
  gathering_locations: [plains, forest, swamp, mountain]
  adventure_locations: [plains, forest, swamp, cave]

return:
  inventory_capacity: 20
  min_health: 50
  min_stamina: 30

requirements:
  construction: {wood: 10, stone: 5}
  cooking: {ingredient: 1}
  crafting: {material: 1}

server:
  listen: ""
  loopback_only: true
`
