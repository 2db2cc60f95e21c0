package commands

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/config"
	"github.com/marcus/idlecrew/internal/db"
	"github.com/marcus/idlecrew/internal/logging"
	"github.com/marcus/idlecrew/internal/orchestrator"
	"github.com/marcus/idlecrew/internal/sim"
	"github.com/marcus/idlecrew/internal/state"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// session bundles everything a command needs to read or change the board.
type session struct {
	cfg   *config.Config
	db    *db.DB
	store *state.State
	orch  *orchestrator.Orchestrator
	sim   *sim.Sim
	log   *logging.Logger
}

// loadConfig reads the config files and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		cfg.DB.Path = path
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// initLogging initializes the logging subsystem. Console mirrors log lines
// to stderr in addition to the dated log files.
func initLogging(cfg *config.Config, console bool) error {
	return logging.Init(logging.Config{
		Level:         cfg.Logging.Level,
		Path:          cfg.Logging.Path,
		Format:        cfg.Logging.Format,
		RetentionDays: cfg.Logging.RetentionDays,
		Console:       console,
	})
}

// openSession loads config, opens the board database and restores the
// saved board into a fresh orchestrator.
func openSession(cmd *cobra.Command, console bool, opts ...orchestrator.Option) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := initLogging(cfg, console || verbose); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	st, err := state.New(database)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init state: %w", err)
	}
	ocfg, err := orchestrator.ConfigFrom(cfg)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	s := sim.New(sim.ConfigFrom(cfg))
	opts = append([]orchestrator.Option{
		orchestrator.WithState(st),
		orchestrator.WithDecider(s),
		orchestrator.WithObserver(logging.NewEventLogger(logging.Component("events"))),
	}, opts...)
	orch := orchestrator.New(ocfg, opts...)
	if err := orch.Load(cmd.Context()); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("load board: %w", err)
	}

	return &session{
		cfg:   cfg,
		db:    database,
		store: st,
		orch:  orch,
		sim:   s,
		log:   logging.Component("cli"),
	}, nil
}

// mutate applies fn to the world and saves the board when it succeeds.
func (s *session) mutate(ctx context.Context, fn func(w *orchestrator.World) error) error {
	if err := s.orch.Update(fn); err != nil {
		return err
	}
	return s.orch.Save(ctx)
}

func (s *session) Close() error {
	return s.db.Close()
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}

// parseCounts parses "wood=10,stone=5" into a count map.
func parseCounts(raw string) (map[string]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]int)
	for _, part := range strings.Split(raw, ",") {
		item, qty, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || item == "" {
			return nil, fmt.Errorf("invalid count %q (want item=qty)", part)
		}
		n, err := strconv.Atoi(qty)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid quantity for %s: %q", item, qty)
		}
		out[item] += n
	}
	return out, nil
}

// formatCounts renders a count map in sorted item order.
func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ",")
}

// parseIndex parses a team index argument.
func parseIndex(arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid team index %q", arg)
	}
	return i, nil
}

func printRecord(out io.Writer, rec state.TurnRecord) {
	status := colorGreen + "ok" + colorReset
	if rec.Error != "" {
		status = colorRed + "error" + colorReset
	}
	fmt.Fprintf(out, "%sturn %d%s  %s  %s", colorBold, rec.Turn, colorReset, status, rec.Duration().Round(time.Millisecond))
	if rec.ResolvedCombat > 0 {
		fmt.Fprintf(out, "  combat resolved: %d", rec.ResolvedCombat)
	}
	fmt.Fprintln(out)
	for _, tp := range rec.Plans {
		fmt.Fprintf(out, "  team %d: %s\n", tp.TeamIndex, tp.Plan)
	}
	if rec.Error != "" {
		fmt.Fprintf(out, "  %s%s%s\n", colorRed, rec.Error, colorReset)
	}
}
