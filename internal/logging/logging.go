// Package logging provides structured logging with daily log files for
// idlecrew. Output is JSON by default, or a console layout in text format.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const filePrefix = "idlecrew-"

// Logger wraps zerolog with component scoping and file lifecycle.
type Logger struct {
	zl        zerolog.Logger
	component string
	logDir    string
	file      *os.File
	mu        sync.Mutex
}

// Config holds logging configuration.
type Config struct {
	Level         string // debug, info, warn, error
	Path          string // log directory; empty logs to stderr only
	Format        string // json, text
	RetentionDays int    // days of files to keep (default 7)
	Console       bool   // mirror to stderr when writing files
}

// DefaultConfig returns default logging configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Level:         "info",
		Path:          filepath.Join(home, ".local", "share", "idlecrew", "logs"),
		Format:        "json",
		RetentionDays: 7,
	}
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Init replaces the global logger.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}

	globalMu.Lock()
	prev := globalLogger
	globalLogger = logger
	globalMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// New creates a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 7
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	logger := &Logger{}
	var writers []io.Writer

	if cfg.Path != "" {
		logger.logDir = ExpandPath(cfg.Path)
		if err := os.MkdirAll(logger.logDir, 0755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(logger.currentLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logger.file = f
		writers = append(writers, f)

		go logger.cleanOldLogs(cfg.RetentionDays)
	}
	if cfg.Console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var output io.Writer = io.MultiWriter(writers...)
	if cfg.Format == "text" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}

	logger.zl = zerolog.New(output).Level(level).With().Timestamp().Logger()
	return logger, nil
}

// NewWriter builds a logger that writes JSON lines to w. It is meant for
// tests and embedding.
func NewWriter(w io.Writer, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}, nil
}

// LogFileName returns the file name used for the given day.
func LogFileName(day time.Time) string {
	return filePrefix + day.Format("2006-01-02") + ".log"
}

func (l *Logger) currentLogPath() string {
	return filepath.Join(l.logDir, LogFileName(time.Now()))
}

// cleanOldLogs removes dated log files older than retentionDays.
func (l *Logger) cleanOldLogs(retentionDays int) {
	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	for _, entry := range entries {
		day, ok := parseLogDate(entry)
		if ok && day.Before(cutoff) {
			_ = os.Remove(filepath.Join(l.logDir, entry.Name()))
		}
	}
}

func parseLogDate(entry os.DirEntry) (time.Time, bool) {
	name := entry.Name()
	if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".log"))
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// WithComponent returns a child logger tagged with component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		component: component,
		logDir:    l.logDir,
		file:      l.file,
	}
}

// WithTurn returns a child logger tagged with a turn number.
func (l *Logger) WithTurn(turn int) *Logger {
	return &Logger{
		zl:        l.zl.With().Int("turn", turn).Logger(),
		component: l.component,
		logDir:    l.logDir,
		file:      l.file,
	}
}

// With returns a zerolog context for adding fields.
func (l *Logger) With() zerolog.Context {
	return l.zl.With()
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// DebugCtx logs msg with structured fields.
func (l *Logger) DebugCtx(msg string, fields map[string]any) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

// InfoCtx logs msg with structured fields.
func (l *Logger) InfoCtx(msg string, fields map[string]any) {
	l.zl.Info().Fields(fields).Msg(msg)
}

// WarnCtx logs msg with structured fields.
func (l *Logger) WarnCtx(msg string, fields map[string]any) {
	l.zl.Warn().Fields(fields).Msg(msg)
}

// Err starts an error-level event carrying err.
func (l *Logger) Err(err error) *zerolog.Event {
	return l.zl.Error().Err(err)
}

// Event returns a new log event at the named level.
func (l *Logger) Event(level string) *zerolog.Event {
	switch level {
	case "debug":
		return l.zl.Debug()
	case "warn":
		return l.zl.Warn()
	case "error":
		return l.zl.Error()
	default:
		return l.zl.Info()
	}
}

// Dir returns the log directory, or "" for stderr-only loggers.
func (l *Logger) Dir() string { return l.logDir }

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// LogFiles returns the dated log files in dir, newest first.
func LogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(ExpandPath(dir))
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if _, ok := parseLogDate(entry); ok {
			files = append(files, filepath.Join(ExpandPath(dir), entry.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// Get returns the global logger, or a stderr logger before Init.
func Get() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return &Logger{
			zl: zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger(),
		}
	}
	return globalLogger
}

// Component returns a global child logger tagged with name.
func Component(name string) *Logger {
	return Get().WithComponent(name)
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
