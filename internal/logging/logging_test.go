package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcus/idlecrew/internal/events"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"json to file", Config{Path: tmpDir, Level: "info", Format: "json"}, false},
		{"text to file", Config{Path: tmpDir, Level: "debug", Format: "text"}, false},
		{"console mirror", Config{Path: tmpDir, Level: "warn", Console: true}, false},
		{"invalid level", Config{Path: tmpDir, Level: "loud"}, true},
		{"stderr only", Config{Level: "info"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if logger != nil {
				_ = logger.Close()
			}
		})
	}
}

func TestLoggerWritesDailyFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := New(Config{Path: tmpDir, Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Debug("debug msg")
	logger.Infof("turn %d", 3)
	logger.WarnCtx("warn ctx", map[string]any{"team": 1})

	path := filepath.Join(tmpDir, LogFileName(time.Now()))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if !strings.Contains(string(data), "turn 3") {
		t.Errorf("log file missing formatted message: %s", data)
	}
}

func TestWithComponentAndTurn(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "info")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	child := logger.WithComponent("planner").WithTurn(7)
	if child.component != "planner" {
		t.Errorf("component = %q, want planner", child.component)
	}
	child.Info("planned")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if line["component"] != "planner" {
		t.Errorf("component field = %v", line["component"])
	}
	if line["turn"] != float64(7) {
		t.Errorf("turn field = %v", line["turn"])
	}
}

func TestLogRetention(t *testing.T) {
	tmpDir := t.TempDir()
	for _, days := range []int{-10, -8, -3} {
		name := filepath.Join(tmpDir, LogFileName(time.Now().AddDate(0, 0, days)))
		if err := os.WriteFile(name, []byte("old"), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	logger, err := New(Config{Path: tmpDir, RetentionDays: 7})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = logger.Close() }()

	cutoff := time.Now().AddDate(0, 0, -7)
	deadline := time.Now().Add(2 * time.Second)
	for {
		stale := 0
		entries, _ := os.ReadDir(tmpDir)
		for _, entry := range entries {
			if day, ok := parseLogDate(entry); ok && day.Before(cutoff) {
				stale++
			}
		}
		if stale == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d stale log files remain", stale)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, LogFileName(time.Now().AddDate(0, 0, -3)))); err != nil {
		t.Errorf("recent log file removed: %v", err)
	}
}

func TestLogFiles(t *testing.T) {
	tmpDir := t.TempDir()
	for _, days := range []int{0, -1, -2} {
		name := filepath.Join(tmpDir, LogFileName(time.Now().AddDate(0, 0, days)))
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := LogFiles(tmpDir)
	if err != nil {
		t.Fatalf("LogFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("LogFiles returned %d files, want 3", len(files))
	}
	if files[0] < files[1] {
		t.Error("log files not sorted newest first")
	}
}

func TestGlobalLogger(t *testing.T) {
	if err := Init(Config{Path: t.TempDir(), Level: "info"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		globalMu.Lock()
		if globalLogger != nil {
			_ = globalLogger.Close()
		}
		globalLogger = nil
		globalMu.Unlock()
	})

	if c := Component("queue"); c.component != "queue" {
		t.Errorf("Component() component = %q", c.component)
	}
	if Get().Dir() == "" {
		t.Error("global logger has no directory after Init")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.Format != "json" || cfg.RetentionDays != 7 {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
	if !strings.Contains(cfg.Path, filepath.Join("idlecrew", "logs")) {
		t.Errorf("default path = %q, want idlecrew/logs suffix", cfg.Path)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"WARN", false},
		{"error", false},
		{"trace", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if _, err := ParseLevel(tt.level); (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "info")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	obs := NewEventLogger(logger)

	obs.Notify(events.Event{Type: events.TaskPriorityChanged, TaskID: "wood"})
	if buf.Len() != 0 {
		t.Errorf("debug-level event written at info level: %s", buf.String())
	}

	obs.Notify(events.Event{Type: events.TeamTaskStarted, TeamIndex: 2, Message: "started"})
	if !strings.Contains(buf.String(), `"event":"team_task_started"`) {
		t.Errorf("event not logged: %s", buf.String())
	}
}
