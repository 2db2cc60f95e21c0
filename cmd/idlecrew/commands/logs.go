package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View logs",
	Long: `View idlecrew logs.

Displays recent log entries. Use --follow to stream logs in real-time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		export, _ := cmd.Flags().GetString("export")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logDir := logging.ExpandPath(cfg.Logging.Path)
		out := cmd.OutOrStdout()

		if export != "" {
			return exportLogs(out, logDir, export)
		}
		if follow {
			return followLogs(cmd, logDir, tail)
		}
		return showLogs(out, logDir, tail)
	},
}

func init() {
	logsCmd.Flags().IntP("tail", "n", 50, "Number of log lines to show")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().StringP("export", "e", "", "Export logs to file")
	rootCmd.AddCommand(logsCmd)
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Level     string    `json:"level"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Event     string    `json:"event,omitempty"`
	Turn      *int      `json:"turn,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func logFiles(logDir string) ([]string, error) {
	files, err := logging.LogFiles(logDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading log dir: %w", err)
	}
	return files, nil
}

func showLogs(out io.Writer, logDir string, n int) error {
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No log files found.")
		return nil
	}
	for _, line := range readLastLines(files, n) {
		printLogLine(out, line)
	}
	return nil
}

func followLogs(cmd *cobra.Command, logDir string, initialLines int) error {
	out := cmd.OutOrStdout()
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}
	if len(files) > 0 && initialLines > 0 {
		for _, line := range readLastLines(files, initialLines) {
			printLogLine(out, line)
		}
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(logDir); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	currentFile := currentLogFile(logDir)
	var file *os.File
	var reader *bufio.Reader
	if currentFile != "" {
		file, err = os.Open(currentFile)
		if err == nil {
			_, _ = file.Seek(0, io.SeekEnd)
			reader = bufio.NewReader(file)
		}
	}
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	fmt.Fprintln(out, "--- Following logs (Ctrl+C to exit) ---")

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// date rollover
			if newFile := currentLogFile(logDir); newFile != currentFile {
				if file != nil {
					_ = file.Close()
				}
				currentFile = newFile
				file, err = os.Open(currentFile)
				if err != nil {
					file, reader = nil, nil
					continue
				}
				reader = bufio.NewReader(file)
			}

			if event.Has(fsnotify.Write) && reader != nil {
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						break
					}
					printLogLine(out, strings.TrimSuffix(line, "\n"))
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watcher error: %v\n", err)
		}
	}
}

func exportLogs(out io.Writer, logDir, outFile string) error {
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no log files found")
	}

	dst, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer dst.Close()

	totalLines := 0
	// oldest first
	for i := len(files) - 1; i >= 0; i-- {
		for _, line := range readFileLines(files[i]) {
			if _, err := io.WriteString(dst, line+"\n"); err != nil {
				return fmt.Errorf("writing %s: %w", outFile, err)
			}
			totalLines++
		}
	}

	fmt.Fprintf(out, "Exported %d log lines to %s\n", totalLines, outFile)
	return nil
}

func currentLogFile(logDir string) string {
	path := filepath.Join(logDir, logging.LogFileName(time.Now()))
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// readLastLines returns the last n lines across files, which are ordered
// newest first.
func readLastLines(files []string, n int) []string {
	var lines []string
	for _, file := range files {
		if len(lines) >= n {
			break
		}
		fileLines := readFileLines(file)
		remaining := n - len(lines)
		if len(fileLines) > remaining {
			fileLines = fileLines[len(fileLines)-remaining:]
		}
		lines = append(fileLines, lines...)
	}
	return lines
}

func readFileLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func printLogLine(out io.Writer, line string) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Level == "" {
		fmt.Fprintln(out, line)
		return
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(formatLogLevel(entry.Level))
	if entry.Component != "" {
		fmt.Fprintf(&b, " [%s]", entry.Component)
	}
	if entry.Turn != nil {
		fmt.Fprintf(&b, " t%d", *entry.Turn)
	}
	if entry.Event != "" {
		fmt.Fprintf(&b, " %s", entry.Event)
	}
	if entry.Message != "" {
		fmt.Fprintf(&b, " %s", entry.Message)
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%s", entry.Error)
	}
	fmt.Fprintln(out, b.String())
}

func formatLogLevel(level string) string {
	switch level {
	case "debug":
		return "DBG"
	case "info":
		return "INF"
	case "warn":
		return "WRN"
	case "error":
		return "ERR"
	}
	if len(level) >= 3 {
		return strings.ToUpper(level[:3])
	}
	return strings.ToUpper(level)
}
