package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/idlecrew/internal/config"
	"github.com/marcus/idlecrew/internal/logging"
	"github.com/marcus/idlecrew/internal/scheduler"
	"github.com/marcus/idlecrew/internal/transport/ws"
)

const (
	pidFileName = "idlecrew.pid"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage background daemon",
	Long:  `Start, stop, or check status of the idlecrew background daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start background daemon",
	Long: `Start the idlecrew daemon as a background process.

The daemon advances turns according to the configured schedule (cron or
interval), respecting the optional time window, and saves the board after
every turn. When server.listen is set it also streams turn events over a
websocket at /events and serves the board at /board.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop background daemon",
	Long:  `Stop the running idlecrew daemon by sending SIGTERM.`,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  `Check if the idlecrew daemon is running and show the last turn it ran.`,
	RunE:  runDaemonStatus,
}

var daemonForegroundFlag bool

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForegroundFlag, "foreground", "f", false, "Run in foreground (don't daemonize)")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

// pidFilePath returns the path to the PID file.
func pidFilePath() string {
	return filepath.Join(config.DefaultDataDir(), pidFileName)
}

// writePidFile writes the current process PID to the PID file.
func writePidFile() error {
	if err := os.MkdirAll(filepath.Dir(pidFilePath()), 0755); err != nil {
		return fmt.Errorf("creating pid dir: %w", err)
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

// readPidFile reads the PID from the PID file.
func readPidFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePidFile() error {
	return os.Remove(pidFilePath())
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	return process.Signal(syscall.Signal(0)) == nil
}

// isDaemonRunning checks if the daemon is currently running.
func isDaemonRunning() (bool, int) {
	pid, err := readPidFile()
	if err != nil {
		return false, 0
	}
	return isProcessRunning(pid), pid
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if running, pid := isDaemonRunning(); running {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.HasSchedule() {
		return fmt.Errorf("no schedule configured (set cron or interval in config)")
	}

	if daemonForegroundFlag {
		return runDaemonLoop(cmd)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("getting executable: %w", err)
	}
	childArgs := []string{"daemon", "start", "--foreground"}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		childArgs = append(childArgs, "--db", path)
	}
	child := exec.Command(executable, childArgs...)
	child.Stdout = nil
	child.Stderr = nil
	child.Stdin = nil
	// detach from the parent process group
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "daemon started (pid %d)\n", child.Process.Pid)
	return nil
}

func runDaemonLoop(cmd *cobra.Command) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	log := logging.Component("daemon")

	if err := writePidFile(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = removePidFile() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Infof("received signal %v, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	sched, err := scheduler.NewFromConfig(&s.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	turns := max(1, s.cfg.Schedule.TurnsPerRun)
	sched.AddJob(func(jobCtx context.Context) error {
		records, err := s.orch.Run(jobCtx, turns)
		for _, rec := range records {
			log.InfoCtx("turn finished", map[string]any{
				"turn":     rec.Turn,
				"plans":    len(rec.Plans),
				"events":   rec.Events,
				"duration": rec.Duration().String(),
			})
		}
		return err
	})

	var server *ws.Server
	if addr := s.cfg.Server.Listen; addr != "" {
		hub := ws.NewHub(
			ws.WithBoard(func(context.Context) (any, error) { return s.orch.Board(), nil }),
			ws.WithLogger(logging.Component("ws")),
			ws.WithLoopbackOnly(s.cfg.Server.LoopbackOnly),
		)
		s.orch.Subscribe(hub)
		server = ws.NewServer(addr, hub)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("event server: %v", err)
				cancel()
			}
		}()
		log.Infof("streaming events on %s", addr)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.InfoCtx("daemon running", map[string]any{
		"turn":     s.orch.Turn(),
		"next_run": sched.NextRun().Format(time.RFC3339),
	})

	<-ctx.Done()

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		log.Errorf("stopping scheduler: %v", err)
	}
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("stopping event server: %v", err)
		}
	}

	log.Info("daemon stopped")
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	running, pid := isDaemonRunning()
	if !running {
		if pid > 0 {
			_ = removePidFile()
		}
		return fmt.Errorf("daemon not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessRunning(pid) {
			fmt.Fprintf(cmd.OutOrStdout(), "daemon stopped (pid %d)\n", pid)
			return nil
		}
	}
	return fmt.Errorf("daemon (pid %d) did not stop within 5s", pid)
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	running, pid := isDaemonRunning()
	if running {
		fmt.Fprintf(out, "%sdaemon running%s (pid %d)\n", colorGreen, colorReset, pid)
	} else {
		fmt.Fprintf(out, "%sdaemon not running%s\n", colorYellow, colorReset)
	}

	return withSession(cmd, func(s *session) error {
		records, err := s.store.GetTurnHistory(cmd.Context(), 1)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "no turns recorded yet")
			return nil
		}
		last := records[0]
		fmt.Fprintf(out, "last turn: %d at %s (%s ago)\n", last.Turn, last.EndedAt.Format(time.RFC3339),
			time.Since(last.EndedAt).Round(time.Second))
		return nil
	})
}
