// Package scheduler triggers turn passes on a cron expression or a fixed
// interval, optionally restricted to a time-of-day window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcus/idlecrew/internal/config"
	"github.com/marcus/idlecrew/internal/logging"
)

// Scheduler errors.
var (
	ErrNoSchedule     = errors.New("no cron expression or interval configured")
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// TimeOfDay is an hour and minute on a 24h clock.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Window is a daily [Start, End) range. End before Start wraps midnight.
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Location != nil {
		t = t.In(w.Location)
	}
	now := t.Hour()*60 + t.Minute()
	start, end := w.Start.Minutes(), w.End.Minutes()
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// Scheduler runs jobs on a cron expression or an interval.
type Scheduler struct {
	mu       sync.Mutex
	cronExpr string
	schedule cron.Schedule
	interval time.Duration
	window   *Window
	jobs     []Job
	logger   *logging.Logger

	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
}

// New creates a scheduler with no trigger configured.
func New() *Scheduler {
	return &Scheduler{logger: logging.Component("scheduler")}
}

// NewFromConfig builds a scheduler from the schedule config section.
func NewFromConfig(cfg *config.ScheduleConfig) (*Scheduler, error) {
	s := New()
	switch {
	case cfg.Cron != "":
		if err := s.SetCron(cfg.Cron); err != nil {
			return nil, err
		}
	case cfg.Interval != "":
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("parsing interval %q: %w", cfg.Interval, err)
		}
		if err := s.SetInterval(d); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoSchedule
	}
	if cfg.Window != nil {
		if err := s.SetWindow(cfg.Window); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetCron sets a standard five-field cron expression, replacing any interval.
func (s *Scheduler) SetCron(expr string) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("parsing cron %q: %w", expr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cronExpr = expr
	s.schedule = sched
	s.interval = 0
	return nil
}

// SetInterval sets a fixed interval, replacing any cron expression.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	s.cronExpr = ""
	s.schedule = nil
	return nil
}

// SetWindow restricts runs to a daily window.
func (s *Scheduler) SetWindow(cfg *config.WindowConfig) error {
	start, err := ParseTimeOfDay(cfg.Start)
	if err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	end, err := ParseTimeOfDay(cfg.End)
	if err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	loc := time.Local
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("window timezone: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = &Window{Start: start, End: end, Location: loc}
	return nil
}

// AddJob registers a job to run on every trigger.
func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// IsInWindow reports whether t is inside the configured window. Without a
// window every time qualifies.
func (s *Scheduler) IsInWindow(t time.Time) bool {
	s.mu.Lock()
	w := s.window
	s.mu.Unlock()
	return w == nil || w.Contains(t)
}

// Start begins triggering jobs until Stop or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	if s.schedule == nil && s.interval <= 0 {
		return ErrNoSchedule
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	now := time.Now()

	if s.schedule != nil {
		s.cron = cron.New()
		s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.trigger(ctx) }))
		s.cron.Start()
		s.nextRun = s.schedule.Next(now)
		go func() {
			<-ctx.Done()
			close(s.done)
		}()
		s.logger.Infof("scheduler started: cron %q, next run %s", s.cronExpr, s.nextRun.Format(time.RFC3339))
		return nil
	}

	s.nextRun = now.Add(s.interval)
	go s.loop(ctx, s.interval)
	s.logger.Infof("scheduler started: every %s", s.interval)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.nextRun = time.Now().Add(every)
			s.mu.Unlock()
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	if s.schedule != nil {
		s.nextRun = s.schedule.Next(now)
	}
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	if !s.IsInWindow(now) {
		s.logger.Debugf("trigger at %s skipped: outside window", now.Format(time.Kitchen))
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := job(ctx); err != nil {
			s.logger.Errorf("scheduled job failed: %v", err)
		}
	}
}

// Stop halts triggering and waits for the in-flight trigger to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	cancel, done, c := s.cancel, s.done, s.cron
	s.cron = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	<-done
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns when the next trigger fires, or zero when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}
