package logging

import "github.com/marcus/idlecrew/internal/events"

// EventLogger records every flushed scheduler notification.
type EventLogger struct {
	l *Logger
}

// NewEventLogger returns an observer that writes events to l.
func NewEventLogger(l *Logger) *EventLogger {
	return &EventLogger{l: l}
}

// Notify implements events.Observer.
func (e *EventLogger) Notify(ev events.Event) {
	zev := e.l.zl.Debug()
	switch ev.Type {
	case events.TaskCompleted, events.TeamTaskStarted, events.TeamTaskCompleted,
		events.CombatStarted, events.CombatEnded, events.TeamCreated, events.TeamDeleted:
		zev = e.l.zl.Info()
	}
	zev.Str("event", ev.Type.String()).
		Int("team", ev.TeamIndex).
		Str("task_id", ev.TaskID).
		Str("state", ev.State).
		Str("reason", ev.Reason).
		Msg(ev.Message)
}
