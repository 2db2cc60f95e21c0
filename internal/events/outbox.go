package events

import (
	"sync"
	"time"
)

// Outbox buffers events until Flush delivers them to subscribed observers.
type Outbox struct {
	mu        sync.Mutex
	pending   []Event
	observers []Observer
	now       func() time.Time
	flushing  bool
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{now: time.Now}
}

// Subscribe registers an observer for all future flushes.
func (o *Outbox) Subscribe(obs Observer) {
	if obs == nil {
		return
	}
	o.mu.Lock()
	o.observers = append(o.observers, obs)
	o.mu.Unlock()
}

// Publish queues an event. A zero Time is stamped with the current time.
func (o *Outbox) Publish(e Event) {
	o.mu.Lock()
	if e.Time.IsZero() {
		e.Time = o.now()
	}
	o.pending = append(o.pending, e)
	o.mu.Unlock()
}

// Pending returns the number of queued events.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Flush delivers queued events in publish order and returns how many were
// delivered. Events published while a flush is running are delivered by the
// same flush, after the ones already queued. A nested Flush call is a no-op.
func (o *Outbox) Flush() int {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return 0
	}
	o.flushing = true
	o.mu.Unlock()

	delivered := 0
	for {
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.flushing = false
			o.mu.Unlock()
			return delivered
		}
		batch := o.pending
		o.pending = nil
		observers := append([]Observer(nil), o.observers...)
		o.mu.Unlock()

		for _, e := range batch {
			for _, obs := range observers {
				obs.Notify(e)
			}
			delivered++
		}
	}
}

// Drain removes and returns queued events without notifying observers.
func (o *Outbox) Drain() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}
