// Package history exports server lifecycle events to external stores.
package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event is one state transition of the managed server.
type Event struct {
	// Type is the state entered.
	Type          string    `json:"type"`
	From          string    `json:"from"`
	OccurredAt    time.Time `json:"occurred_at"`
	PID           int       `json:"pid"`
	PlayersOnline int       `json:"players_online"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(e Event)
}

const (
	defaultBuffer      = 64
	defaultSendTimeout = 5 * time.Second
)

// Dispatcher fans events out to sinks from a single background goroutine.
// Emit never blocks; events are dropped with a warning when the buffer is full.
type Dispatcher struct {
	log   *slog.Logger
	sinks []Sink
	ch    chan Event
	done  chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewDispatcher starts a dispatcher delivering to sinks.
func NewDispatcher(log *slog.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		log:   log.With("component", "history"),
		sinks: sinks,
		ch:    make(chan Event, defaultBuffer),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- e:
	default:
		d.log.Warn("history buffer full, dropping event", "type", e.Type, "from", e.From)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.ch {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
			if err := s.Send(ctx, e); err != nil {
				d.log.Warn("failed to export history event", "type", e.Type, "error", err)
			}
			cancel()
		}
	}
}

// Close delivers buffered events, then closes every sink that is an io.Closer.
func (d *Dispatcher) Close() error {
	var errs []error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		<-d.done
		for _, s := range d.sinks {
			if c, ok := s.(io.Closer); ok {
				errs = append(errs, c.Close())
			}
		}
	})
	return errors.Join(errs...)
}
