package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if m.fail {
		return errors.New("boom")
	}
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	a, b := &memSink{}, &memSink{fail: true}
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), a, b)

	now := time.Now()
	d.Emit(Event{Type: "starting", From: "stopped", OccurredAt: now})
	d.Emit(Event{Type: "started", From: "starting", OccurredAt: now, PID: 42})
	require.NoError(t, d.Close())

	for _, s := range []*memSink{a, b} {
		require.Len(t, s.events, 2)
		assert.Equal(t, "started", s.events[1].Type)
		assert.Equal(t, 42, s.events[1].PID)
		assert.True(t, s.closed)
	}

	// emitting after close is a no-op
	d.Emit(Event{Type: "stopped"})
	require.NoError(t, d.Close())
	assert.Len(t, a.events, 2)
}
