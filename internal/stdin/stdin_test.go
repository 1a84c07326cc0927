package stdin

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/dozer/internal/manager"
)

type consoleChild struct {
	mu    sync.Mutex
	lines []string
}

func (c *consoleChild) PID() int              { return 1 }
func (c *consoleChild) Done() <-chan struct{} { return nil }
func (c *consoleChild) ExitErr() error        { return nil }
func (c *consoleChild) WriteLine(line string) error {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
	return nil
}

type source struct {
	mu    sync.Mutex
	child manager.Child
}

func (s *source) Child() manager.Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.child
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestForwardsLinesToRunningServer(t *testing.T) {
	child := &consoleChild{}
	src := &source{child: child}
	svc := New(strings.NewReader("say hi\nlist\n"), src, quiet())

	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, []string{"say hi", "list"}, child.lines)
}

func TestDropsLinesWithoutServer(t *testing.T) {
	svc := New(strings.NewReader("op me\n"), &source{}, quiet())
	require.NoError(t, svc.Run(context.Background()))
}

func TestRunReturnsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	svc := New(pr, &source{}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
