//go:build !windows

package process

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process %d did not exit", p.PID())
	}
}

func TestLaunchWriteLine(t *testing.T) {
	out := &syncBuffer{}
	p, err := Launch(Spec{Name: "echo", Command: `sh -c 'read line; echo "got:$line"'`, Stdout: out})
	require.NoError(t, err)
	require.True(t, p.Running())
	assert.WithinDuration(t, time.Now(), p.StartedAt(), 5*time.Second)

	require.NoError(t, p.WriteLine("list"))
	waitDone(t, p)

	assert.NoError(t, p.ExitErr())
	assert.Equal(t, "got:list\n", out.String())
	assert.ErrorIs(t, p.WriteLine("late"), ErrNotRunning)
	assert.False(t, p.Running())
}

func TestControllerSignalsRealProcess(t *testing.T) {
	p, err := Launch(Spec{Name: "sleeper", Command: "sleep 30"})
	require.NoError(t, err)
	c := NewController(testLogger())
	require.True(t, c.Capabilities().Freeze)

	require.NoError(t, c.Freeze(p.PID()))
	require.NoError(t, c.Unfreeze(p.PID()))
	require.True(t, processExists(p.PID()))

	require.NoError(t, c.GracefulStop(p.PID()))
	waitDone(t, p)
	assert.Error(t, p.ExitErr())
}

func TestLaunchFailsForMissingBinary(t *testing.T) {
	_, err := Launch(Spec{Command: "/nonexistent/dozer-test-binary"})
	require.Error(t, err)
}
