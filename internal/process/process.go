package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ErrNotRunning is returned when writing to a process that has exited.
var ErrNotRunning = errors.New("process is not running")

// Process is a launched managed server. It is reaped by a background
// goroutine; Done is closed once the process has exited.
type Process struct {
	pid       int
	startedAt time.Time

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	done    chan struct{}
	exitErr error
}

// Launch starts the command described by spec in its own process group with a
// stdin pipe attached.
func Launch(spec Spec) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cmd, err := spec.BuildCommand()
	if err != nil {
		return nil, err
	}
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	configureSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", spec.Command, err)
	}

	p := &Process{
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		stdin:     stdin,
		done:      make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.stdinMu.Lock()
		p.exitErr = err
		p.stdin = nil
		p.stdinMu.Unlock()
		close(p.done)
	}()
	return p, nil
}

func (p *Process) PID() int { return p.pid }

func (p *Process) StartedAt() time.Time { return p.startedAt }

// Done is closed when the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitErr returns the error from waiting on the process. It is only
// meaningful after Done is closed.
func (p *Process) ExitErr() error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	return p.exitErr
}

// Running reports whether the process has not been reaped yet.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// WriteLine writes line followed by a newline to the process stdin.
func (p *Process) WriteLine(line string) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin == nil {
		return ErrNotRunning
	}
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}
