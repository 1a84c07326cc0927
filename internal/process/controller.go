package process

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/loykin/dozer/internal/metrics"
)

// Signal is a process-control action independent of the platform.
type Signal int

const (
	SignalTerminate Signal = iota
	SignalKill
	SignalStop
	SignalContinue
)

func (s Signal) String() string {
	switch s {
	case SignalTerminate:
		return "SIGTERM"
	case SignalKill:
		return "SIGKILL"
	case SignalStop:
		return "SIGSTOP"
	case SignalContinue:
		return "SIGCONT"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// ErrUnsupported is returned for actions the platform cannot perform.
var ErrUnsupported = errors.New("operation not supported on this platform")

// Capabilities reports which optional actions a Controller supports.
// Force kill is always available.
type Capabilities struct {
	GracefulStop bool `json:"graceful_stop"`
	Freeze       bool `json:"freeze"`
}

// Controller sends lifecycle actions to the managed process.
type Controller interface {
	Capabilities() Capabilities
	GracefulStop(pid int) error
	ForceKill(pid int) error
	Freeze(pid int) error
	Unfreeze(pid int) error
}

// SignalError is returned when a signal reached neither the process group nor
// the process itself.
type SignalError struct {
	PID      int
	Signal   Signal
	GroupErr error
	Err      error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("send %s to pid %d: group: %v; process: %v", e.Signal, e.PID, e.GroupErr, e.Err)
}

func (e *SignalError) Unwrap() []error { return []error{e.GroupErr, e.Err} }

// sendFunc delivers sig to pid; negative pids address a process group.
type sendFunc func(pid int, sig Signal) error

type signaller struct {
	log  *slog.Logger
	caps Capabilities
	send sendFunc
}

// NewController returns the Controller for the current platform.
func NewController(log *slog.Logger) Controller {
	return newSignaller(log, platformCapabilities, sendSignal)
}

func newSignaller(log *slog.Logger, caps Capabilities, send sendFunc) *signaller {
	if log == nil {
		log = slog.Default()
	}
	return &signaller{log: log.With("component", "process"), caps: caps, send: send}
}

func (s *signaller) Capabilities() Capabilities { return s.caps }

func (s *signaller) GracefulStop(pid int) error {
	if !s.caps.GracefulStop {
		return ErrUnsupported
	}
	return s.deliver(pid, SignalTerminate)
}

func (s *signaller) ForceKill(pid int) error { return s.deliver(pid, SignalKill) }

func (s *signaller) Freeze(pid int) error {
	if !s.caps.Freeze {
		return ErrUnsupported
	}
	return s.deliver(pid, SignalStop)
}

func (s *signaller) Unfreeze(pid int) error {
	if !s.caps.Freeze {
		return ErrUnsupported
	}
	return s.deliver(pid, SignalContinue)
}

// deliver signals the process group first and falls back to the process on
// any group failure.
func (s *signaller) deliver(pid int, sig Signal) error {
	if pid <= 0 {
		return fmt.Errorf("send %s: invalid pid %d", sig, pid)
	}
	groupErr := s.send(-pid, sig)
	if groupErr == nil {
		s.log.Debug("signal delivered to process group", "pid", pid, "signal", sig.String())
		return nil
	}
	err := s.send(pid, sig)
	if err == nil {
		s.log.Debug("signal delivered to process", "pid", pid, "signal", sig.String(), "group_error", groupErr)
		return nil
	}
	serr := &SignalError{PID: pid, Signal: sig, GroupErr: groupErr, Err: err}
	s.log.Warn("failed to send signal", "pid", pid, "signal", sig.String(), "error", serr)
	metrics.IncSignalFailure(sig.String())
	return serr
}
