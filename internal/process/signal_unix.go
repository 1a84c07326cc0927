//go:build !windows

package process

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var platformCapabilities = Capabilities{GracefulStop: true, Freeze: true}

// sendSignal delivers sig with kill(2); negative pids address a process group.
func sendSignal(pid int, sig Signal) error {
	var s unix.Signal
	switch sig {
	case SignalTerminate:
		s = unix.SIGTERM
	case SignalKill:
		s = unix.SIGKILL
	case SignalStop:
		s = unix.SIGSTOP
	case SignalContinue:
		s = unix.SIGCONT
	default:
		return fmt.Errorf("unknown signal %v", sig)
	}
	return unix.Kill(pid, s)
}

// processExists reports whether pid refers to a live process.
func processExists(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
