//go:build windows

package process

import (
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

// Windows has no termination or suspend signals for console processes; only
// force kill is available. Graceful stop goes through RCON instead.
var platformCapabilities = Capabilities{}

// sendSignal terminates pid. There are no process groups to signal, so a
// negative pid fails and the caller retries the process directly.
func sendSignal(pid int, sig Signal) error {
	if pid < 0 {
		return ErrUnsupported
	}
	if sig != SignalKill {
		return ErrUnsupported
	}
	handle, err := openProcess(processTerminate, uint32(pid))
	if err != nil {
		return err
	}
	defer closeHandle(handle)

	ret, _, err := procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if ret == 0 {
		return err
	}
	return nil
}

func processExists(pid int) bool {
	handle, err := openProcess(processQueryInformation, uint32(pid))
	if err != nil {
		return false
	}
	closeHandle(handle)
	return true
}

func openProcess(access uint32, pid uint32) (syscall.Handle, error) {
	ret, _, err := procOpenProcess.Call(uintptr(access), 0, uintptr(pid))
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(handle syscall.Handle) {
	_, _, _ = procCloseHandle.Call(uintptr(handle))
}
