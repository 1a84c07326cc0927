//go:build windows

package process

import "os/exec"

// shellCommand runs script through cmd.exe.
func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", script)
}
