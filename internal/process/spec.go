package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/shell"
)

// Spec describes how to launch the managed server.
type Spec struct {
	Name    string   // label for logs and log files
	Command string   // command line; see BuildCommand
	WorkDir string   // optional working directory
	Env     []string // extra KEY=VALUE pairs appended to the inherited environment

	Stdout io.Writer // nil discards output
	Stderr io.Writer
}

// Validate checks that the spec can be launched.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("server command is empty")
	}
	if s.WorkDir != "" {
		fi, err := os.Stat(s.WorkDir)
		if err != nil {
			return fmt.Errorf("server directory: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("server directory %q is not a directory", s.WorkDir)
		}
	}
	return nil
}

// shellOperators force the command through a real shell.
const shellOperators = "|&;<>`(){}*?[]~"

// BuildCommand constructs an *exec.Cmd for s.Command.
//
// An explicit "sh -c <script>" prefix is honored without adding another shell
// layer. Commands containing shell operators run through the system shell.
// Anything else is split into words with POSIX shell rules, so quotes and
// $VAR references work without spawning a shell.
func (s Spec) BuildCommand() (*exec.Cmd, error) {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return nil, errors.New("server command is empty")
	}
	if script, ok := parseExplicitShell(cmdStr); ok {
		return shellCommand(script), nil
	}
	if strings.ContainsAny(cmdStr, shellOperators) {
		return shellCommand(cmdStr), nil
	}
	words, err := shell.Fields(cmdStr, s.lookupEnv)
	if err != nil {
		return nil, fmt.Errorf("parse server command: %w", err)
	}
	if len(words) == 0 {
		return nil, errors.New("server command is empty")
	}
	// #nosec G204
	return exec.Command(words[0], words[1:]...), nil
}

// lookupEnv resolves $VAR against the spec's extra environment first.
func (s Spec) lookupEnv(name string) string {
	for i := len(s.Env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(s.Env[i], "="); ok && k == name {
			return v
		}
	}
	return os.Getenv(name)
}

// parseExplicitShell detects "sh -c <script>" style prefixes and returns the
// script with one pair of surrounding quotes removed.
func parseExplicitShell(cmdStr string) (string, bool) {
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		after, ok := strings.CutPrefix(cmdStr, p)
		if !ok {
			continue
		}
		after = strings.TrimSpace(after)
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
