//go:build !windows

package process

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure that when the command string already includes an explicit
// shell invocation (e.g., "sh -c 'echo hi'"), we do not double-wrap
// it with another "/bin/sh -c" layer.
func TestBuildCommand_ExplicitShellNoDoubleWrap(t *testing.T) {
	s := Spec{Command: "sh -c 'echo hi'"}
	cmd, err := s.BuildCommand()
	require.NoError(t, err)
	require.Len(t, cmd.Args, 3)
	assert.Equal(t, "-c", cmd.Args[1])
	assert.Equal(t, "echo hi", cmd.Args[2])
	assert.False(t, strings.HasPrefix(cmd.Args[2], "sh -c "), "command was double-wrapped")
}

func TestBuildCommand_MetacharTriggersShell(t *testing.T) {
	s := Spec{Command: "echo hi | wc -c"}
	cmd, err := s.BuildCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/sh", "-c", "echo hi | wc -c"}, cmd.Args)
}

func TestBuildCommand_WordSplitting(t *testing.T) {
	s := Spec{
		Command: `java -Xmx${HEAP} -jar "server file.jar" --nogui`,
		Env:     []string{"HEAP=2G"},
	}
	cmd, err := s.BuildCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"java", "-Xmx2G", "-jar", "server file.jar", "--nogui"}, cmd.Args)
}

func TestBuildCommand_Empty(t *testing.T) {
	_, err := Spec{Command: "   "}.BuildCommand()
	require.Error(t, err)
}

func TestSpec_Validate(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name      string
		spec      Spec
		expectErr bool
	}{
		{name: "valid spec", spec: Spec{Command: "echo hello", WorkDir: dir}},
		{name: "empty command", spec: Spec{Command: ""}, expectErr: true},
		{name: "missing dir", spec: Spec{Command: "echo", WorkDir: dir + "/missing"}, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
