package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferValue(t *testing.T) {
	assert.Equal(t, true, inferValue("true"))
	assert.Equal(t, false, inferValue("False"))
	assert.Equal(t, int64(42), inferValue("42"))
	assert.Equal(t, int64(-10), inferValue("-10"))
	assert.Equal(t, 3.14, inferValue("3.14"))
	assert.Equal(t, "127.0.0.1:25565", inferValue("127.0.0.1:25565"))
	assert.Equal(t, "java -jar server.jar", inferValue("java -jar server.jar"))
	assert.Equal(t, []any{"hold", "kick"}, inferValue("hold,kick"))
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, inferValue("1,2,3"))
	assert.Equal(t, []any{"kick"}, inferValue("[kick]"))
	assert.Equal(t, []any{"hold", "kick"}, inferValue("[hold, kick]"))
	assert.Equal(t, []any{}, inferValue("[]"))
}

func TestUnescapeBasic(t *testing.T) {
	assert.Equal(t, "a\nb", unescapeBasic(`a\nb`))
	assert.Equal(t, "a\tb\r", unescapeBasic(`a\tb\r`))
	assert.Equal(t, `a\b`, unescapeBasic(`a\\b`))
	assert.Equal(t, `a\qb`, unescapeBasic(`a\qb`))
	assert.Equal(t, `trailing\`, unescapeBasic(`trailing\`))
}

func TestEnvOverridesKeys(t *testing.T) {
	got := envOverrides([]string{
		"DOZER_SERVER__COMMAND=java -jar test.jar",
		"DOZER_JOIN__HOLD__TIMEOUT=30",
		"DOZER_HISTORY__SINKS=sqlite:///tmp/h.db",
		"DOZER_=x",
		"PATH=/usr/bin",
	})
	assert.Equal(t, map[string]any{
		"server.command":    "java -jar test.jar",
		"join.hold.timeout": int64(30),
		"history.sinks":     []any{"sqlite:///tmp/h.db"},
	}, got)
}

func TestServerEnvMerge(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, "server.env")
	t.Setenv("OS_ONLY", "osv")
	require.NoError(t, os.WriteFile(dotenv, []byte("A=1\n#comment\nexport B=\"two\"\nCHAIN=${OS_ONLY}-x\n"), 0o644))

	c := &Config{
		Path: filepath.Join(dir, "dozer.toml"),
		Server: ServerConfig{
			EnvFiles: []string{"server.env"},
			Env:      []string{"B=three", "C=${A}${B}"},
		},
	}
	env, err := c.ServerEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=three", "CHAIN=osv-x", "C=1three"}, env)

	c.Server.Env = []string{"broken"}
	_, err = c.ServerEnv()
	require.Error(t, err)
}
