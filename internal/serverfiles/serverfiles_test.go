package serverfiles

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/dozer/internal/config"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRewritePropertiesKeepsLayout(t *testing.T) {
	path := writeFile(t, t.TempDir(), PropertiesFile, `#Minecraft server properties
#Mon Jan 01 00:00:00 UTC 2026
motd=A Minecraft Server
server-port=25565

white-list=false
`)
	changed, err := RewriteProperties(path, map[string]string{
		"server-port":   "25566",
		"motd":          "A Minecraft Server",
		"rcon.password": "p=a:s\\s",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `#Minecraft server properties
#Mon Jan 01 00:00:00 UTC 2026
motd=A Minecraft Server
server-port=25566

white-list=false
rcon.password=p\=a\:s\\s
`, readFile(t, path))

	props, err := ReadProperties(path)
	require.NoError(t, err)
	assert.Equal(t, "p=a:s\\s", props["rcon.password"])
	assert.Equal(t, "25566", props["server-port"])
}

func TestRewritePropertiesUnchanged(t *testing.T) {
	path := writeFile(t, t.TempDir(), PropertiesFile, "server-port=25566\n")
	before, err := os.Stat(path)
	require.NoError(t, err)

	changed, err := RewriteProperties(path, map[string]string{"server-port": "25566"})
	require.NoError(t, err)
	assert.False(t, changed)
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestRewritePropertiesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), PropertiesFile)
	_, err := RewriteProperties(path, map[string]string{"server-port": "1"})
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, path)
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, PropertiesFile, "server-ip=\nserver-port=25565\nenable-rcon=false\n")
	cfg := &config.Config{
		Server:   config.ServerConfig{Directory: dir, Address: "127.0.0.1:25566"},
		RCON:     config.RCONConfig{Enabled: true, Port: 25575, Password: "configured", RandomizePassword: true},
		Advanced: config.AdvancedConfig{RewriteServerProperties: true},
	}

	first, err := Prepare(cfg, quiet())
	require.NoError(t, err)
	assert.Len(t, first, 32)
	assert.NotEqual(t, "configured", first)

	props, err := ReadProperties(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"server-ip":     "127.0.0.1",
		"server-port":   "25566",
		"enable-status": "true",
		"query.port":    "25566",
		"enable-rcon":   "true",
		"rcon.port":     "25575",
		"rcon.password": first,
	}, props)

	second, err := Prepare(cfg, quiet())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	cfg.RCON.RandomizePassword = false
	pw, err := Prepare(cfg, quiet())
	require.NoError(t, err)
	assert.Equal(t, "configured", pw)
	props, err = ReadProperties(path)
	require.NoError(t, err)
	assert.Equal(t, "configured", props["rcon.password"])
}

func TestPrepareDisabled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, PropertiesFile, "server-port=25565\n")
	cfg := &config.Config{
		Server: config.ServerConfig{Directory: dir, Address: "127.0.0.1:25566"},
		RCON:   config.RCONConfig{Enabled: true, Password: "configured", RandomizePassword: true},
	}
	pw, err := Prepare(cfg, quiet())
	require.NoError(t, err)
	assert.Equal(t, "configured", pw)
	assert.Equal(t, "server-port=25565\n", readFile(t, path))
}

func TestPrepareWithoutPropertiesFile(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{Directory: t.TempDir(), Address: "127.0.0.1:25566"},
		RCON:     config.RCONConfig{Enabled: true, Password: "configured", RandomizePassword: true},
		Advanced: config.AdvancedConfig{RewriteServerProperties: true},
	}
	pw, err := Prepare(cfg, quiet())
	require.NoError(t, err)
	assert.Equal(t, "configured", pw)
}

func TestBanActive(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, Ban{Expires: "forever"}.Active(now))
	assert.True(t, Ban{}.Active(now))
	assert.True(t, Ban{Expires: "2026-07-01 00:00:00 +0000"}.Active(now))
	assert.False(t, Ban{Expires: "2026-05-01 00:00:00 +0000"}.Active(now))
	assert.True(t, Ban{Expires: "someday"}.Active(now))
}

func TestReloadAccessLists(t *testing.T) {
	dir := t.TempDir()
	f := New(dir, quiet())
	f.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, f.Reload())
	assert.True(t, f.Whitelisted("anyone"))
	_, banned := f.BannedIP("10.0.0.1")
	assert.False(t, banned)

	writeFile(t, dir, PropertiesFile, "white-list=true\n")
	writeFile(t, dir, WhitelistFile, `[{"uuid":"069a79f4-44e9-4726-a5be-fca90e38aaf5","name":"Notch"}]`)
	writeFile(t, dir, BannedIPsFile, `[
  {"ip":"10.0.0.1","created":"2026-01-01 00:00:00 +0000","source":"Server","expires":"forever","reason":"griefing"},
  {"ip":"10.0.0.2","created":"2026-01-01 00:00:00 +0000","source":"Server","expires":"2026-02-01 00:00:00 +0000","reason":"old"}
]`)
	require.NoError(t, f.Reload())

	assert.True(t, f.Whitelisted("notch"))
	assert.False(t, f.Whitelisted("Steve"))
	ban, banned := f.BannedIP("10.0.0.1")
	require.True(t, banned)
	assert.Equal(t, "griefing", ban.Reason)
	_, banned = f.BannedIP("10.0.0.2")
	assert.False(t, banned)

	writeFile(t, dir, BannedIPsFile, "not json")
	require.Error(t, f.Reload())
	_, banned = f.BannedIP("10.0.0.1")
	assert.True(t, banned)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	f := New(dir, quiet())
	require.NoError(t, f.Reload())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, BannedIPsFile), []byte(`[{"ip":"10.0.0.9","expires":"forever","reason":"spam"}]`), 0o644)
		_, banned := f.BannedIP("10.0.0.9")
		return banned
	}, 5*time.Second, 2*reloadDebounce)
}
