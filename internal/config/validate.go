package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/loykin/dozer/internal/logger"
)

// Validate checks the configuration and returns every problem found, each
// with a hint on how to fix it.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Command == "" {
		add("server.command is required\nhint: set it in %s or with %sSERVER__COMMAND", DefaultFile, EnvPrefix)
	}
	checkAddr := func(key, addr string) {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			add("%s %q is not a host:port address: %v", key, addr, err)
		}
	}
	checkAddr("public.address", c.Public.Address)
	checkAddr("server.address", c.Server.Address)
	if c.Public.Address == c.Server.Address {
		add("public.address and server.address are both %q\nhint: the server must listen on another port than dozer", c.Public.Address)
	}

	if c.Server.StartTimeout <= 0 {
		add("server.start_timeout must be positive")
	}
	if c.Server.StopTimeout <= 0 {
		add("server.stop_timeout must be positive")
	}
	if c.Time.SleepAfter < 0 {
		add("time.sleep_after must not be negative")
	}
	if c.Time.MinOnlineTime < 0 {
		add("time.min_online_time must not be negative")
	}

	if len(c.Join.Methods) == 0 {
		add("join.methods is empty\nhint: use at least one of hold, kick, forward")
	}
	for _, m := range c.Join.Methods {
		switch m {
		case JoinHold:
			if c.Join.Hold.Timeout <= 0 {
				add("join.hold.timeout must be positive when the hold method is used")
			}
		case JoinKick:
		case JoinForward:
			checkAddr("join.forward.address", c.Join.Forward.Address)
		case JoinLobby:
			add("join method %q is not supported\nhint: use hold, kick or forward", m)
		default:
			add("unknown join method %q\nhint: use hold, kick or forward", m)
		}
	}

	if c.RCON.Enabled && (c.RCON.Port <= 0 || c.RCON.Port > 65535) {
		add("rcon.port %d is out of range", c.RCON.Port)
	}
	if c.RCON.Enabled && c.RCON.Password == "" && !c.RandomRCONPassword() {
		add("rcon.password is empty\nhint: set a password or enable rcon.randomize_password with advanced.rewrite_server_properties")
	}

	switch c.Log.Slog.Format {
	case logger.FormatText, logger.FormatJSON:
	default:
		add("log.format %q is invalid\nhint: use text or json", c.Log.Slog.Format)
	}
	switch c.Log.Slog.Level {
	case logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError:
	default:
		add("log.level %q is invalid\nhint: use debug, info, warn or error", c.Log.Slog.Level)
	}

	if c.Metrics.Enabled {
		checkAddr("metrics.listen", c.Metrics.Listen)
	}
	if c.API.Enabled {
		checkAddr("api.listen", c.API.Listen)
	}
	if a := c.API.Auth; a.Enabled {
		if a.Username == "" {
			add("api.auth.username is required when api.auth is enabled")
		}
		if !strings.HasPrefix(a.PasswordHash, "$2") {
			add("api.auth.password_hash is not a bcrypt hash\nhint: create one with `dozer auth hash-password`")
		}
		if a.TokenTTL <= 0 {
			add("api.auth.token_ttl must be positive")
		}
	}
	if t := c.API.TLS; t.Enabled {
		if (t.CertFile == "") != (t.KeyFile == "") {
			add("api.tls.cert_file and api.tls.key_file must be set together")
		}
		if t.CertFile == "" && t.Dir == "" {
			add("api.tls is enabled without certificates\nhint: set cert_file and key_file, or dir with auto_generate = true")
		}
		switch t.MinVersion {
		case "", "1.2", "1.3":
		default:
			add("api.tls.min_version %q is invalid\nhint: use 1.2 or 1.3", t.MinVersion)
		}
	}
	if c.History.Enabled && len(c.History.Sinks) == 0 {
		add("history.enabled is set but history.sinks is empty\nhint: add a sqlite://, postgres://, clickhouse:// or opensearch:// DSN")
	}
	return errors.Join(errs...)
}
