// Package config loads dozer's configuration from a TOML file, DOZER_
// environment variables and command line overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/loykin/dozer/internal/logger"
	"github.com/loykin/dozer/internal/process"
)

// DefaultFile is the configuration file used when none is given.
const DefaultFile = "dozer.toml"

// Version is the configuration layout version written by Generate.
const Version = "1"

type JoinMethod string

const (
	JoinHold    JoinMethod = "hold"
	JoinKick    JoinMethod = "kick"
	JoinForward JoinMethod = "forward"
	JoinLobby   JoinMethod = "lobby"
)

// Config is the validated, read-only configuration.
type Config struct {
	Public   PublicConfig   `mapstructure:"public"`
	Server   ServerConfig   `mapstructure:"server"`
	Time     TimeConfig     `mapstructure:"time"`
	Motd     MotdConfig     `mapstructure:"motd"`
	Join     JoinConfig     `mapstructure:"join"`
	Lockout  LockoutConfig  `mapstructure:"lockout"`
	RCON     RCONConfig     `mapstructure:"rcon"`
	Advanced AdvancedConfig `mapstructure:"advanced"`
	Log      logger.Config  `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	API      APIConfig      `mapstructure:"api"`
	History  HistoryConfig  `mapstructure:"history"`
	Config   VersionConfig  `mapstructure:"config"`

	// Path is the file the configuration was read from; empty when it came
	// from the environment only.
	Path string `mapstructure:"-"`
}

type PublicConfig struct {
	Address  string `mapstructure:"address"`
	Version  string `mapstructure:"version"`
	Protocol int32  `mapstructure:"protocol"`
}

type ServerConfig struct {
	Directory     string        `mapstructure:"directory"`
	Command       string        `mapstructure:"command"`
	Address       string        `mapstructure:"address"`
	FreezeProcess bool          `mapstructure:"freeze_process"`
	WakeOnStart   bool          `mapstructure:"wake_on_start"`
	WakeOnCrash   bool          `mapstructure:"wake_on_crash"`
	StartTimeout  time.Duration `mapstructure:"start_timeout"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`
	SendProxyV2   bool          `mapstructure:"send_proxy_v2"`
	Env           []string      `mapstructure:"env"`
	EnvFiles      []string      `mapstructure:"env_files"`
	// WakeWhitelist only lets players on whitelist.json wake the server
	// while the server has white-list enabled.
	WakeWhitelist bool `mapstructure:"wake_whitelist"`
	// BlockBannedIPs refuses logins from addresses in banned-ips.json;
	// DropBannedIPs closes their connections without a reply.
	BlockBannedIPs bool `mapstructure:"block_banned_ips"`
	DropBannedIPs  bool `mapstructure:"drop_banned_ips"`
}

type TimeConfig struct {
	SleepAfter    time.Duration `mapstructure:"sleep_after"`
	MinOnlineTime time.Duration `mapstructure:"min_online_time"`
}

type MotdConfig struct {
	Sleeping   string `mapstructure:"sleeping"`
	Starting   string `mapstructure:"starting"`
	Stopping   string `mapstructure:"stopping"`
	FromServer bool   `mapstructure:"from_server"`
}

type JoinConfig struct {
	Methods []JoinMethod      `mapstructure:"methods"`
	Kick    JoinKickConfig    `mapstructure:"kick"`
	Hold    JoinHoldConfig    `mapstructure:"hold"`
	Forward JoinForwardConfig `mapstructure:"forward"`
}

type JoinKickConfig struct {
	Starting string `mapstructure:"starting"`
	Stopping string `mapstructure:"stopping"`
}

type JoinHoldConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type JoinForwardConfig struct {
	Address     string `mapstructure:"address"`
	SendProxyV2 bool   `mapstructure:"send_proxy_v2"`
}

type LockoutConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Message string `mapstructure:"message"`
}

type RCONConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port"`
	Password    string `mapstructure:"password"`
	SendProxyV2 bool   `mapstructure:"send_proxy_v2"`
	// RandomizePassword writes a fresh password to server.properties on
	// every start; it needs advanced.rewrite_server_properties.
	RandomizePassword bool `mapstructure:"randomize_password"`
}

type AdvancedConfig struct {
	// RewriteServerProperties keeps server.properties in line with
	// server.address and the rcon section before each start.
	RewriteServerProperties bool `mapstructure:"rewrite_server_properties"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type APIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Listen   string        `mapstructure:"listen"`
	BasePath string        `mapstructure:"base_path"`
	Auth     APIAuthConfig `mapstructure:"auth"`
	TLS      APITLSConfig  `mapstructure:"tls"`
}

// APITLSConfig serves the admin API over HTTPS. Explicit cert_file and
// key_file win over dir; with auto_generate a self-signed pair is written
// to dir on first start.
type APITLSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	Dir          string   `mapstructure:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	DNSNames     []string `mapstructure:"dns_names"`
	MinVersion   string   `mapstructure:"min_version"`
}

// APIAuthConfig protects the admin API with one bcrypt-hashed account.
// Clients send basic credentials or a bearer token obtained from {base}/login.
type APIAuthConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type HistoryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Sinks   []string `mapstructure:"sinks"`
}

type VersionConfig struct {
	Version string `mapstructure:"version"`
}

// ServerDirectory returns the server working directory, resolved relative to
// the directory of the configuration file when known.
func (c *Config) ServerDirectory() string {
	dir := c.Server.Directory
	if dir == "" {
		dir = "."
	}
	if filepath.IsAbs(dir) || c.Path == "" {
		return dir
	}
	return filepath.Join(filepath.Dir(c.Path), dir)
}

// RCONAddress is the server host combined with the RCON port.
func (c *Config) RCONAddress() string {
	host, _, err := net.SplitHostPort(c.Server.Address)
	if err != nil {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.RCON.Port))
}

// RandomRCONPassword reports whether a fresh RCON password is generated for
// every start.
func (c *Config) RandomRCONPassword() bool {
	return c.RCON.Enabled && c.RCON.RandomizePassword && c.Advanced.RewriteServerProperties
}

// VersionWarning describes a configuration written for another layout
// version, or returns "" when the version matches.
func (c *Config) VersionWarning() string {
	switch c.Config.Version {
	case Version:
		return ""
	case "":
		return "config version unknown, it may be outdated"
	default:
		return fmt.Sprintf("config version %q differs from %q, you may need to update it", c.Config.Version, Version)
	}
}

// ProcessSpec returns the launch description of the managed server.
func (c *Config) ProcessSpec(stdout, stderr io.Writer) (process.Spec, error) {
	env, err := c.ServerEnv()
	if err != nil {
		return process.Spec{}, err
	}
	return process.Spec{
		Name:    "server",
		Command: c.Server.Command,
		WorkDir: c.ServerDirectory(),
		Env:     env,
		Stdout:  stdout,
		Stderr:  stderr,
	}, nil
}

// ServerEnv merges server.env_files in order, then server.env entries on top.
// ${VAR} references are expanded against earlier entries and the OS
// environment.
func (c *Config) ServerEnv() ([]string, error) {
	m := make(map[string]string)
	var order []string
	set := func(k, v string) {
		if _, ok := m[k]; !ok {
			order = append(order, k)
		}
		m[k] = v
	}
	lookup := func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return os.Getenv(k)
	}
	for _, p := range c.Server.EnvFiles {
		if !filepath.IsAbs(p) && c.Path != "" {
			p = filepath.Join(filepath.Dir(c.Path), p)
		}
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("server.env_files: %w", err)
		}
		for _, kv := range pairs {
			set(kv[0], os.Expand(kv[1], lookup))
		}
	}
	for _, kv := range c.Server.Env {
		k, v, ok := cutPair(kv)
		if !ok {
			return nil, fmt.Errorf("server.env: entry %q is not KEY=VALUE", kv)
		}
		set(k, os.Expand(v, lookup))
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// ErrNoConfig is returned when neither a file nor DOZER_ variables exist.
var ErrNoConfig = errors.New("no configuration found")
