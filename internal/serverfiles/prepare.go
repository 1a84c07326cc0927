package serverfiles

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"

	"github.com/loykin/dozer/internal/config"
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Prepare brings server.properties in line with cfg before the server starts
// and returns the RCON password the server will accept. Without a
// server.properties file nothing is written and the configured password is
// returned.
func Prepare(cfg *config.Config, log *slog.Logger) (string, error) {
	password := cfg.RCON.Password
	if !cfg.Advanced.RewriteServerProperties {
		return password, nil
	}
	if cfg.RandomRCONPassword() {
		p, err := RandomPassword(32)
		if err != nil {
			return "", err
		}
		password = p
	}

	host, port, err := net.SplitHostPort(cfg.Server.Address)
	if err != nil {
		return "", fmt.Errorf("server.address: %w", err)
	}
	values := map[string]string{
		"server-ip":     host,
		"server-port":   port,
		"enable-status": "true",
		"query.port":    port,
	}
	if cfg.RCON.Enabled {
		values["enable-rcon"] = "true"
		values["rcon.port"] = strconv.Itoa(cfg.RCON.Port)
		values["rcon.password"] = password
	}

	path := filepath.Join(cfg.ServerDirectory(), PropertiesFile)
	changed, err := RewriteProperties(path, values)
	if errors.Is(err, fs.ErrNotExist) {
		if log != nil {
			log.Warn("server.properties not found, not rewriting it", "path", path)
		}
		return cfg.RCON.Password, nil
	}
	if err != nil {
		return "", err
	}
	if changed && log != nil {
		log.Info("updated server.properties", "path", path)
	}
	return password, nil
}

// RandomPassword returns n random alphanumeric characters.
func RandomPassword(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	for i, b := range buf {
		buf[i] = passwordAlphabet[int(b)%len(passwordAlphabet)]
	}
	return string(buf), nil
}
