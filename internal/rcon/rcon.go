// Package rcon runs console commands on the managed server over RCON.
package rcon

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorcon/rcon"

	"github.com/loykin/dozer/internal/proto"
)

// DefaultTimeout bounds dialing and each command round trip.
const DefaultTimeout = 5 * time.Second

// Client opens a fresh RCON session per command.
type Client struct {
	Addr        string
	SendProxyV2 bool
	Timeout     time.Duration

	mu       sync.RWMutex
	password string
}

func NewClient(addr, password string, sendProxyV2 bool) *Client {
	return &Client{Addr: addr, password: password, SendProxyV2: sendProxyV2, Timeout: DefaultTimeout}
}

// SetPassword replaces the password used by later commands.
func (c *Client) SetPassword(password string) {
	c.mu.Lock()
	c.password = password
	c.mu.Unlock()
}

func (c *Client) currentPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.password
}

// Command authenticates, runs cmd and returns the server's response body.
func (c *Client) Command(ctx context.Context, cmd string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("rcon dial %s: %w", c.Addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = nc.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if c.SendProxyV2 {
		header, err := proto.LocalProxyHeader()
		if err == nil {
			_, err = nc.Write(header)
		}
		if err != nil {
			_ = nc.Close()
			return "", fmt.Errorf("rcon proxy header: %w", err)
		}
	}

	conn, err := rcon.Open(nc, c.currentPassword(), rcon.SetDeadline(timeout))
	if err != nil {
		_ = nc.Close()
		return "", fmt.Errorf("rcon auth: %w", err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := conn.Execute(cmd)
	if err != nil {
		return "", fmt.Errorf("rcon %q: %w", cmd, err)
	}
	return resp, nil
}

// PlayerCount runs "list" and parses the number of online players.
func (c *Client) PlayerCount(ctx context.Context) (int, error) {
	resp, err := c.Command(ctx, "list")
	if err != nil {
		return 0, err
	}
	n, ok := ParsePlayerCount(resp)
	if !ok {
		return 0, fmt.Errorf("rcon list: no player count in %q", resp)
	}
	return n, nil
}

// ParsePlayerCount returns the first whitespace separated token of a "list"
// response that is an unsigned integer.
func ParsePlayerCount(resp string) (int, bool) {
	for _, tok := range strings.Fields(resp) {
		if n, err := strconv.ParseUint(tok, 10, 32); err == nil {
			return int(n), true
		}
	}
	return 0, false
}
