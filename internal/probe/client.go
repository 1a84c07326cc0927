// Package probe talks to the managed server over its own wire protocol to
// learn whether it is up and how many players are online.
//
// Every probe uses a fresh, short-lived TCP connection:
//  1. optional PROXY v2 LOCAL header
//  2. handshake with next-state status
//  3. status request or ping request
//  4. read frames until the matching response arrives or the deadline passes
package probe

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/loykin/dozer/internal/proto"
)

// Default per-operation bounds.
const (
	DefaultStatusTimeout = 20 * time.Second
	DefaultPingTimeout   = 10 * time.Second
	DefaultDialTimeout   = 5 * time.Second
)

// Client probes a single server address.
type Client struct {
	// Addr is the managed server in "host:port" form.
	Addr string
	// Protocol is the protocol version announced in the handshake.
	Protocol int32
	// SendProxyV2 prefixes every connection with a PROXY v2 LOCAL header.
	SendProxyV2 bool

	StatusTimeout time.Duration
	PingTimeout   time.Duration
	DialTimeout   time.Duration

	Logger *slog.Logger
}

// NewClient returns a Client with default timeouts.
func NewClient(addr string, protocol int32, sendProxyV2 bool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Addr:          addr,
		Protocol:      protocol,
		SendProxyV2:   sendProxyV2,
		StatusTimeout: DefaultStatusTimeout,
		PingTimeout:   DefaultPingTimeout,
		DialTimeout:   DefaultDialTimeout,
		Logger:        logger.With("component", "probe"),
	}
}

// FetchStatus requests and decodes the server status.
func (c *Client) FetchStatus(ctx context.Context) (*proto.ServerStatus, error) {
	conn, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write(proto.EncodeStatusRequest()); err != nil {
		return nil, fmt.Errorf("%w: send status request: %v", ErrConnect, err)
	}

	status, err := withDeadline(ctx, conn, valOr(c.StatusTimeout, DefaultStatusTimeout), func(r *bufio.Reader) (*proto.ServerStatus, error) {
		return c.waitForStatus(r)
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Ping sends a ping with a random token and waits for the matching pong.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	token := randomToken()
	if _, err := conn.Write(proto.EncodePing(token)); err != nil {
		return fmt.Errorf("%w: send ping: %v", ErrConnect, err)
	}

	_, err = withDeadline(ctx, conn, valOr(c.PingTimeout, DefaultPingTimeout), func(r *bufio.Reader) (struct{}, error) {
		return struct{}{}, c.waitForPong(r, token)
	})
	return err
}

// open dials the server and sends the optional proxy header and the handshake.
func (c *Client) open(ctx context.Context) (net.Conn, error) {
	hs, err := proto.NewHandshake(c.Protocol, c.Addr, proto.StateStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	d := net.Dialer{Timeout: valOr(c.DialTimeout, DefaultDialTimeout)}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	payload := hs.Encode()
	if c.SendProxyV2 {
		header, err := proto.LocalProxyHeader()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: proxy header: %v", ErrConnect, err)
		}
		c.Logger.Debug("sending local proxy header for server connection")
		payload = append(header, payload...)
	}
	if _, err := conn.Write(payload); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: send handshake: %v", ErrConnect, err)
	}
	return conn, nil
}

func (c *Client) waitForStatus(r *bufio.Reader) (*proto.ServerStatus, error) {
	for {
		pkt, err := proto.ReadPacket(r)
		if err != nil {
			if errors.Is(err, proto.ErrMalformed) {
				continue
			}
			return nil, err
		}
		if pkt.ID != proto.StatusResponseID {
			continue
		}
		status, path, err := proto.DecodeStatus(pkt.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if path == proto.DecodeLenient {
			c.Logger.Debug("used lenient JSON parser for server status")
		}
		return &status, nil
	}
}

func (c *Client) waitForPong(r *bufio.Reader, token int64) error {
	for {
		pkt, err := proto.ReadPacket(r)
		if err != nil {
			if errors.Is(err, proto.ErrMalformed) {
				continue
			}
			return err
		}
		if pkt.ID != proto.PongID {
			continue
		}
		got, err := proto.DecodeLong(pkt.Data)
		if err != nil {
			return fmt.Errorf("%w: pong: %v", ErrProtocol, err)
		}
		if got == token {
			return nil
		}
		c.Logger.Debug("got unmatched ping response when polling server", "want", token, "got", got)
	}
}

// withDeadline runs read against conn with a deadline of timeout, or the
// context deadline if earlier. Context cancellation expires the deadline so a
// blocked read returns promptly. The caller closes conn on every path.
func withDeadline[T any](ctx context.Context, conn net.Conn, timeout time.Duration, read func(*bufio.Reader) (T, error)) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	v, err := read(bufio.NewReader(conn))
	if err == nil {
		return v, nil
	}
	var ne net.Error
	switch {
	case errors.Is(err, ErrDecode), errors.Is(err, ErrProtocol):
		return zero, err
	case errors.As(err, &ne) && ne.Timeout():
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	default:
		return zero, fmt.Errorf("%w: stream closed before response: %v", ErrProtocol, err)
	}
}

func randomToken() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.BigEndian.Uint64(b[:]))
}

func valOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Poll fetches the status and, when that fails and pingFallback is set, falls
// back to a plain ping. pingOnly reports that the server answered the ping but
// produced no status; err is the status error in that case.
func (c *Client) Poll(ctx context.Context, pingFallback bool) (status *proto.ServerStatus, pingOnly bool, err error) {
	status, err = c.FetchStatus(ctx)
	if err == nil {
		return status, false, nil
	}
	if !pingFallback {
		return nil, false, err
	}
	if perr := c.Ping(ctx); perr != nil {
		return nil, false, errors.Join(err, perr)
	}
	return nil, true, err
}
