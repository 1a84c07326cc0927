// Package proxy is the public listener. It answers status pings while the
// server sleeps, wakes it on login and relays clients once it is up.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/loykin/dozer/internal/config"
	"github.com/loykin/dozer/internal/manager"
	"github.com/loykin/dozer/internal/proto"
	"github.com/loykin/dozer/internal/serverfiles"
)

const (
	// HandshakeTimeout bounds each read before a connection is relayed.
	HandshakeTimeout = 5 * time.Second
	DialTimeout      = 5 * time.Second
)

// AccessList answers ban and whitelist lookups for clients of a sleeping
// server.
type AccessList interface {
	BannedIP(ip string) (serverfiles.Ban, bool)
	Whitelisted(name string) bool
}

type Proxy struct {
	cfg    *config.Config
	ms     *manager.ManagedServer
	log    *slog.Logger
	access AccessList

	wg sync.WaitGroup
}

type Option func(*Proxy)

// WithAccessList enables the ban and whitelist checks of the server section.
func WithAccessList(a AccessList) Option {
	return func(p *Proxy) { p.access = a }
}

func New(cfg *config.Config, ms *manager.ManagedServer, log *slog.Logger, opts ...Option) *Proxy {
	if log == nil {
		log = slog.Default()
	}
	p := &Proxy{cfg: cfg, ms: ms, log: log.With("component", "proxy")}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ListenAndServe listens on public.address and serves until ctx is cancelled.
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", p.cfg.Public.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", p.cfg.Public.Address, err)
	}
	return p.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then waits for
// open connections to finish.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	p.log.Info("proxy listening", "address", ln.Addr().String())
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer p.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			p.log.Warn("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handle(ctx, conn)
		}()
	}
}

func (p *Proxy) handle(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	log := p.log.With("client", conn.RemoteAddr().String())
	if p.cfg.Server.DropBannedIPs {
		if _, banned := p.bannedIP(conn); banned {
			log.Info("dropped connection from banned IP")
			return
		}
	}

	br := bufio.NewReader(conn)
	pkt, err := readPacket(conn, br)
	if err != nil {
		log.Debug("failed to read handshake", "error", err)
		return
	}
	hs, err := proto.DecodeHandshake(pkt)
	if err != nil {
		log.Debug("invalid handshake", "error", err)
		return
	}

	switch hs.NextState {
	case proto.StateStatus:
		p.serveStatus(ctx, conn, br, pkt, log)
	case proto.StateLogin, proto.StateTransfer:
		p.serveLogin(ctx, conn, br, pkt, log)
	default:
		log.Debug("unknown handshake state", "state", hs.NextState)
	}
}

// bannedIP looks up the client address in the access list.
func (p *Proxy) bannedIP(conn net.Conn) (serverfiles.Ban, bool) {
	if p.access == nil {
		return serverfiles.Ban{}, false
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return serverfiles.Ban{}, false
	}
	return p.access.BannedIP(host)
}

func readPacket(conn net.Conn, br *bufio.Reader) (proto.Packet, error) {
	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	return proto.ReadPacket(br)
}

func (p *Proxy) serveStatus(ctx context.Context, conn net.Conn, br *bufio.Reader, hs proto.Packet, log *slog.Logger) {
	if p.ms.State() == manager.StateStarted {
		if err := p.relay(ctx, conn, br, hs.Raw, p.cfg.Server.Address, p.cfg.Server.SendProxyV2); err != nil {
			log.Debug("status relay failed", "error", err)
		}
		return
	}

	for {
		pkt, err := readPacket(conn, br)
		if err != nil {
			if !errors.Is(err, proto.ErrMalformed) {
				return
			}
			continue
		}
		switch pkt.ID {
		case proto.StatusRequestID:
			doc, err := p.buildStatus()
			if err != nil {
				log.Warn("failed to build status response", "error", err)
				return
			}
			if _, err := conn.Write(proto.EncodeStatusResponse(doc)); err != nil {
				return
			}
		case proto.PingID:
			token, err := proto.DecodeLong(pkt.Data)
			if err != nil {
				return
			}
			_, _ = conn.Write(proto.EncodePong(token))
			return
		}
	}
}
