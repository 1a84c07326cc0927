package proxy

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/loykin/dozer/internal/config"
	"github.com/loykin/dozer/internal/manager"
	"github.com/loykin/dozer/internal/proto"
	"github.com/loykin/dozer/internal/serverfiles"
)

func (p *Proxy) serveLogin(ctx context.Context, conn net.Conn, br *bufio.Reader, hs proto.Packet, log *slog.Logger) {
	if p.cfg.Lockout.Enabled {
		log.Info("kicked client, server is locked out")
		kick(conn, p.cfg.Lockout.Message)
		return
	}

	start, err := readPacket(conn, br)
	if err != nil {
		log.Debug("failed to read login start", "error", err)
		return
	}
	replay := append(append([]byte{}, hs.Raw...), start.Raw...)
	name, err := proto.DecodeLoginStart(start)
	if err != nil {
		log.Debug("invalid login start", "error", err)
	} else {
		log = log.With("username", name)
	}

	// A running server enforces its own bans and whitelist.
	if p.ms.State() == manager.StateStarted {
		p.ms.UpdateLastActive()
		p.relayToServer(ctx, conn, br, replay, log)
		return
	}
	if p.cfg.Server.BlockBannedIPs {
		if ban, banned := p.bannedIP(conn); banned {
			log.Info("kicked banned client", "reason", ban.Reason)
			kick(conn, banMessage(ban))
			return
		}
	}
	if p.cfg.Server.WakeWhitelist && p.access != nil && !p.access.Whitelisted(name) {
		log.Info("kicked client not on the whitelist")
		kick(conn, notWhitelistedMessage)
		return
	}

	p.ms.UpdateLastActive()
	if p.ms.State() == manager.StateStarted {
		p.relayToServer(ctx, conn, br, replay, log)
		return
	}

	if woke, err := p.ms.Wake(ctx); err != nil {
		log.Error("failed to wake server for client", "error", err)
	} else if woke {
		log.Info("client connected, starting server")
	}

	for _, method := range p.cfg.Join.Methods {
		switch method {
		case config.JoinHold:
			if p.hold(ctx) {
				p.relayToServer(ctx, conn, br, replay, log)
				return
			}
		case config.JoinKick:
			kick(conn, p.kickMessage())
			return
		case config.JoinForward:
			fw := p.cfg.Join.Forward
			if err := p.relay(ctx, conn, br, replay, fw.Address, fw.SendProxyV2); err != nil {
				log.Warn("failed to forward client", "address", fw.Address, "error", err)
			}
			return
		default:
			log.Debug("join method not supported", "method", method)
		}
	}
	kick(conn, p.kickMessage())
}

func (p *Proxy) relayToServer(ctx context.Context, conn net.Conn, br *bufio.Reader, replay []byte, log *slog.Logger) {
	if err := p.relay(ctx, conn, br, replay, p.cfg.Server.Address, p.cfg.Server.SendProxyV2); err != nil {
		log.Warn("failed to relay client to server", "error", err)
	}
}

// hold waits until the server is started. It gives up on timeout or once
// the server heads back to sleep.
func (p *Proxy) hold(ctx context.Context) bool {
	ch, cancel := p.ms.Subscribe()
	defer cancel()
	t := time.NewTimer(p.cfg.Join.Hold.Timeout)
	defer t.Stop()
	for {
		switch p.ms.State() {
		case manager.StateStarted:
			return true
		case manager.StateStopping, manager.StateStopped:
			return false
		}
		select {
		case <-ch:
		case <-t.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (p *Proxy) kickMessage() string {
	if p.ms.State() == manager.StateStopping {
		return p.cfg.Join.Kick.Stopping
	}
	return p.cfg.Join.Kick.Starting
}

const notWhitelistedMessage = "You are not white-listed on this server!"

func banMessage(b serverfiles.Ban) string {
	if b.Reason == "" {
		return "You are banned from this server!"
	}
	return "You are banned from this server!\nReason: " + b.Reason
}

func kick(conn net.Conn, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(HandshakeTimeout))
	_, _ = conn.Write(proto.EncodeLoginDisconnect(message))
}
