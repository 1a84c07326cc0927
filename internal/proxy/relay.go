package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/loykin/dozer/internal/proto"
)

type closeWriter interface {
	CloseWrite() error
}

// relay connects the client to addr, replays the frames already consumed
// from it and pipes both directions until either side closes.
func (p *Proxy) relay(ctx context.Context, client net.Conn, br *bufio.Reader, replay []byte, addr string, sendProxyV2 bool) error {
	d := net.Dialer{Timeout: DialTimeout}
	upstream, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = upstream.Close() }()

	first := replay
	if sendProxyV2 {
		hdr, err := proto.ProxyHeader(client.RemoteAddr(), client.LocalAddr())
		if err != nil {
			return fmt.Errorf("proxy header: %w", err)
		}
		first = append(hdr, replay...)
	}
	if _, err := upstream.Write(first); err != nil {
		return err
	}
	_ = client.SetReadDeadline(time.Time{})
	_ = client.SetWriteDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
		_ = upstream.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// br still holds anything the client sent after the replayed frames
		_, _ = io.Copy(upstream, br)
		halfClose(upstream)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(client, upstream)
		halfClose(client)
	}()
	wg.Wait()
	return nil
}

func halfClose(c net.Conn) {
	if cw, ok := c.(closeWriter); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = c.Close()
}
