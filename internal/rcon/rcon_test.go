package rcon

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlayerCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"There are 3 of a max of 20 players online: a, b, c", 3, true},
		{"There are 0 of a max 20 players online:", 0, true},
		{"players: 7/20", 0, false},
		{"  12 players", 12, true},
		{"There are -1 of 20", 20, true},
		{"", 0, false},
	}
	for _, tt := range tests {
		n, ok := ParsePlayerCount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, n, tt.in)
	}
}

const (
	typeResponseValue = 0
	typeExecCommand   = 2
	typeAuthResponse  = 2
	typeAuth          = 3
)

func writePacket(w io.Writer, id, typ int32, body string) error {
	buf := make([]byte, 4, 14+len(body))
	binary.LittleEndian.PutUint32(buf, uint32(10+len(body)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(typ))
	buf = append(buf, body...)
	buf = append(buf, 0, 0)
	_, err := w.Write(buf)
	return err
}

func readPacket(r io.Reader) (id, typ int32, body string, err error) {
	var size int32
	if err = binary.Read(r, binary.LittleEndian, &size); err != nil {
		return
	}
	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return
	}
	id = int32(binary.LittleEndian.Uint32(buf[0:4]))
	typ = int32(binary.LittleEndian.Uint32(buf[4:8]))
	body = string(buf[8 : len(buf)-2])
	return
}

// fakeRCON answers auth with password and every command via reply.
func fakeRCON(t *testing.T, password string, reply func(cmd string) string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer func() { _ = c.Close() }()
				r := bufio.NewReader(c)
				for {
					id, typ, body, err := readPacket(r)
					if err != nil {
						return
					}
					switch typ {
					case typeAuth:
						if body != password {
							id = -1
						}
						_ = writePacket(c, id, typeAuthResponse, "")
					case typeExecCommand:
						_ = writePacket(c, id, typeResponseValue, reply(body))
					}
				}
			}(c)
		}
	}()
	return ln.Addr().String()
}

func TestPlayerCountOverRCON(t *testing.T) {
	addr := fakeRCON(t, "secret", func(cmd string) string {
		if cmd == "list" {
			return "There are 2 of a max of 20 players online: alice, bob"
		}
		return "Unknown command"
	})
	c := NewClient(addr, "secret", false)
	c.Timeout = 2 * time.Second

	n, err := c.PlayerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resp, err := c.Command(context.Background(), "stop")
	require.NoError(t, err)
	assert.Equal(t, "Unknown command", resp)
}

func TestWrongPassword(t *testing.T) {
	addr := fakeRCON(t, "secret", func(string) string { return "" })
	c := NewClient(addr, "wrong", false)
	c.Timeout = 2 * time.Second
	_, err := c.Command(context.Background(), "list")
	require.Error(t, err)
}

func TestSetPassword(t *testing.T) {
	addr := fakeRCON(t, "rotated", func(string) string { return "ok" })
	c := NewClient(addr, "old", false)
	c.Timeout = 2 * time.Second
	_, err := c.Command(context.Background(), "list")
	require.Error(t, err)

	c.SetPassword("rotated")
	resp, err := c.Command(context.Background(), "list")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = NewClient(addr, "", false).Command(context.Background(), "list")
	require.Error(t, err)
}
