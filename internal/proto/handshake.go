package proto

import (
	"fmt"
	"net"
	"strconv"
)

// Connection states selected by the handshake.
const (
	StateStatus   int32 = 1
	StateLogin    int32 = 2
	StateTransfer int32 = 3
)

// Packet ids used by the status and login flows.
const (
	HandshakeID       int32 = 0x00
	StatusRequestID   int32 = 0x00
	StatusResponseID  int32 = 0x00
	PingID            int32 = 0x01
	PongID            int32 = 0x01
	LoginDisconnectID int32 = 0x00
	LoginStartID      int32 = 0x00
)

// Handshake is the first serverbound frame of every connection.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

// NewHandshake builds a handshake targeting addr ("host:port").
func NewHandshake(protocol int32, addr string, next int32) (Handshake, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Handshake{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Handshake{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return Handshake{ProtocolVersion: protocol, ServerAddress: host, ServerPort: uint16(port), NextState: next}, nil
}

func (h Handshake) Encode() []byte {
	var e Encoder
	e.VarInt(h.ProtocolVersion).String(h.ServerAddress).UShort(h.ServerPort).VarInt(h.NextState)
	return EncodePacket(HandshakeID, e.Bytes())
}

// DecodeHandshake parses a handshake packet body.
func DecodeHandshake(p Packet) (Handshake, error) {
	if p.ID != HandshakeID {
		return Handshake{}, fmt.Errorf("%w: expected handshake, got packet 0x%02x", ErrMalformed, p.ID)
	}
	d := NewDecoder(p.Data)
	var (
		h   Handshake
		err error
	)
	if h.ProtocolVersion, err = d.VarInt(); err != nil {
		return Handshake{}, fmt.Errorf("%w: protocol version: %v", ErrMalformed, err)
	}
	if h.ServerAddress, err = d.String(); err != nil {
		return Handshake{}, fmt.Errorf("%w: server address: %v", ErrMalformed, err)
	}
	if h.ServerPort, err = d.UShort(); err != nil {
		return Handshake{}, fmt.Errorf("%w: server port: %v", ErrMalformed, err)
	}
	if h.NextState, err = d.VarInt(); err != nil {
		return Handshake{}, fmt.Errorf("%w: next state: %v", ErrMalformed, err)
	}
	return h, nil
}
