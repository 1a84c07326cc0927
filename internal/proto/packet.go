package proto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// MaxPacketLen is the largest frame accepted from a peer.
const MaxPacketLen = 2 << 20

// ErrMalformed marks a frame that was fully consumed from the stream but whose
// contents could not be parsed. Readers may skip such frames and continue.
var ErrMalformed = errors.New("malformed packet")

// Packet is a single length-prefixed frame.
type Packet struct {
	ID   int32
	Data []byte
	// Raw holds the complete frame as read from the wire, length prefix included.
	Raw []byte
}

// EncodePacket frames body with the given packet id.
func EncodePacket(id int32, body []byte) []byte {
	n := VarIntSize(id) + len(body)
	out := make([]byte, 0, VarIntSize(int32(n))+n)
	out = AppendVarInt(out, int32(n))
	out = AppendVarInt(out, id)
	return append(out, body...)
}

// WritePacket frames body and writes it to w in a single call.
func WritePacket(w io.Writer, id int32, body []byte) error {
	_, err := w.Write(EncodePacket(id, body))
	return err
}

// ReadPacket reads one frame from r. I/O errors are returned as-is; a frame
// that was read completely but is invalid yields an error wrapping ErrMalformed.
func ReadPacket(r *bufio.Reader) (Packet, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		if errors.Is(err, ErrVarIntTooBig) {
			return Packet{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Packet{}, err
	}
	if length <= 0 {
		return Packet{}, fmt.Errorf("%w: invalid length %d", ErrMalformed, length)
	}
	if length > MaxPacketLen {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return Packet{}, err
		}
		return Packet{}, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrMalformed, length)
	}

	raw := AppendVarInt(make([]byte, 0, VarIntSize(length)+int(length)), length)
	prefix := len(raw)
	raw = append(raw, make([]byte, length)...)
	if _, err := io.ReadFull(r, raw[prefix:]); err != nil {
		return Packet{}, err
	}

	id, n, err := DecodeVarInt(raw[prefix:])
	if err != nil {
		return Packet{}, fmt.Errorf("%w: packet id: %v", ErrMalformed, err)
	}
	return Packet{ID: id, Data: raw[prefix+n:], Raw: raw}, nil
}
