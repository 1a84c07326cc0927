package proto

import (
	"errors"
	"io"
)

var (
	// ErrVarIntTooBig is returned when a VarInt spans more than five bytes.
	ErrVarIntTooBig = errors.New("varint too big")
	// ErrShortBuffer is returned when a field runs past the end of its packet.
	ErrShortBuffer = errors.New("short buffer")
)

const maxVarIntLen = 5

// AppendVarInt appends v in the protocol's VarInt encoding.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for {
		if u&^0x7f == 0 {
			return append(b, byte(u))
		}
		b = append(b, byte(u&0x7f)|0x80)
		u >>= 7
	}
}

// VarIntSize returns the encoded length of v.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// ReadVarInt reads a VarInt from r.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var result uint32
	for i := 0; i < maxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, ErrVarIntTooBig
}

// DecodeVarInt decodes a VarInt from the start of b and returns the value and
// the number of bytes consumed.
func DecodeVarInt(b []byte) (int32, int, error) {
	var result uint32
	for i := 0; i < maxVarIntLen; i++ {
		if i >= len(b) {
			return 0, 0, ErrShortBuffer
		}
		result |= uint32(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return int32(result), i + 1, nil
		}
	}
	return 0, 0, ErrVarIntTooBig
}
