package proto

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// maxStringLen bounds decoded strings; status JSON with a favicon stays well below it.
const maxStringLen = 1 << 20

// Encoder builds a packet body.
type Encoder struct {
	buf []byte
}

func (e *Encoder) VarInt(v int32) *Encoder {
	e.buf = AppendVarInt(e.buf, v)
	return e
}

func (e *Encoder) String(s string) *Encoder {
	e.buf = AppendVarInt(e.buf, int32(len(s)))
	e.buf = append(e.buf, s...)
	return e
}

func (e *Encoder) UShort(v uint16) *Encoder {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
	return e
}

func (e *Encoder) Long(v int64) *Encoder {
	e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(v))
	return e
}

func (e *Encoder) Bytes() []byte { return e.buf }

// Decoder reads fields sequentially from a packet body.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) VarInt() (int32, error) {
	v, n, err := DecodeVarInt(d.buf[d.off:])
	if err != nil {
		return 0, err
	}
	d.off += n
	return v, nil
}

func (d *Decoder) String() (string, error) {
	n, err := d.VarInt()
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxStringLen {
		return "", fmt.Errorf("invalid string length %d", n)
	}
	if d.off+int(n) > len(d.buf) {
		return "", ErrShortBuffer
	}
	s := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	if !utf8.Valid(s) {
		return "", fmt.Errorf("string is not valid utf-8")
	}
	return string(s), nil
}

func (d *Decoder) UShort() (uint16, error) {
	if d.off+2 > len(d.buf) {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *Decoder) Long() (int64, error) {
	if d.off+8 > len(d.buf) {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return int64(v), nil
}

// Remaining reports the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }
