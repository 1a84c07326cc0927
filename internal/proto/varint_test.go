package proto

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := map[int32][]byte{
		0:          {0x00},
		1:          {0x01},
		127:        {0x7f},
		128:        {0x80, 0x01},
		255:        {0xff, 0x01},
		25565:      {0xdd, 0xc7, 0x01},
		2147483647: {0xff, 0xff, 0xff, 0xff, 0x07},
		-1:         {0xff, 0xff, 0xff, 0xff, 0x0f},
	}
	for v, want := range cases {
		got := AppendVarInt(nil, v)
		require.Equal(t, want, got, "encode %d", v)
		require.Equal(t, len(want), VarIntSize(v))

		dec, n, err := DecodeVarInt(got)
		require.NoError(t, err)
		require.Equal(t, v, dec)
		require.Equal(t, len(want), n)

		r, err := ReadVarInt(bytes.NewReader(got))
		require.NoError(t, err)
		require.Equal(t, v, r)
	}
}

func TestVarIntTooBig(t *testing.T) {
	_, _, err := DecodeVarInt([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01})
	require.ErrorIs(t, err, ErrVarIntTooBig)

	_, _, err = DecodeVarInt([]byte{0x80})
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestReadPacketSkipsMalformed(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00}) // zero length frame
	buf.Write(EncodePong(42))

	r := bufio.NewReader(&buf)
	_, err := ReadPacket(r)
	require.ErrorIs(t, err, ErrMalformed)

	pkt, err := ReadPacket(r)
	require.NoError(t, err)
	require.Equal(t, PongID, pkt.ID)
	tok, err := DecodeLong(pkt.Data)
	require.NoError(t, err)
	require.Equal(t, int64(42), tok)
	require.Equal(t, EncodePong(42), pkt.Raw)
}
