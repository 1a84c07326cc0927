package proto

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func statusBody(doc string) []byte {
	var e Encoder
	e.String(doc)
	return e.Bytes()
}

func TestDecodeStatusStrict(t *testing.T) {
	doc := `{"version":{"name":"1.20.1","protocol":763},"players":{"online":3,"max":20},"description":"hello","favicon":"data:image/png;base64,AA=="}`
	st, path, err := DecodeStatus(statusBody(doc))
	require.NoError(t, err)
	require.Equal(t, DecodeStrict, path)
	require.Equal(t, "1.20.1", st.Version.Name)
	require.Equal(t, int32(763), st.Version.Protocol)
	require.Equal(t, 3, st.Players.Online)
	require.Equal(t, 20, st.Players.Max)
	require.Equal(t, "hello", st.Description)
	require.Equal(t, "data:image/png;base64,AA==", st.Favicon)
}

func TestDecodeStatusLenientDescriptionObject(t *testing.T) {
	doc := `{"version":{"name":"Forge","protocol":47},"players":{"online":0,"max":10},"description":{"text":"A Minecraft Server"}}`
	st, path, err := DecodeStatus(statusBody(doc))
	require.NoError(t, err)
	require.Equal(t, DecodeLenient, path)
	require.Equal(t, `{"text":"A Minecraft Server"}`, st.Description)
	require.Equal(t, "Forge", st.Version.Name)
	require.Equal(t, int32(47), st.Version.Protocol)
	require.Equal(t, 10, st.Players.Max)
}

func TestDecodeStatusLenientDefaults(t *testing.T) {
	st, path, err := DecodeStatus(statusBody(`{"description":"x"}`))
	require.NoError(t, err)
	require.Equal(t, DecodeLenient, path)
	require.Equal(t, "Unknown", st.Version.Name)
	require.Zero(t, st.Version.Protocol)
	require.Zero(t, st.Players.Online)
	require.Zero(t, st.Players.Max)
}

func TestDecodeStatusRejectsGarbage(t *testing.T) {
	_, _, err := DecodeStatus(statusBody(`not json`))
	require.ErrorIs(t, err, ErrStatusDecode)

	_, _, err = DecodeStatus(statusBody(`[1,2]`))
	require.ErrorIs(t, err, ErrStatusDecode)
}

func TestHandshakeRoundTrip(t *testing.T) {
	hs, err := NewHandshake(763, "127.0.0.1:25566", StateStatus)
	require.NoError(t, err)
	require.Equal(t, uint16(25566), hs.ServerPort)

	pkt, err := ReadPacket(bufio.NewReader(bytes.NewReader(hs.Encode())))
	require.NoError(t, err)
	got, err := DecodeHandshake(pkt)
	require.NoError(t, err)
	require.Equal(t, hs, got)
}

func TestLoginDisconnect(t *testing.T) {
	pkt, err := ReadPacket(bufio.NewReader(bytes.NewReader(EncodeLoginDisconnect("Server is starting"))))
	require.NoError(t, err)
	require.Equal(t, LoginDisconnectID, pkt.ID)
	msg, err := NewDecoder(pkt.Data).String()
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"Server is starting"}`, msg)
}

func TestLoginStartRoundTrip(t *testing.T) {
	pkt, err := ReadPacket(bufio.NewReader(bytes.NewReader(EncodeLoginStart("Notch"))))
	require.NoError(t, err)
	name, err := DecodeLoginStart(pkt)
	require.NoError(t, err)
	require.Equal(t, "Notch", name)

	_, err = DecodeLoginStart(Packet{ID: 0x01})
	require.ErrorIs(t, err, ErrMalformed)

	var e Encoder
	e.String("a_name_that_is_far_too_long")
	_, err = DecodeLoginStart(Packet{ID: LoginStartID, Data: e.Bytes()})
	require.ErrorIs(t, err, ErrMalformed)
}
