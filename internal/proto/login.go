package proto

import (
	"encoding/json"
	"fmt"
)

// maxUsernameLen is the longest player name a client may send.
const maxUsernameLen = 16

// EncodeLoginDisconnect frames a login-state disconnect carrying message as a
// plain chat component.
func EncodeLoginDisconnect(message string) []byte {
	doc, _ := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: message})
	var e Encoder
	e.String(string(doc))
	return EncodePacket(LoginDisconnectID, e.Bytes())
}

// EncodeLoginStart frames a login start for name followed by a zero UUID,
// the layout sent by current clients.
func EncodeLoginStart(name string) []byte {
	var e Encoder
	e.String(name)
	body := append(e.Bytes(), make([]byte, 16)...)
	return EncodePacket(LoginStartID, body)
}

// DecodeLoginStart returns the player name of a login start packet. Fields
// after the name differ between protocol versions and are ignored.
func DecodeLoginStart(p Packet) (string, error) {
	if p.ID != LoginStartID {
		return "", fmt.Errorf("%w: expected login start, got packet 0x%02x", ErrMalformed, p.ID)
	}
	name, err := NewDecoder(p.Data).String()
	if err != nil {
		return "", fmt.Errorf("%w: login start name: %v", ErrMalformed, err)
	}
	if name == "" || len(name) > maxUsernameLen {
		return "", fmt.Errorf("%w: invalid player name %q", ErrMalformed, name)
	}
	return name, nil
}
