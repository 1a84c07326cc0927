package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ServerStatus is the decoded status response of a server.
type ServerStatus struct {
	Version     Version `json:"version"`
	Players     Players `json:"players"`
	Description string  `json:"description"`
	Favicon     string  `json:"favicon,omitempty"`
}

type Version struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type Players struct {
	Online int            `json:"online"`
	Max    int            `json:"max"`
	Sample []PlayerSample `json:"sample,omitempty"`
}

type PlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// DecodePath tells which decoder accepted a status payload.
type DecodePath string

const (
	DecodeStrict  DecodePath = "strict"
	DecodeLenient DecodePath = "lenient"
)

// ErrStatusDecode is returned when neither the strict nor the lenient decoder
// accepts a status payload.
var ErrStatusDecode = errors.New("status response could not be decoded")

// EncodeStatusRequest returns the framed, empty status request.
func EncodeStatusRequest() []byte { return EncodePacket(StatusRequestID, nil) }

// EncodeStatusResponse frames a status JSON document.
func EncodeStatusResponse(doc []byte) []byte {
	var e Encoder
	e.String(string(doc))
	return EncodePacket(StatusResponseID, e.Bytes())
}

// EncodePing frames a ping carrying token.
func EncodePing(token int64) []byte {
	var e Encoder
	e.Long(token)
	return EncodePacket(PingID, e.Bytes())
}

// EncodePong frames a pong echoing token.
func EncodePong(token int64) []byte {
	var e Encoder
	e.Long(token)
	return EncodePacket(PongID, e.Bytes())
}

// DecodeLong reads the 8 byte token of a ping or pong body.
func DecodeLong(data []byte) (int64, error) {
	return NewDecoder(data).Long()
}

// DecodeStatus decodes a status response body. The strict decoder runs first;
// when it rejects the payload the lenient decoder re-parses the same JSON.
func DecodeStatus(data []byte) (ServerStatus, DecodePath, error) {
	doc, err := NewDecoder(data).String()
	if err != nil {
		return ServerStatus{}, "", fmt.Errorf("%w: %v", ErrStatusDecode, err)
	}
	if st, err := decodeStrict([]byte(doc)); err == nil {
		return st, DecodeStrict, nil
	}
	st, err := decodeLenient([]byte(doc))
	if err != nil {
		return ServerStatus{}, "", fmt.Errorf("%w: %v", ErrStatusDecode, err)
	}
	return st, DecodeLenient, nil
}

type strictStatus struct {
	Version *struct {
		Name     *string `json:"name"`
		Protocol *int32  `json:"protocol"`
	} `json:"version"`
	Players *struct {
		Online *int           `json:"online"`
		Max    *int           `json:"max"`
		Sample []PlayerSample `json:"sample"`
	} `json:"players"`
	Description *string `json:"description"`
	Favicon     *string `json:"favicon"`
}

func decodeStrict(doc []byte) (ServerStatus, error) {
	var s strictStatus
	if err := json.Unmarshal(doc, &s); err != nil {
		return ServerStatus{}, err
	}
	switch {
	case s.Version == nil || s.Version.Name == nil || s.Version.Protocol == nil:
		return ServerStatus{}, errors.New("missing version")
	case s.Players == nil || s.Players.Online == nil || s.Players.Max == nil:
		return ServerStatus{}, errors.New("missing players")
	case s.Description == nil:
		return ServerStatus{}, errors.New("missing description")
	}
	st := ServerStatus{
		Version:     Version{Name: *s.Version.Name, Protocol: *s.Version.Protocol},
		Players:     Players{Online: *s.Players.Online, Max: *s.Players.Max, Sample: s.Players.Sample},
		Description: *s.Description,
	}
	if s.Favicon != nil {
		st.Favicon = *s.Favicon
	}
	return st, nil
}

// decodeLenient accepts status documents produced by modded servers: the
// description may be a chat component object, and missing version or player
// fields fall back to defaults.
func decodeLenient(doc []byte) (ServerStatus, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return ServerStatus{}, err
	}
	if root == nil {
		return ServerStatus{}, errors.New("status document is not an object")
	}

	version, _ := root["version"].(map[string]any)
	players, _ := root["players"].(map[string]any)

	st := ServerStatus{
		Version: Version{
			Name:     stringOr(version["name"], "Unknown"),
			Protocol: int32(uintOr(version["protocol"])),
		},
		Players: Players{
			Online: int(uintOr(players["online"])),
			Max:    int(uintOr(players["max"])),
		},
	}

	if raw, ok := root["description"]; ok {
		if s, ok := raw.(string); ok {
			st.Description = s
		} else if b, err := json.Marshal(raw); err == nil {
			st.Description = string(b)
		}
	}
	if fav, ok := root["favicon"].(string); ok {
		st.Favicon = fav
	}
	return st, nil
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// uintOr returns v as a non-negative integer, or 0.
func uintOr(v any) uint32 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	i, err := n.Int64()
	if err != nil || i < 0 || i > int64(^uint32(0)) {
		return 0
	}
	return uint32(i)
}
