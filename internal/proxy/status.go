package proxy

import (
	"encoding/json"

	"github.com/loykin/dozer/internal/manager"
	"github.com/loykin/dozer/internal/proto"
)

type chatText struct {
	Text string `json:"text"`
}

type statusDocument struct {
	Version     proto.Version `json:"version"`
	Players     proto.Players `json:"players"`
	Description chatText      `json:"description"`
	Favicon     string        `json:"favicon,omitempty"`
}

// buildStatus builds the status answered while the server is not up.
// Version, player limit and favicon come from the last status the server
// reported, falling back to the configured public version.
func (p *Proxy) buildStatus() ([]byte, error) {
	doc := statusDocument{
		Version:     proto.Version{Name: p.cfg.Public.Version, Protocol: p.cfg.Public.Protocol},
		Description: chatText{Text: p.motd()},
	}
	if known := p.ms.LastKnownStatus(); known != nil {
		doc.Version = known.Version
		doc.Players.Max = known.Players.Max
		doc.Favicon = known.Favicon
		if p.cfg.Motd.FromServer && known.Description != "" {
			doc.Description.Text = known.Description
		}
	}
	return json.Marshal(doc)
}

func (p *Proxy) motd() string {
	switch p.ms.State() {
	case manager.StateStarting:
		return p.cfg.Motd.Starting
	case manager.StateStopping:
		return p.cfg.Motd.Stopping
	default:
		return p.cfg.Motd.Sleeping
	}
}
