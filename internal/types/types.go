package types

import (
	"slices"

	"github.com/DoyleJ11/tilecast/internal/engine"
)

const (
	TypeJoin   = "join"
	TypeUpdate = "update"
	TypeError  = "error"
)

// UpdatePayload is the relay's JSON form of an engine.Update. Participants
// is never omitted: null means "not included", [] means "empty cast".
type UpdatePayload struct {
	SessionID    string        `json:"sessionId"`
	Color        *engine.Color `json:"color,omitempty"`
	Participants []string      `json:"participants"`
	Epoch        int64         `json:"epoch,omitempty"`
	Version      int           `json:"version,omitempty"`
}

func FromEngine(u engine.Update) UpdatePayload {
	return UpdatePayload{
		SessionID:    u.SessionID,
		Color:        u.Color,
		Participants: slices.Clone(u.Cast),
		Epoch:        u.Epoch,
		Version:      u.Version,
	}
}

func (p UpdatePayload) ToEngine() engine.Update {
	return engine.Update{
		SessionID: p.SessionID,
		Color:     p.Color,
		Cast:      slices.Clone(p.Participants),
		Epoch:     p.Epoch,
		Version:   p.Version,
	}
}

type ClientMessage struct {
	Type string `json:"type"` // "join" | "update"
	UpdatePayload
}

type ServerMessage struct {
	Type string `json:"type"` // "update" | "error"
	UpdatePayload
	Error string `json:"error,omitempty"`
}
