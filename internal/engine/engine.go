package engine

import (
	"errors"
	"slices"
)

var ErrNotHost = errors.New("only the host can do that")
var ErrNotInMeeting = errors.New("immersive mode can only be started from a meeting")
var ErrInvalidColor = errors.New("invalid color")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrStaleUpdate = errors.New("stale update")
var ErrSessionMismatch = errors.New("update is for another session")

type CommandType string

const (
	CmdSetColor CommandType = "SetColor"
	CmdSetCast  CommandType = "SetCast"
	CmdEvict    CommandType = "Evict"
)

/*
	CmdSetColor -> EvtColorChanged        (host only)
	CmdSetCast  -> EvtCastChanged         (host only)
	CmdEvict    -> EvtParticipantEvicted  (any party, from its own roster observation)

	A command that leaves the state as it was emits nothing and keeps the version.
*/

type Command struct {
	Type          CommandType
	Issuer        Role
	Color         Color
	Cast          []string
	ParticipantID string
}

type EventType string

const (
	EvtColorChanged       EventType = "ColorChanged"
	EvtCastChanged        EventType = "CastChanged"
	EvtParticipantEvicted EventType = "ParticipantEvicted"
)

type Event struct {
	Type          EventType
	Slot          int
	ParticipantID string
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s.Clone()

	switch cmd.Type {
	case CmdSetColor:
		if cmd.Issuer != RoleHost {
			return nil, s, ErrNotHost
		}
		c, err := ParseColor(string(cmd.Color))
		if err != nil {
			return nil, s, err
		}
		if c == s.Color {
			return nil, s, nil
		}
		newState.Color = c
		newState.Version++
		return []Event{{Type: EvtColorChanged}}, newState, nil

	case CmdSetCast:
		if cmd.Issuer != RoleHost {
			return nil, s, ErrNotHost
		}
		cast := NormalizeCast(cmd.Cast)
		if slices.Equal(cast, s.Cast) {
			return nil, s, nil
		}
		newState.Cast = cast
		newState.Version++
		return []Event{{Type: EvtCastChanged}}, newState, nil

	case CmdEvict:
		slot := s.SlotOf(cmd.ParticipantID)
		if slot == -1 {
			return nil, s, nil
		}
		newState.Cast = slices.Delete(newState.Cast, slot, slot+1)
		// Only the host's copy is canonical; a viewer evicting locally keeps
		// the version so the host's next update still applies.
		if cmd.Issuer == RoleHost {
			newState.Version++
		}
		return []Event{{Type: EvtParticipantEvicted, Slot: slot, ParticipantID: cmd.ParticipantID}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
