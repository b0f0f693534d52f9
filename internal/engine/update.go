package engine

import (
	"fmt"
	"slices"
)

// Update is an inbound state message from either transport. A nil Color or
// nil Cast means the sender did not include that field.
type Update struct {
	SessionID string
	Color     *Color
	Cast      []string
	Epoch     int64
	Version   int
}

func (u Update) Stamp() Stamp { return Stamp{Epoch: u.Epoch, Version: u.Version} }

// UpdateFrom builds the full update a host broadcasts for s.
func UpdateFrom(s State) Update {
	c := s.Color
	return Update{
		SessionID: s.SessionID,
		Color:     &c,
		Cast:      slices.Clone(s.Cast),
		Epoch:     s.Epoch,
		Version:   s.Version,
	}
}

type Changes struct {
	Color bool
	Cast  bool
}

func (c Changes) Any() bool { return c.Color || c.Cast }

// Diff reports which fields of u differ from cur. Colors are compared after
// parsing, and one that does not parse counts as absent, matching Merge.
// Cast is compared by content.
func Diff(cur State, u Update) Changes {
	var ch Changes
	if u.Color != nil {
		if c, err := ParseColor(string(*u.Color)); err == nil && c != cur.Color {
			ch.Color = true
		}
	}
	if u.Cast != nil && !slices.Equal(NormalizeCast(u.Cast), cur.Cast) {
		ch.Cast = true
	}
	return ch
}

type Action int

const (
	ActionNone Action = iota
	ActionFull
	ActionPartial
)

func (a Action) String() string {
	switch a {
	case ActionFull:
		return "full"
	case ActionPartial:
		return "partial"
	default:
		return "none"
	}
}

// Plan picks the redraw for a diff. A cast-only change can be patched slot by
// slot when tiles are already on screen; anything touching color repaints all.
func Plan(ch Changes, tilesDrawn bool) Action {
	switch {
	case ch.Color:
		return ActionFull
	case ch.Cast && !tilesDrawn:
		return ActionFull
	case ch.Cast:
		return ActionPartial
	default:
		return ActionNone
	}
}

// Check rejects updates for another session and updates older than what s
// already reflects. A zero stamp marks an unversioned sender and is always
// accepted.
func Check(s State, u Update) error {
	if u.SessionID != "" && s.SessionID != "" && u.SessionID != s.SessionID {
		return fmt.Errorf("%w: have %q, got %q", ErrSessionMismatch, s.SessionID, u.SessionID)
	}
	if st := u.Stamp(); !st.IsZero() && st.Before(s.Stamp()) {
		return fmt.Errorf("%w: have %s, got %s", ErrStaleUpdate, s.Stamp(), st)
	}
	return nil
}

// Merge replaces every field u carries. Invalid colors are ignored. A stamped
// update replaces the stamp as a whole, so a new host instance restarts the
// counter.
func Merge(s State, u Update) State {
	out := s.Clone()
	if u.SessionID != "" {
		out.SessionID = u.SessionID
	}
	if u.Color != nil {
		if c, err := ParseColor(string(*u.Color)); err == nil {
			out.Color = c
		}
	}
	if u.Cast != nil {
		out.Cast = NormalizeCast(u.Cast)
	}
	if st := u.Stamp(); !st.IsZero() {
		out.Epoch, out.Version = st.Epoch, st.Version
	}
	return out
}
