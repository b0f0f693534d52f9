package engine

import "slices"

type Role string

const (
	RoleHost     Role = "host"
	RoleAttendee Role = "attendee"
)

type Participant struct {
	ID         string `json:"participantId"`
	ScreenName string `json:"screenName"`
	Role       Role   `json:"role"`
}

type ChangeKind string

const (
	ChangeJoin  ChangeKind = "join"
	ChangeLeave ChangeKind = "leave"
)

type RosterChange struct {
	Participant
	Kind ChangeKind
}

// Roster maps participant ids to records, with the pinned entry (the local
// host) always first. Apply returns a new Roster; the receiver is unchanged.
type Roster struct {
	pinned  Participant
	entries []Participant
}

// NewRoster pins self first and appends everyone else from all.
func NewRoster(self Participant, all []Participant) Roster {
	r := Roster{pinned: self}
	for _, p := range all {
		if p.ID == "" || p.ID == self.ID || r.index(p.ID) != -1 {
			continue
		}
		r.entries = append(r.entries, p)
	}
	return r
}

func (r Roster) index(id string) int {
	return slices.IndexFunc(r.entries, func(p Participant) bool { return p.ID == id })
}

// Participants lists the roster, pinned entry first.
func (r Roster) Participants() []Participant {
	out := make([]Participant, 0, len(r.entries)+1)
	if r.pinned.ID != "" {
		out = append(out, r.pinned)
	}
	return append(out, r.entries...)
}

func (r Roster) Lookup(id string) (Participant, bool) {
	if id != "" && id == r.pinned.ID {
		return r.pinned, true
	}
	if i := r.index(id); i != -1 {
		return r.entries[i], true
	}
	return Participant{}, false
}

func (r Roster) ScreenName(id string) string {
	p, _ := r.Lookup(id)
	return p.ScreenName
}

// Apply folds join/leave notifications into a new roster and returns the ids
// that left. The pinned entry never leaves.
func (r Roster) Apply(changes []RosterChange) (Roster, []string) {
	out := Roster{pinned: r.pinned, entries: slices.Clone(r.entries)}
	var left []string

	for _, ch := range changes {
		if ch.ID == "" || ch.ID == out.pinned.ID {
			continue
		}
		i := out.index(ch.ID)
		switch ch.Kind {
		case ChangeLeave:
			if i == -1 {
				continue
			}
			out.entries = slices.Delete(out.entries, i, i+1)
			left = append(left, ch.ID)
		default:
			if i == -1 {
				out.entries = append(out.entries, ch.Participant)
			} else {
				out.entries[i] = ch.Participant
			}
		}
	}
	return out, left
}
