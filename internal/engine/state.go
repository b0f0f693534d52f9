package engine

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"slices"
	"strings"
)

// MaxCast is the number of rendering slots.
const MaxCast = 25

type Color string

const DefaultColor Color = "#0e72ed"

// Palette holds the named themes offered to the host. Any other #rrggbb is a custom theme.
var Palette = map[string]Color{
	"black":  "#131619",
	"blue":   "#0e72ed",
	"green":  "#4b9d64",
	"red":    "#e8173d",
	"yellow": "#ffbf39",
}

// ParseColor accepts a palette name or a #rrggbb hex value and returns the
// normalized (lowercase hex) color.
func ParseColor(s string) (Color, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if c, ok := Palette[v]; ok {
		return c, nil
	}
	if len(v) != 7 || v[0] != '#' {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if _, err := hex.DecodeString(v[1:]); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color(v), nil
}

// Name returns the palette name for c, or "" for a custom color.
func (c Color) Name() string {
	for name, pc := range Palette {
		if pc == c {
			return name
		}
	}
	return ""
}

// RGBA decodes c; an unparsable color falls back to DefaultColor.
func (c Color) RGBA() color.RGBA {
	parsed, err := ParseColor(string(c))
	if err != nil {
		parsed = DefaultColor
	}
	b, _ := hex.DecodeString(string(parsed[1:]))
	return color.RGBA{R: b[0], G: b[1], B: b[2], A: 0xff}
}

// State is the canonical session state owned by the host and mirrored by
// everyone else. Treat it as a value: mutations go through Apply or Merge,
// which hand back a copy with its own Cast slice.
type State struct {
	SessionID string
	Color     Color
	Cast      []string
	Epoch     int64 // host instance that authored this state; 0 until one claims it
	Version   int
}

func (s State) Stamp() Stamp { return Stamp{Epoch: s.Epoch, Version: s.Version} }

// Stamp orders states authored by the host. Epoch is the start time of the
// host instance, Version counts its accepted changes. A later instance wins
// whatever its counter, so a restarted host is not held back by the old one.
type Stamp struct {
	Epoch   int64
	Version int
}

func (s Stamp) IsZero() bool { return s == Stamp{} }

// Before reports whether s is older than o.
func (s Stamp) Before(o Stamp) bool {
	if s.Epoch != o.Epoch {
		return s.Epoch < o.Epoch
	}
	return s.Version < o.Version
}

func (s Stamp) String() string {
	if s.Epoch == 0 {
		return fmt.Sprintf("v%d", s.Version)
	}
	return fmt.Sprintf("v%d@%d", s.Version, s.Epoch)
}

func NewEmptyState(sessionID string) State {
	return State{
		SessionID: sessionID,
		Color:     DefaultColor,
		Cast:      []string{},
	}
}

func (s State) Clone() State {
	out := s
	out.Cast = slices.Clone(s.Cast)
	if out.Cast == nil {
		out.Cast = []string{}
	}
	return out
}

// ParticipantAt returns the participant shown in slot, or "" when the slot is empty.
func (s State) ParticipantAt(slot int) string {
	if slot < 0 || slot >= len(s.Cast) {
		return ""
	}
	return s.Cast[slot]
}

// SlotOf returns the slot a participant occupies, or -1.
func (s State) SlotOf(id string) int {
	return slices.Index(s.Cast, id)
}

// NormalizeCast drops empty and duplicate ids and caps the list at MaxCast.
func NormalizeCast(ids []string) []string {
	out := make([]string, 0, min(len(ids), MaxCast))
	for _, id := range ids {
		if len(out) == MaxCast {
			break
		}
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
