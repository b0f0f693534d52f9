// Package registry tracks what the layout has put on the platform surface so
// every pass can remove exactly what the previous one placed.
package registry

import (
	"context"
	"maps"
	"slices"

	"github.com/DoyleJ11/tilecast/internal/platform"
	"go.uber.org/multierr"
)

// Entry is what one slot currently shows. Either id may be empty when only
// half of the tile made it onto the surface.
type Entry struct {
	ImageID       string
	ParticipantID string
}

func (e Entry) empty() bool { return e.ImageID == "" && e.ParticipantID == "" }

// Registry is not safe for concurrent use; the layout's relayout guard owns it.
type Registry struct {
	slots map[int]Entry
}

func New() *Registry {
	return &Registry{slots: make(map[int]Entry)}
}

func (r *Registry) RecordImage(slot int, imageID string) {
	e := r.slots[slot]
	e.ImageID = imageID
	r.slots[slot] = e
}

func (r *Registry) RecordVideo(slot int, participantID string) {
	e := r.slots[slot]
	e.ParticipantID = participantID
	r.slots[slot] = e
}

func (r *Registry) At(slot int) (Entry, bool) {
	e, ok := r.slots[slot]
	return e, ok
}

// Slots returns the occupied slot indexes in ascending order.
func (r *Registry) Slots() []int {
	return slices.Sorted(maps.Keys(r.slots))
}

func (r *Registry) Images() []string {
	var out []string
	for _, s := range r.Slots() {
		if id := r.slots[s].ImageID; id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) Videos() []string {
	var out []string
	for _, s := range r.Slots() {
		if id := r.slots[s].ParticipantID; id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.slots) }

// SlotOf returns the slot showing participantID, or -1.
func (r *Registry) SlotOf(participantID string) int {
	for _, s := range r.Slots() {
		if r.slots[s].ParticipantID == participantID {
			return s
		}
	}
	return -1
}

// ClearSlot removes one slot's video and patch. The ids are forgotten even if
// the platform rejects the removal; the combined error is returned for logging.
func (r *Registry) ClearSlot(ctx context.Context, p platform.Platform, slot int) error {
	e, ok := r.slots[slot]
	if !ok {
		return nil
	}
	delete(r.slots, slot)

	var err error
	if e.ParticipantID != "" {
		err = multierr.Append(err, p.RemoveVideo(ctx, e.ParticipantID))
	}
	if e.ImageID != "" {
		err = multierr.Append(err, p.RemoveImage(ctx, e.ImageID))
	}
	return err
}

// ClearParticipant tears down whichever slot shows participantID.
func (r *Registry) ClearParticipant(ctx context.Context, p platform.Platform, participantID string) (slot int, err error) {
	slot = r.SlotOf(participantID)
	if slot == -1 {
		return -1, nil
	}
	return slot, r.ClearSlot(ctx, p, slot)
}

// ClearAll removes every video first, then every patch, highest slot first.
// The registry is empty afterwards regardless of platform failures.
func (r *Registry) ClearAll(ctx context.Context, p platform.Platform) error {
	slots := r.Slots()
	slices.Reverse(slots)

	var err error
	for _, s := range slots {
		if id := r.slots[s].ParticipantID; id != "" {
			err = multierr.Append(err, p.RemoveVideo(ctx, id))
		}
	}
	for _, s := range slots {
		if id := r.slots[s].ImageID; id != "" {
			err = multierr.Append(err, p.RemoveImage(ctx, id))
		}
	}
	clear(r.slots)
	return err
}

// Prune drops entries that ended up with neither id.
func (r *Registry) Prune() {
	maps.DeleteFunc(r.slots, func(_ int, e Entry) bool { return e.empty() })
}
