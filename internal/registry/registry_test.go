package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func placed(t *testing.T, p *platform.Memory, r *Registry, slot int, participantID string) {
	t.Helper()
	ctx := context.Background()
	id, err := p.PlaceImage(ctx, platform.ImagePatch{ZIndex: slot + 1})
	require.NoError(t, err)
	r.RecordImage(slot, id)
	require.NoError(t, p.PlaceVideo(ctx, platform.VideoPlacement{ParticipantID: participantID, ZIndex: slot}))
	r.RecordVideo(slot, participantID)
}

func newMemory() *platform.Memory {
	return platform.NewMemory(engine.Participant{ID: "h", Role: engine.RoleHost}, "S1", platform.ContextInImmersive)
}

func TestRegistry_ClearAll(t *testing.T) {
	p := newMemory()
	r := New()
	placed(t, p, r, 0, "a")
	placed(t, p, r, 2, "c")
	placed(t, p, r, 1, "b")

	assert.Equal(t, []int{0, 1, 2}, r.Slots())
	assert.Equal(t, []string{"a", "b", "c"}, r.Videos())
	assert.Len(t, r.Images(), 3)

	require.NoError(t, r.ClearAll(context.Background(), p))
	assert.Zero(t, r.Len())
	assert.Empty(t, p.Videos())
	assert.Empty(t, p.Images())
}

func TestRegistry_ClearAllForgetsIdsOnFailure(t *testing.T) {
	p := newMemory()
	r := New()
	placed(t, p, r, 0, "a")
	placed(t, p, r, 1, "b")

	p.FailOn("RemoveVideo", "a")
	p.FailOn("RemoveImage", "")

	err := r.ClearAll(context.Background(), p)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	assert.True(t, errors.Is(err, platform.ErrInjected))
	assert.Zero(t, r.Len(), "registry must not keep ids from a failed teardown")
}

func TestRegistry_ClearSlotAndParticipant(t *testing.T) {
	p := newMemory()
	r := New()
	placed(t, p, r, 0, "a")
	placed(t, p, r, 3, "d")

	slot, err := r.ClearParticipant(context.Background(), p, "d")
	require.NoError(t, err)
	assert.Equal(t, 3, slot)
	assert.Equal(t, []int{0}, r.Slots())
	assert.Equal(t, []string{"a"}, r.Videos())
	assert.NotContains(t, p.Videos(), "d")
	assert.Len(t, p.Images(), 1)

	slot, err = r.ClearParticipant(context.Background(), p, "nobody")
	require.NoError(t, err)
	assert.Equal(t, -1, slot)

	require.NoError(t, r.ClearSlot(context.Background(), p, 17))
}

func TestRegistry_Prune(t *testing.T) {
	r := New()
	r.RecordImage(4, "")
	r.RecordVideo(5, "x")
	r.Prune()
	assert.Equal(t, []int{5}, r.Slots())
}
