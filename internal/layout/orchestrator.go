package layout

import (
	"context"
	"image"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/geometry"
	"github.com/DoyleJ11/tilecast/internal/platform"
	"github.com/DoyleJ11/tilecast/internal/registry"
	"github.com/DoyleJ11/tilecast/internal/tile"
	"go.uber.org/zap"
)

// Canvas is the raw rendering surface: physical pixels plus the device scale.
type Canvas struct {
	Width, Height int
	Scale         float64
}

func (c Canvas) SafeArea() image.Rectangle { return geometry.SafeArea(c.Width, c.Height) }

// Frame is everything one pass draws from.
type Frame struct {
	State  engine.State
	Roster engine.Roster
	Canvas Canvas
}

type Result struct {
	Placed  []int
	Skipped []int
}

// Orchestrator owns the drawn-resource registry. Passes are serialized by a
// single guard token, so a teardown never interleaves with another pass's
// placements.
type Orchestrator struct {
	logger   *zap.Logger
	platform platform.Platform
	renderer *tile.Renderer
	registry *registry.Registry
	guard    chan struct{}
}

func NewOrchestrator(logger *zap.Logger, p platform.Platform, r *tile.Renderer) *Orchestrator {
	return &Orchestrator{
		logger:   logger.Named("layout"),
		platform: p,
		renderer: r,
		registry: registry.New(),
		guard:    make(chan struct{}, 1),
	}
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.guard <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() { <-o.guard }

// Drawn returns the slots currently on the surface.
func (o *Orchestrator) Drawn() []int { return o.registry.Slots() }

func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Relayout tears down everything from earlier passes and redraws every
// occupied slot in ascending order. Per-tile failures are logged and skipped.
func (o *Orchestrator) Relayout(ctx context.Context, f Frame) (Result, error) {
	if err := o.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer o.release()

	if err := o.registry.ClearAll(ctx, o.platform); err != nil {
		o.logger.Warn("teardown incomplete", zap.Error(err))
	}

	safe := f.Canvas.SafeArea()
	var res Result
	for slot := range geometry.MaxSlots {
		if f.State.ParticipantAt(slot) == "" {
			continue
		}
		if o.place(ctx, f, safe, slot) {
			res.Placed = append(res.Placed, slot)
		} else {
			res.Skipped = append(res.Skipped, slot)
		}
	}

	o.logger.Debug("relayout",
		zap.Ints("placed", res.Placed),
		zap.Ints("skipped", res.Skipped),
		zap.Stringer("safe_area", safe),
		zap.Int("version", f.State.Version),
	)
	return res, nil
}

// ReplaceSlots redraws only the given slots: all of them are torn down before
// any is placed again, so a participant moving between two listed slots is
// never removed after being placed.
func (o *Orchestrator) ReplaceSlots(ctx context.Context, f Frame, slots []int) (Result, error) {
	if err := o.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer o.release()

	for _, slot := range slots {
		if err := o.registry.ClearSlot(ctx, o.platform, slot); err != nil {
			o.logger.Warn("slot teardown incomplete", zap.Int("slot", slot), zap.Error(err))
		}
	}

	safe := f.Canvas.SafeArea()
	var res Result
	for _, slot := range slots {
		if f.State.ParticipantAt(slot) == "" {
			continue
		}
		if o.place(ctx, f, safe, slot) {
			res.Placed = append(res.Placed, slot)
		} else {
			res.Skipped = append(res.Skipped, slot)
		}
	}
	return res, nil
}

// Evict removes whatever shows participantID and returns its slot, or -1.
func (o *Orchestrator) Evict(ctx context.Context, participantID string) (int, error) {
	if err := o.acquire(ctx); err != nil {
		return -1, err
	}
	defer o.release()

	slot, err := o.registry.ClearParticipant(ctx, o.platform, participantID)
	if err != nil {
		o.logger.Warn("evict teardown incomplete", zap.String("participant_id", participantID), zap.Error(err))
	}
	return slot, nil
}

// Clear removes everything this orchestrator placed.
func (o *Orchestrator) Clear(ctx context.Context) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()

	if err := o.registry.ClearAll(ctx, o.platform); err != nil {
		o.logger.Warn("teardown incomplete", zap.Error(err))
	}
	return nil
}

// place renders one slot and puts patch then video on the surface, recording
// whatever the platform accepted. Caller holds the guard.
func (o *Orchestrator) place(ctx context.Context, f Frame, safe image.Rectangle, slot int) bool {
	id := f.State.ParticipantAt(slot)
	t := o.renderer.Render(tile.Request{
		Slot:          slot,
		ParticipantID: id,
		ScreenName:    f.Roster.ScreenName(id),
		Color:         f.State.Color,
		SafeArea:      safe,
		Scale:         f.Canvas.Scale,
	})
	if t == nil {
		return false
	}

	log := o.logger.With(zap.Int("slot", slot), zap.String("participant_id", id))
	ok := true

	imageID, err := o.platform.PlaceImage(ctx, t.Patch)
	if err != nil {
		log.Warn("place image failed", zap.Error(err))
		ok = false
	} else {
		o.registry.RecordImage(slot, imageID)
	}

	if err := o.platform.PlaceVideo(ctx, t.Video); err != nil {
		log.Warn("place video failed", zap.Error(err))
		ok = false
	} else {
		o.registry.RecordVideo(slot, id)
		if err := o.platform.RemoveVirtualBackground(ctx, id); err != nil {
			log.Debug("remove virtual background failed", zap.Error(err))
		}
	}

	o.registry.Prune()
	return ok
}
