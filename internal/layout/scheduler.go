package layout

import (
	"context"
	"slices"
	"time"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"go.uber.org/zap"
)

// Scheduler decides how much of the surface an incoming state change has to
// redraw, and coalesces resize bursts into at most one relayout per cooldown.
type Scheduler struct {
	logger   *zap.Logger
	orch     *Orchestrator
	cooldown time.Duration

	canvas  Canvas
	pending bool
	lastRun time.Time
	hasRun  bool
}

func NewScheduler(logger *zap.Logger, orch *Orchestrator, cooldown time.Duration) *Scheduler {
	return &Scheduler{
		logger:   logger.Named("scheduler"),
		orch:     orch,
		cooldown: cooldown,
	}
}

func (s *Scheduler) Canvas() Canvas { return s.canvas }

// SetCanvas changes the canvas without scheduling anything.
func (s *Scheduler) SetCanvas(c Canvas) { s.canvas = c }

func (s *Scheduler) Pending() bool { return s.pending }

// Drawn returns the slots currently on the surface.
func (s *Scheduler) Drawn() []int { return s.orch.Drawn() }

func (s *Scheduler) frame(st engine.State, r engine.Roster) Frame {
	return Frame{State: st, Roster: r, Canvas: s.canvas}
}

// Apply merges u into cur and redraws what the diff requires. The merged
// state is returned even when drawing fails.
func (s *Scheduler) Apply(ctx context.Context, cur engine.State, roster engine.Roster, u engine.Update) (engine.State, engine.Action, error) {
	ch := engine.Diff(cur, u)
	next := engine.Merge(cur, u)
	action := engine.Plan(ch, len(s.orch.Drawn()) > 0)

	s.logger.Debug("apply update",
		zap.Bool("changed_color", ch.Color),
		zap.Bool("changed_cast", ch.Cast),
		zap.Stringer("action", action),
	)

	switch action {
	case engine.ActionFull:
		return next, action, s.Full(ctx, next, roster)
	case engine.ActionPartial:
		return next, action, s.partial(ctx, next, roster)
	}
	return next, action, nil
}

// Full runs a complete relayout with the current canvas. It also satisfies
// any pending resize.
func (s *Scheduler) Full(ctx context.Context, st engine.State, roster engine.Roster) error {
	s.pending = false
	_, err := s.orch.Relayout(ctx, s.frame(st, roster))
	return err
}

// partial replaces only slots whose on-screen participant differs from st.
// It looks at drawn slots and at every slot the new cast fills, so a longer
// cast still gets its new tiles.
func (s *Scheduler) partial(ctx context.Context, st engine.State, roster engine.Roster) error {
	reg := s.orch.Registry()
	candidates := s.orch.Drawn()
	for i := range st.Cast {
		if !slices.Contains(candidates, i) {
			candidates = append(candidates, i)
		}
	}
	slices.Sort(candidates)

	var changed []int
	for _, slot := range candidates {
		e, drawn := reg.At(slot)
		want := st.ParticipantAt(slot)
		if drawn && e.ParticipantID == want && e.ImageID != "" {
			continue
		}
		if !drawn && want == "" {
			continue
		}
		changed = append(changed, slot)
	}
	if len(changed) == 0 {
		return nil
	}

	res, err := s.orch.ReplaceSlots(ctx, s.frame(st, roster), changed)
	s.logger.Debug("partial redraw", zap.Ints("slots", changed), zap.Ints("placed", res.Placed))
	return err
}

// Reconcile brings the surface in line with st, touching only slots that
// differ. Used after an eviction shifted the cast.
func (s *Scheduler) Reconcile(ctx context.Context, st engine.State, roster engine.Roster) error {
	if len(s.orch.Drawn()) == 0 && len(st.Cast) > 0 {
		return s.Full(ctx, st, roster)
	}
	return s.partial(ctx, st, roster)
}

// Resize records the new canvas and marks a relayout as pending. Nothing is
// drawn until Tick.
func (s *Scheduler) Resize(c Canvas) {
	s.canvas = c
	s.pending = true
}

// Tick runs the pending resize relayout once the cooldown since the previous
// one has passed. It reports whether a relayout ran.
func (s *Scheduler) Tick(ctx context.Context, now time.Time, st engine.State, roster engine.Roster) (bool, error) {
	if !s.pending {
		return false, nil
	}
	if s.hasRun && now.Before(s.lastRun.Add(s.cooldown)) {
		return false, nil
	}
	s.lastRun = now
	s.hasRun = true
	return true, s.Full(ctx, st, roster)
}

// Evict tears down the tile showing participantID right away.
func (s *Scheduler) Evict(ctx context.Context, participantID string) (int, error) {
	return s.orch.Evict(ctx, participantID)
}

func (s *Scheduler) Clear(ctx context.Context) error {
	s.pending = false
	return s.orch.Clear(ctx)
}
