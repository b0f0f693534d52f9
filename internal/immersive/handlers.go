package immersive

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/platform"
	"go.uber.org/zap"
)

// claimEpoch stamps the state with this instance's start time the first time
// a host authors it. Mirrors and the relay order on (epoch, version), so a
// restarted host outranks the counter its previous instance left behind.
func (a *App) claimEpoch() {
	if a.isHost() && a.state.Epoch == 0 {
		a.state.Epoch = a.started.UnixNano()
	}
}

func (a *App) onHostCommand(ctx context.Context, cmd engine.Command) error {
	cmd.Issuer = a.self.Role
	a.claimEpoch()

	events, next, err := engine.Apply(a.state, cmd)
	if err != nil {
		a.logger.Warn("command rejected", zap.String("command", string(cmd.Type)), zap.Error(err))
		return err
	}
	if len(events) == 0 {
		return nil
	}

	prev := a.state
	a.state = next
	if a.immersive() {
		if _, _, err := a.sched.Apply(ctx, prev, a.roster, engine.UpdateFrom(next)); err != nil {
			a.logger.Warn("redraw failed", zap.Error(err))
		}
	}
	a.broadcast(ctx, true)
	return nil
}

func (a *App) onStart(ctx context.Context) error {
	if !a.isHost() {
		a.logger.Warn("start rejected", zap.Error(engine.ErrNotHost))
		return engine.ErrNotHost
	}
	if a.running != platform.ContextInMeeting {
		a.logger.Warn("start rejected", zap.String("running", string(a.running)), zap.Error(engine.ErrNotInMeeting))
		return engine.ErrNotInMeeting
	}

	if err := a.platform.EnterImmersive(ctx); err != nil {
		a.logger.Error("enter immersive failed", zap.Error(err))
		return fmt.Errorf("enter immersive: %w", err)
	}
	a.refreshRunning(ctx)
	a.ended = false
	a.claimEpoch()

	if err := a.platform.SendInvitation(ctx); err != nil {
		a.logger.Warn("send invitation failed", zap.Error(err))
	}
	if a.immersive() && len(a.state.Cast) > 0 {
		if err := a.sched.Full(ctx, a.state, a.roster); err != nil {
			a.logger.Warn("relayout failed", zap.Error(err))
		}
	}
	a.broadcast(ctx, true)
	return nil
}

func (a *App) onStop(ctx context.Context) error {
	if !a.isHost() {
		a.logger.Warn("stop rejected", zap.Error(engine.ErrNotHost))
		return engine.ErrNotHost
	}
	if err := a.platform.ExitImmersive(ctx); err != nil {
		a.logger.Error("exit immersive failed", zap.Error(err))
		return fmt.Errorf("exit immersive: %w", err)
	}
	a.refreshRunning(ctx)

	if err := a.sched.Clear(ctx); err != nil {
		a.logger.Warn("clear failed", zap.Error(err))
	}
	if err := a.platform.SendMessage(ctx, platform.Message{SessionID: a.state.SessionID, Ended: true}); err != nil {
		a.logger.Warn("send message failed", zap.Error(err))
	}
	return nil
}

func (a *App) refreshRunning(ctx context.Context) {
	rc, err := a.platform.RunningContext(ctx)
	if err != nil {
		a.logger.Warn("read running context failed", zap.Error(err))
		return
	}
	a.running = rc
}

// onMessage handles a direct payload from the peer instance. The host's own
// immersive instance receives these too, so role does not gate the state part.
func (a *App) onMessage(ctx context.Context, m platform.Message) {
	if m.Ended {
		a.logger.Info("immersive session ended by host")
		if err := a.sched.Clear(ctx); err != nil {
			a.logger.Warn("clear failed", zap.Error(err))
		}
		return
	}

	rosterChanged := false
	if m.Participants != nil && !a.isHost() {
		a.roster = engine.NewRoster(a.self, m.Participants)
		rosterChanged = true
	}

	u := engine.Update{
		SessionID: m.SessionID,
		Color:     m.Color,
		Cast:      m.UpdateCast,
		Epoch:     m.Epoch,
		Version:   m.Version,
	}
	action := a.applyUpdate(ctx, u, "direct")

	// screen names live in the patches, so a new roster needs fresh labels
	if rosterChanged && action == engine.ActionNone && a.immersive() && len(a.sched.Drawn()) > 0 {
		if err := a.sched.Full(ctx, a.state, a.roster); err != nil {
			a.logger.Warn("relayout failed", zap.Error(err))
		}
	}
}

func (a *App) onRelayUpdate(u engine.Update) {
	if a.isHost() {
		a.logger.Debug("host ignores relay update", zap.Int("version", u.Version))
		return
	}
	a.applyUpdate(a.ctx, u, "relay")
}

// applyUpdate replaces the local mirror with what u carries, redrawing when
// the surface is live.
func (a *App) applyUpdate(ctx context.Context, u engine.Update, source string) engine.Action {
	if err := engine.Check(a.state, u); err != nil {
		a.logger.Warn("dropping update",
			zap.String("source", source),
			zap.Stringer("have", a.state.Stamp()),
			zap.Stringer("got", u.Stamp()),
			zap.Error(err),
		)
		return engine.ActionNone
	}

	if !a.immersive() {
		a.state = engine.Merge(a.state, u)
		return engine.ActionNone
	}

	next, action, err := a.sched.Apply(ctx, a.state, a.roster, u)
	a.state = next
	if err != nil {
		a.logger.Warn("redraw failed", zap.String("source", source), zap.Error(err))
	}
	return action
}

// onRosterChange updates the roster and evicts departed cast members right
// away, without waiting for the host's next sync.
func (a *App) onRosterChange(ctx context.Context, changes []engine.RosterChange) {
	var left []string
	a.roster, left = a.roster.Apply(changes)

	evicted := false
	for _, id := range left {
		events, next, err := engine.Apply(a.state, engine.Command{
			Type:          engine.CmdEvict,
			Issuer:        a.self.Role,
			ParticipantID: id,
		})
		if err != nil || !engine.ContainsEvent(events, engine.EvtParticipantEvicted) {
			continue
		}
		a.state = next
		evicted = true
		a.logger.Info("participant evicted", zap.String("evicted_id", id), zap.Int("slot", events[0].Slot))

		if a.immersive() {
			if _, err := a.sched.Evict(ctx, id); err != nil {
				a.logger.Warn("evict failed", zap.String("evicted_id", id), zap.Error(err))
			}
		}
	}

	if evicted && a.isHost() {
		a.claimEpoch()
	}
	if evicted && a.immersive() {
		if err := a.sched.Reconcile(ctx, a.state, a.roster); err != nil {
			a.logger.Warn("reconcile failed", zap.Error(err))
		}
	}
	if a.isHost() {
		a.broadcast(ctx, evicted)
	}
}

// onConnect hands a freshly linked peer everything it needs to draw.
func (a *App) onConnect(ctx context.Context) {
	if !a.isHost() {
		return
	}
	a.broadcast(ctx, false)
}

func (a *App) onMeetingEnded(ctx context.Context) {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("relay close failed", zap.Error(err))
		}
	}
	if err := a.sched.Clear(ctx); err != nil {
		a.logger.Warn("clear failed", zap.Error(err))
	}
	a.state = engine.NewEmptyState(a.state.SessionID)
	a.ended = true
	a.logger.Info("meeting ended")
}

// broadcast sends the current state to the peer instance and, when publish is
// set, to relay viewers.
func (a *App) broadcast(ctx context.Context, publish bool) {
	c := a.state.Color
	msg := platform.Message{
		Color:      &c,
		UpdateCast: slices.Clone(a.state.Cast),
		SessionID:  a.state.SessionID,
		Epoch:      a.state.Epoch,
		Version:    a.state.Version,
		IsHost:     a.isHost(),
	}
	if a.isHost() {
		msg.Participants = a.roster.Participants()
	}
	if err := a.platform.SendMessage(ctx, msg); err != nil {
		a.logger.Warn("send message failed", zap.Error(err))
	}

	if !publish || a.relay == nil {
		return
	}
	if err := a.relay.Publish(ctx, engine.UpdateFrom(a.state)); err != nil {
		a.logger.Warn("relay publish failed", zap.Stringer("stamp", a.state.Stamp()), zap.Error(err))
	}
}
