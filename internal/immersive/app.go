// Package immersive is the per-party ownership root: one App per running
// instance holds the session mirror, the roster and the layout, and processes
// every event on a single loop goroutine.
package immersive

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/DoyleJ11/tilecast/internal/config"
	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/layout"
	"github.com/DoyleJ11/tilecast/internal/platform"
	"github.com/DoyleJ11/tilecast/internal/tile"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("app stopped")

// Relay is the session-keyed pub/sub used to reach viewers outside the meeting.
type Relay interface {
	Join(ctx context.Context, sessionID string) error
	Publish(ctx context.Context, u engine.Update) error
	Updates() <-chan engine.Update
	Close() error
}

type Deps struct {
	Logger   *zap.Logger
	Platform platform.Platform
	Relay    Relay // nil when this instance has no relay connection
	Config   config.Config
	Canvas   layout.Canvas // initial surface; 1920x1080 at scale 1 when zero
	Now      func() time.Time
}

type App struct {
	inbox    chan Msg
	logger   *zap.Logger
	platform platform.Platform
	relay    Relay
	sched    *layout.Scheduler

	self    engine.Participant
	state   engine.State
	roster  engine.Roster
	running platform.RunningContext
	ended   bool

	tick    time.Duration
	now     func() time.Time
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New reads who and where we are from the platform, joins the relay as a
// viewer when there is one, and starts the loop. Errors here are bootstrap
// failures for the caller's top-level handler.
func New(parent context.Context, deps Deps) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Canvas.Width <= 0 || deps.Canvas.Height <= 0 {
		deps.Canvas = layout.Canvas{Width: 1920, Height: 1080, Scale: 1}
	}
	if deps.Config.TickInterval <= 0 {
		deps.Config.TickInterval = config.Default().TickInterval
	}

	p := deps.Platform
	self, err := p.Self(parent)
	if err != nil {
		return nil, fmt.Errorf("read user context: %w", err)
	}
	running, err := p.RunningContext(parent)
	if err != nil {
		return nil, fmt.Errorf("read running context: %w", err)
	}

	sessionID, err := p.SessionID(parent)
	if err != nil {
		return nil, fmt.Errorf("read session id: %w", err)
	}

	roster := engine.NewRoster(self, nil)
	if self.Role == engine.RoleHost {
		all, err := p.Roster(parent)
		if err != nil {
			return nil, fmt.Errorf("read roster: %w", err)
		}
		roster = engine.NewRoster(self, all)
	}

	logger := deps.Logger.Named("immersive").With(
		zap.String("participant_id", self.ID),
		zap.String("role", string(self.Role)),
	)
	renderer := tile.NewRenderer(deps.Logger, deps.Config.BorderWidth)
	orch := layout.NewOrchestrator(deps.Logger, p, renderer)

	sched := layout.NewScheduler(deps.Logger, orch, deps.Config.ResizeCooldown)
	sched.SetCanvas(deps.Canvas)

	ctx, cancel := context.WithCancel(parent)
	a := &App{
		inbox:    make(chan Msg, 64),
		logger:   logger,
		platform: p,
		relay:    deps.Relay,
		sched:    sched,
		self:     self,
		state:    engine.NewEmptyState(sessionID),
		roster:   roster,
		running:  running,
		tick:     deps.Config.TickInterval,
		now:      deps.Now,
		started:  deps.Now(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if a.relay != nil && !a.isHost() {
		if err := a.relay.Join(parent, sessionID); err != nil {
			cancel()
			return nil, fmt.Errorf("join relay: %w", err)
		}
	}

	go a.loop()
	return a, nil
}

func (a *App) isHost() bool    { return a.self.Role == engine.RoleHost }
func (a *App) immersive() bool { return a.running == platform.ContextInImmersive && !a.ended }

// Inbox lets platform bindings and tests post messages directly.
func (a *App) Inbox() chan<- Msg { return a.inbox }

// Done is closed once the loop has exited.
func (a *App) Done() <-chan struct{} { return a.done }

func (a *App) send(ctx context.Context, m Msg) error {
	select {
	case a.inbox <- m:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) call(ctx context.Context, m Msg, reply chan error) error {
	if err := a.send(ctx, m); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) SetColor(ctx context.Context, c engine.Color) error {
	reply := make(chan error, 1)
	return a.call(ctx, HostCommand{Cmd: engine.Command{Type: engine.CmdSetColor, Color: c}, Reply: reply}, reply)
}

func (a *App) SetCast(ctx context.Context, ids []string) error {
	reply := make(chan error, 1)
	cmd := engine.Command{Type: engine.CmdSetCast, Cast: slices.Clone(ids)}
	return a.call(ctx, HostCommand{Cmd: cmd, Reply: reply}, reply)
}

func (a *App) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	return a.call(ctx, Start{Reply: reply}, reply)
}

func (a *App) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	return a.call(ctx, Stop{Reply: reply}, reply)
}

func (a *App) HandleMessage(ctx context.Context, m platform.Message) error {
	return a.send(ctx, Inbound{Msg: m})
}

func (a *App) HandleRosterChange(ctx context.Context, changes []engine.RosterChange) error {
	return a.send(ctx, RosterChanged{Changes: slices.Clone(changes)})
}

func (a *App) HandleConnect(ctx context.Context) error {
	return a.send(ctx, Connected{})
}

func (a *App) HandleMeetingEnded(ctx context.Context) error {
	return a.send(ctx, MeetingEnded{})
}

func (a *App) Resize(ctx context.Context, c layout.Canvas) error {
	return a.send(ctx, Resized{Canvas: c})
}

func (a *App) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := a.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-a.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (a *App) Shutdown() {
	select {
	case a.inbox <- Shutdown{}:
	case <-a.done:
	}
	<-a.done
}

func (a *App) loop() {
	defer close(a.done)
	defer a.cancel()

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	var updates <-chan engine.Update
	if a.relay != nil {
		updates = a.relay.Updates()
	}

	for {
		select {
		case <-a.ctx.Done():
			return

		case <-ticker.C:
			if !a.immersive() {
				break
			}
			if _, err := a.sched.Tick(a.ctx, a.now(), a.state, a.roster); err != nil {
				a.logger.Warn("resize relayout failed", zap.Error(err))
			}

		case u, ok := <-updates:
			if !ok {
				updates = nil
				break
			}
			a.onRelayUpdate(u)

		case m := <-a.inbox:
			if stop := a.handle(m); stop {
				return
			}
		}
	}
}

func (a *App) handle(m Msg) (stop bool) {
	ctx := a.ctx
	switch msg := m.(type) {
	case HostCommand:
		msg.Reply <- a.onHostCommand(ctx, msg.Cmd)

	case Start:
		msg.Reply <- a.onStart(ctx)

	case Stop:
		msg.Reply <- a.onStop(ctx)

	case Inbound:
		a.onMessage(ctx, msg.Msg)

	case RelayUpdate:
		a.onRelayUpdate(msg.Update)

	case RosterChanged:
		a.onRosterChange(ctx, msg.Changes)

	case Connected:
		a.onConnect(ctx)

	case MeetingEnded:
		a.onMeetingEnded(ctx)

	case Resized:
		a.sched.Resize(msg.Canvas)

	case GetState:
		msg.Reply <- View{
			State:   a.state.Clone(),
			Roster:  a.roster.Participants(),
			Running: a.running,
			Drawn:   a.sched.Drawn(),
			Ended:   a.ended,
		}

	case Shutdown:
		return true
	}
	return false
}
