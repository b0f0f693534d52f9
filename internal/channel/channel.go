// Package channel is the per-session relay actor: it holds the latest
// accepted update for one session and fans updates out to every joined viewer.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("channel closed")

type Msg interface{ isChannelMsg() }

type Publish struct {
	Update engine.Update
	Reply  chan error // optional
}

func (Publish) isChannelMsg() {}

type Join struct {
	ClientID string
	Outbox   chan engine.Update // where this client wants to receive updates
	Reply    chan error         // optional
}

func (Join) isChannelMsg() {}

type Leave struct{ ClientID string }

func (Leave) isChannelMsg() {}

type Shutdown struct{}

func (Shutdown) isChannelMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isChannelMsg() {}

type View struct {
	Last       engine.Update
	HasLast    bool
	NumClients int
}

type Channel struct {
	inbox     chan Msg
	logger    *zap.Logger
	sessionID string
	state     engine.State
	hasLast   bool
	clients   map[string]chan engine.Update

	// a channel with no clients and no publish for ttl expires
	ttl        time.Duration
	lastActive time.Time
	onExpire   func(*Channel)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel starts the actor for sessionID. A ttl of zero keeps the channel
// until it is shut down; otherwise onExpire is called from the channel's
// goroutine right before an idle channel stops itself.
func NewChannel(parent context.Context, logger *zap.Logger, sessionID string, ttl time.Duration, onExpire func(*Channel)) *Channel {
	ctx, cancel := context.WithCancel(parent)

	c := &Channel{
		inbox:      make(chan Msg, 64),
		logger:     logger.Named("channel").With(zap.String("session_id", sessionID)),
		sessionID:  sessionID,
		state:      engine.NewEmptyState(sessionID),
		clients:    make(map[string]chan engine.Update),
		ttl:        ttl,
		lastActive: time.Now(),
		onExpire:   onExpire,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go c.loop()
	return c
}

// sweepInterval is how often an idle channel checks its ttl.
func sweepInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/4, 10*time.Millisecond), time.Minute)
}

func (c *Channel) loop() {
	defer close(c.done)

	var sweep <-chan time.Time
	if c.ttl > 0 {
		t := time.NewTicker(sweepInterval(c.ttl))
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case now := <-sweep:
			if len(c.clients) > 0 || now.Sub(c.lastActive) < c.ttl {
				break
			}
			c.logger.Debug("channel expired", zap.Duration("idle", now.Sub(c.lastActive)))
			if c.onExpire != nil {
				c.onExpire(c)
			}
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Join:
				c.clients[msg.ClientID] = msg.Outbox
				c.lastActive = time.Now()
				// late joiners catch up on whatever the host last sent
				if c.hasLast {
					c.deliver(msg.ClientID, msg.Outbox, engine.UpdateFrom(c.state))
				}
				if msg.Reply != nil {
					msg.Reply <- nil
				}

			case Leave:
				if ch, ok := c.clients[msg.ClientID]; ok {
					close(ch)
					delete(c.clients, msg.ClientID)
					c.lastActive = time.Now()
				}

			case Publish:
				err := c.publish(msg.Update)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case GetState:
				// snapshot for Last and tests, read on the actor goroutine
				v := View{HasLast: c.hasLast, NumClients: len(c.clients)}
				if c.hasLast {
					v.Last = engine.UpdateFrom(c.state)
				}
				msg.Reply <- v

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Channel) publish(u engine.Update) error {
	if err := engine.Check(c.state, u); err != nil {
		c.logger.Warn("rejecting update", zap.Stringer("have", c.state.Stamp()), zap.Stringer("got", u.Stamp()), zap.Error(err))
		return err
	}
	c.state = engine.Merge(c.state, u)
	c.hasLast = true
	c.lastActive = time.Now()
	c.broadcast(engine.UpdateFrom(c.state))
	return nil
}

func (c *Channel) shutdown() {
	for id, ch := range c.clients {
		close(ch) // no more updates for this client
		delete(c.clients, id)
	}
	c.cancel()
}

func (c *Channel) broadcast(u engine.Update) {
	for id, ch := range c.clients {
		c.deliver(id, ch, u)
	}
}

func (c *Channel) deliver(id string, ch chan engine.Update, u engine.Update) {
	select {
	case ch <- u:
	default:
		// Client is slow/full - drop them.
		c.logger.Warn("dropping slow client", zap.String("client_id", id))
		close(ch)
		delete(c.clients, id)
		c.lastActive = time.Now()
	}
}

func (c *Channel) SessionID() string { return c.sessionID }

// Expose the inbox so tests or the broker can send messages.
func (c *Channel) Inbox() chan<- Msg { return c.inbox }

// Done is closed once the channel has shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) send(ctx context.Context, m Msg) error {
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish hands u to the channel and waits for it to be accepted or rejected.
func (c *Channel) Publish(ctx context.Context, u engine.Update) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, Publish{Update: u, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join registers outbox and waits until the channel holds it, so a caller
// that gets nil knows the channel did not expire underneath it.
func (c *Channel) Join(ctx context.Context, clientID string, outbox chan engine.Update) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, Join{ClientID: clientID, Outbox: outbox, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Leave(ctx context.Context, clientID string) error {
	return c.send(ctx, Leave{ClientID: clientID})
}

func (c *Channel) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
