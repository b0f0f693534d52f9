// Package hub keeps one relay channel per session id.
package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/tilecast/internal/channel"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

type GetChannel struct {
	SessionID string
	Reply     chan *channel.Channel
}

type EnsureChannel struct {
	SessionID string
	Reply     chan *channel.Channel
}

// RemoveChannel drops the session's channel. When Channel is set, only that
// exact channel is dropped, so a late expiry cannot remove its replacement.
type RemoveChannel struct {
	SessionID string
	Channel   *channel.Channel
}

type ShutdownHub struct{}

func (GetChannel) isHubMsg()    {}
func (EnsureChannel) isHubMsg() {}
func (RemoveChannel) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox    chan HubMsg
	logger   *zap.Logger
	channels map[string]*channel.Channel
	ttl      time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the hub. Channels left without clients or publishes for ttl
// remove themselves; zero keeps them until the hub shuts down.
func NewHub(parent context.Context, logger *zap.Logger, ttl time.Duration) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		logger:   logger.Named("hub"),
		channels: make(map[string]*channel.Channel),
		ttl:      ttl,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			// channels share h.ctx and shut themselves down
			clear(h.channels)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetChannel:
				msg.Reply <- h.channels[msg.SessionID] // May be nil

			case EnsureChannel:
				if ch := h.channels[msg.SessionID]; ch != nil {
					msg.Reply <- ch
					break
				}
				ch := channel.NewChannel(h.ctx, h.logger, msg.SessionID, h.ttl, h.expire)
				h.channels[msg.SessionID] = ch
				h.logger.Debug("channel opened", zap.String("session_id", msg.SessionID))
				msg.Reply <- ch

			case RemoveChannel:
				ch := h.channels[msg.SessionID]
				if ch == nil || (msg.Channel != nil && msg.Channel != ch) {
					break
				}
				stop(ch)
				delete(h.channels, msg.SessionID)
				h.logger.Debug("channel closed", zap.String("session_id", msg.SessionID))

			case ShutdownHub:
				for _, ch := range h.channels {
					stop(ch)
				}
				clear(h.channels)
				h.cancel()
			}
		}
	}
}

// stop asks ch to shut down unless it already has.
func stop(ch *channel.Channel) {
	select {
	case ch.Inbox() <- channel.Shutdown{}:
	case <-ch.Done():
	}
}

// expire runs on an idle channel's goroutine before it stops. The removal is
// queued ahead of anything sent after the channel is done, so a caller that
// saw channel.ErrClosed and asks again gets a fresh channel.
func (h *Hub) expire(ch *channel.Channel) {
	select {
	case h.inbox <- RemoveChannel{SessionID: ch.SessionID(), Channel: ch}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) request(ctx context.Context, msg func(reply chan *channel.Channel) HubMsg) (*channel.Channel, error) {
	reply := make(chan *channel.Channel, 1)
	select {
	case h.inbox <- msg(reply):
	case <-h.ctx.Done():
		return nil, channel.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case ch := <-reply:
		return ch, nil
	case <-h.ctx.Done():
		return nil, channel.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ensure returns the channel for sessionID, opening it on first use.
func (h *Hub) Ensure(ctx context.Context, sessionID string) (*channel.Channel, error) {
	return h.request(ctx, func(reply chan *channel.Channel) HubMsg {
		return EnsureChannel{SessionID: sessionID, Reply: reply}
	})
}

// Get returns the channel for sessionID, or nil when none is open.
func (h *Hub) Get(ctx context.Context, sessionID string) (*channel.Channel, error) {
	return h.request(ctx, func(reply chan *channel.Channel) HubMsg {
		return GetChannel{SessionID: sessionID, Reply: reply}
	})
}
