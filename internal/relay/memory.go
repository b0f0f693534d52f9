package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/tilecast/internal/channel"
	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/hub"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBuffer bounds how far a viewer may fall behind before it is dropped.
const subscriberBuffer = 16

// MemoryBroker keeps every session inside this process, one channel actor per
// session id. A session nobody subscribes to or publishes on for ttl is
// forgotten, cached update included.
type MemoryBroker struct {
	hub    *hub.Hub
	logger *zap.Logger
}

func NewMemoryBroker(ctx context.Context, logger *zap.Logger, ttl time.Duration) *MemoryBroker {
	return &MemoryBroker{
		hub:    hub.NewHub(ctx, logger, ttl),
		logger: logger.Named("relay"),
	}
}

// withChannel runs fn on the session's channel. A channel that expired
// between lookup and use has already been dropped by the hub, so one more
// lookup opens a fresh one.
func (b *MemoryBroker) withChannel(ctx context.Context, sessionID string, fn func(*channel.Channel) error) error {
	for attempt := 0; ; attempt++ {
		ch, err := b.hub.Ensure(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("open channel: %w", err)
		}
		err = fn(ch)
		if errors.Is(err, channel.ErrClosed) && attempt == 0 {
			b.logger.Debug("channel expired during use, reopening", zap.String("session_id", sessionID))
			continue
		}
		return err
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, u engine.Update) error {
	if u.SessionID == "" {
		return ErrMissingSession
	}
	return b.withChannel(ctx, u.SessionID, func(ch *channel.Channel) error {
		return ch.Publish(ctx, u)
	})
}

func (b *MemoryBroker) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}

	id := uuid.NewString()
	out := make(chan engine.Update, subscriberBuffer)
	var ch *channel.Channel
	err := b.withChannel(ctx, sessionID, func(c *channel.Channel) error {
		ch = c
		return c.Join(ctx, id, out)
	})
	if err != nil {
		return nil, fmt.Errorf("join channel: %w", err)
	}
	b.logger.Debug("subscribed", zap.String("session_id", sessionID), zap.String("subscriber_id", id))
	return &Subscription{
		C: out,
		close: func() {
			// the channel closes out on Leave; a closed channel already did
			_ = ch.Leave(context.Background(), id)
		},
	}, nil
}

func (b *MemoryBroker) Last(ctx context.Context, sessionID string) (engine.Update, bool, error) {
	ch, err := b.hub.Get(ctx, sessionID)
	if err != nil || ch == nil {
		return engine.Update{}, false, err
	}
	v, err := ch.View(ctx)
	if errors.Is(err, channel.ErrClosed) {
		return engine.Update{}, false, nil
	}
	if err != nil {
		return engine.Update{}, false, err
	}
	return v.Last, v.HasLast, nil
}

func (b *MemoryBroker) Close() error {
	b.hub.Inbox() <- hub.ShutdownHub{}
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
