// Package relay carries session updates to viewers outside the meeting. A
// Broker fans updates out per session id; the websocket endpoint and Client
// put it on the wire.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/DoyleJ11/tilecast/internal/engine"
)

var (
	ErrMissingSession = errors.New("missing session id")
	ErrClosed         = errors.New("relay closed")
)

// Broker is the session-keyed pub/sub behind the relay endpoint.
type Broker interface {
	// Publish applies the version rule, caches u as the session's latest
	// state and delivers it to every subscriber.
	Publish(ctx context.Context, u engine.Update) error
	// Subscribe delivers the cached update first, if any, then every later one.
	Subscribe(ctx context.Context, sessionID string) (*Subscription, error)
	// Last returns the cached update for sessionID.
	Last(ctx context.Context, sessionID string) (engine.Update, bool, error)
	Close() error
}

// Subscription is one viewer's feed. C is closed after Close or when the
// broker drops the subscriber.
type Subscription struct {
	C <-chan engine.Update

	once  sync.Once
	close func()
}

func (s *Subscription) Close() {
	s.once.Do(s.close)
}
