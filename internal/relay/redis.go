package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/types"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const maxPublishRetries = 5

func stateKey(sessionID string) string     { return "relay:state:" + sessionID }
func sessionTopic(sessionID string) string { return "relay:session:" + sessionID }

// RedisBroker shares sessions between relay instances: the latest update of
// each session lives under a key with a TTL and is fanned out over PUBLISH.
type RedisBroker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisBroker connects to rawURL (redis://...) and checks the connection.
func NewRedisBroker(ctx context.Context, rawURL string, ttl time.Duration, logger *zap.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisBroker(client, ttl, logger), nil
}

func newRedisBroker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, ttl: ttl, logger: logger.Named("relay")}
}

func decodeUpdate(data []byte) (engine.Update, error) {
	var p types.UpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return engine.Update{}, err
	}
	return p.ToEngine(), nil
}

func stateFrom(sessionID string, data []byte) (engine.State, error) {
	s := engine.NewEmptyState(sessionID)
	if data == nil {
		return s, nil
	}
	u, err := decodeUpdate(data)
	if err != nil {
		return s, err
	}
	return engine.Merge(s, u), nil
}

// Publish merges u into the cached state under WATCH, so two relay instances
// racing on one session cannot let an older version overwrite a newer one.
func (b *RedisBroker) Publish(ctx context.Context, u engine.Update) error {
	if u.SessionID == "" {
		return ErrMissingSession
	}
	key := stateKey(u.SessionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		cur, err := stateFrom(u.SessionID, raw)
		if err != nil {
			b.logger.Warn("discarding unreadable cached state", zap.String("session_id", u.SessionID), zap.Error(err))
			cur = engine.NewEmptyState(u.SessionID)
		}
		if err := engine.Check(cur, u); err != nil {
			return err
		}
		payload, err := json.Marshal(types.FromEngine(engine.UpdateFrom(engine.Merge(cur, u))))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, b.ttl)
			pipe.Publish(ctx, sessionTopic(u.SessionID), payload)
			return nil
		})
		return err
	}

	for range maxPublishRetries {
		err := b.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("publish %s: %w", u.SessionID, redis.TxFailedErr)
}

func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	ps := b.client.Subscribe(ctx, sessionTopic(sessionID))
	// wait for the subscription to be confirmed before reading the cache, so
	// nothing published in between is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}
	last, hasLast, err := b.Last(ctx, sessionID)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan engine.Update, subscriberBuffer)
	stop := make(chan struct{})
	go func() {
		defer close(out)
		var seen engine.Stamp
		forward := func(u engine.Update) bool {
			// the cache read and the live feed can overlap
			st := u.Stamp()
			if !st.IsZero() && st.Before(seen) {
				return true
			}
			if seen.Before(st) {
				seen = st
			}
			select {
			case out <- u:
				return true
			case <-stop:
				return false
			}
		}
		if hasLast && !forward(last) {
			return
		}
		for msg := range ps.Channel() {
			u, err := decodeUpdate([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("bad relay payload", zap.String("session_id", sessionID), zap.Error(err))
				continue
			}
			if !forward(u) {
				return
			}
		}
	}()

	return &Subscription{
		C: out,
		close: func() {
			close(stop)
			_ = ps.Close()
		},
	}, nil
}

func (b *RedisBroker) Last(ctx context.Context, sessionID string) (engine.Update, bool, error) {
	raw, err := b.client.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.Update{}, false, nil
	}
	if err != nil {
		return engine.Update{}, false, fmt.Errorf("read state %s: %w", sessionID, err)
	}
	u, err := decodeUpdate(raw)
	if err != nil {
		return engine.Update{}, false, fmt.Errorf("decode state %s: %w", sessionID, err)
	}
	return u, true, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ Broker = (*RedisBroker)(nil)
