package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/tilecast/internal/relay"
	"github.com/DoyleJ11/tilecast/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// outgoing is a frame queued for the writer. gen names the subscription that
// produced it; zero marks a reply to the client's own frame.
type outgoing struct {
	msg types.ServerMessage
	gen int64
}

// Handler serves the relay endpoint. A connection sends join{sessionId} to
// receive that session's updates (the cached one first) and update{...} to
// publish. There is no read deadline: viewers may stay silent for a whole
// session.
func Handler(b relay.Broker, logger *zap.Logger) http.HandlerFunc {
	logger = logger.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			logger.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := logger.With(zap.String("client_id", clientID))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan outgoing, 8)
		// bumped on every join; frames from an earlier subscription are dropped
		var current atomic.Int64

		// Writer goroutine
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case o := <-out:
					if o.gen != 0 && o.gen != current.Load() {
						continue
					}
					payload, _ := json.Marshal(o.msg)
					wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
					err := conn.Write(wctx, websocket.MessageText, payload)
					wcancel()
					if err != nil {
						log.Debug("write failed", zap.Error(err))
						cancel()
						return
					}
				}
			}
		}()

		fail := func(text string) {
			select {
			case out <- outgoing{msg: types.ServerMessage{Type: types.TypeError, Error: text}}:
			case <-ctx.Done():
			}
		}

		// stops the current subscription and its forwarder
		var stop func()
		defer func() {
			if stop != nil {
				stop()
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				fail("bad json")
				continue
			}

			switch cm.Type {
			case types.TypeJoin:
				gen := current.Add(1)
				if stop != nil {
					stop()
					stop = nil
				}
				s, err := b.Subscribe(ctx, cm.SessionID)
				if err != nil {
					log.Warn("join failed", zap.String("session_id", cm.SessionID), zap.Error(err))
					fail(err.Error())
					continue
				}
				subCtx, subCancel := context.WithCancel(ctx)
				stop = func() {
					subCancel()
					s.Close()
				}
				log.Debug("joined", zap.String("session_id", cm.SessionID))
				go forward(subCtx, s, gen, out)

			case types.TypeUpdate:
				if err := b.Publish(ctx, cm.ToEngine()); err != nil {
					log.Warn("publish rejected", zap.String("session_id", cm.SessionID), zap.Stringer("stamp", cm.ToEngine().Stamp()), zap.Error(err))
					fail(err.Error())
				}

			default:
				fail("unknown type")
			}
		}
	}
}

// forward copies one subscription's updates to the writer until ctx ends or
// the subscription closes.
func forward(ctx context.Context, s *relay.Subscription, gen int64, out chan<- outgoing) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-s.C:
			if !ok {
				return
			}
			msg := types.ServerMessage{Type: types.TypeUpdate, UpdatePayload: types.FromEngine(u)}
			select {
			case out <- outgoing{msg: msg, gen: gen}:
			case <-ctx.Done():
				return
			}
		}
	}
}
