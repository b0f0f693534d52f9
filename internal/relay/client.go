package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pingInterval = 20 * time.Second

// Client is one party's connection to the relay endpoint. Hosts Publish;
// viewers Join a session and read Updates.
type Client struct {
	conn    *websocket.Conn
	logger  *zap.Logger
	updates chan engine.Update

	cancel context.CancelFunc
	group  *errgroup.Group
	once   sync.Once
}

// Dial connects to a relay websocket URL such as ws://host:8080/ws.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	c := &Client{
		conn:    conn,
		logger:  logger.Named("relay-client"),
		updates: make(chan engine.Update, subscriberBuffer),
		cancel:  cancel,
		group:   g,
	}
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.pingLoop(gctx) })
	return c, nil
}

func (c *Client) readLoop(ctx context.Context) error {
	defer close(c.updates)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		var sm types.ServerMessage
		if err := json.Unmarshal(data, &sm); err != nil {
			c.logger.Warn("bad frame from relay", zap.Error(err))
			continue
		}
		switch sm.Type {
		case types.TypeUpdate:
			select {
			case c.updates <- sm.ToEngine():
			case <-ctx.Done():
				return ctx.Err()
			}
		case types.TypeError:
			c.logger.Warn("relay error", zap.String("error", sm.Error))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) error {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := c.conn.Ping(ctx); err != nil {
				return fmt.Errorf("ping relay: %w", err)
			}
		}
	}
}

func (c *Client) write(ctx context.Context, m types.ClientMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// Join subscribes this connection to sessionID. The relay answers with the
// session's cached update when it has one.
func (c *Client) Join(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	return c.write(ctx, types.ClientMessage{
		Type:          types.TypeJoin,
		UpdatePayload: types.UpdatePayload{SessionID: sessionID},
	})
}

func (c *Client) Publish(ctx context.Context, u engine.Update) error {
	if u.SessionID == "" {
		return ErrMissingSession
	}
	return c.write(ctx, types.ClientMessage{Type: types.TypeUpdate, UpdatePayload: types.FromEngine(u)})
}

// Updates is closed when the connection ends.
func (c *Client) Updates() <-chan engine.Update { return c.updates }

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "bye")
		c.cancel()
		if werr := c.group.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			c.logger.Debug("relay connection ended", zap.Error(werr))
		}
	})
	return err
}
