package channel

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// helper: receive one update with a timeout so tests never hang
func recvUpdate(t *testing.T, ch <-chan engine.Update, within time.Duration) engine.Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return u
	case <-time.After(within):
		t.Fatalf("timed out waiting for update")
		return engine.Update{} // unreachable
	}
}

func recvNoUpdate(t *testing.T, ch <-chan engine.Update, within time.Duration) {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further updates possible
			return
		}
		t.Fatalf("expected no update within %v, but got: %+v", within, u)
	case <-time.After(within):
		// good: no update
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func update(version int, color engine.Color, cast ...string) engine.Update {
	if cast == nil {
		cast = []string{}
	}
	return engine.Update{SessionID: "S1", Color: &color, Cast: cast, Version: version}
}

func TestChannel_PublishFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 0, nil)

	a := make(chan engine.Update, 2)
	b := make(chan engine.Update, 2)
	require.NoError(t, c.Join(ctx, "a", a))
	require.NoError(t, c.Join(ctx, "b", b))

	// nothing cached yet, so joining sends nothing
	recvNoUpdate(t, a, 20*time.Millisecond)

	require.NoError(t, c.Publish(ctx, update(1, engine.Palette["red"], "A", "B")))
	for _, ch := range []chan engine.Update{a, b} {
		u := recvUpdate(t, ch, 100*time.Millisecond)
		assert.Equal(t, 1, u.Version)
		assert.Equal(t, []string{"A", "B"}, u.Cast)
		require.NotNil(t, u.Color)
		assert.Equal(t, engine.Palette["red"], *u.Color)
	}
}

func TestChannel_LateJoinerGetsCachedUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 0, nil)

	require.NoError(t, c.Publish(ctx, update(1, engine.Palette["red"], "A", "B")))

	late := make(chan engine.Update, 2)
	require.NoError(t, c.Join(ctx, "late", late))
	u := recvUpdate(t, late, 100*time.Millisecond)
	assert.Equal(t, "S1", u.SessionID)
	assert.Equal(t, []string{"A", "B"}, u.Cast)

	// and converges on the next broadcast too
	require.NoError(t, c.Publish(ctx, update(2, engine.Palette["green"], "B")))
	u = recvUpdate(t, late, 100*time.Millisecond)
	assert.Equal(t, 2, u.Version)
	assert.Equal(t, engine.Palette["green"], *u.Color)
}

func TestChannel_StaleUpdateRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 0, nil)

	out := make(chan engine.Update, 4)
	require.NoError(t, c.Join(ctx, "a", out))

	require.NoError(t, c.Publish(ctx, update(3, engine.Palette["red"], "A")))
	recvUpdate(t, out, 100*time.Millisecond)

	err := c.Publish(ctx, update(2, engine.Palette["blue"], "Z"))
	require.ErrorIs(t, err, engine.ErrStaleUpdate)
	recvNoUpdate(t, out, 20*time.Millisecond)

	err = c.Publish(ctx, engine.Update{SessionID: "S2", Cast: []string{"Z"}})
	require.ErrorIs(t, err, engine.ErrSessionMismatch)

	v, err := c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Last.Version)
	assert.Equal(t, []string{"A"}, v.Last.Cast)
}

func TestChannel_RestartedHostWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 0, nil)

	out := make(chan engine.Update, 8)
	require.NoError(t, c.Join(ctx, "a", out))

	first := update(3, engine.Palette["green"], "A", "B")
	first.Epoch = 100
	require.NoError(t, c.Publish(ctx, first))
	recvUpdate(t, out, 100*time.Millisecond)

	// the host reopened: new epoch, counter back at one
	next := update(1, engine.Palette["yellow"], "C")
	next.Epoch = 200
	require.NoError(t, c.Publish(ctx, next))
	u := recvUpdate(t, out, 100*time.Millisecond)
	assert.Equal(t, engine.Stamp{Epoch: 200, Version: 1}, u.Stamp())
	assert.Equal(t, []string{"C"}, u.Cast)

	old := update(4, engine.Palette["red"], "A")
	old.Epoch = 100
	require.ErrorIs(t, c.Publish(ctx, old), engine.ErrStaleUpdate)

	v, err := c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Palette["yellow"], *v.Last.Color)
	assert.Equal(t, []string{"C"}, v.Last.Cast)
}

func TestChannel_PartialUpdateMergesIntoCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 0, nil)

	require.NoError(t, c.Publish(ctx, update(1, engine.Palette["red"], "A")))
	require.NoError(t, c.Publish(ctx, engine.Update{SessionID: "S1", Cast: []string{"A", "B"}, Version: 2}))

	v, err := c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Palette["red"], *v.Last.Color, "color survives an update that omits it")
	assert.Equal(t, []string{"A", "B"}, v.Last.Cast)
}

func TestChannel_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 0, nil)

	clientOut := make(chan engine.Update, 1)
	c.Inbox() <- Join{ClientID: "ch1", Outbox: clientOut}
	c.Inbox() <- Publish{Update: update(1, engine.Palette["red"], "A")}
	c.Inbox() <- Publish{Update: update(2, engine.Palette["red"], "B")}

	reply := make(chan View, 1)
	c.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 100*time.Millisecond)

	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
}

func TestChannel_LeaveAndShutdownCloseOutboxes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 0, nil)

	a := make(chan engine.Update, 1)
	b := make(chan engine.Update, 1)
	require.NoError(t, c.Join(ctx, "a", a))
	require.NoError(t, c.Join(ctx, "b", b))

	require.NoError(t, c.Leave(ctx, "a"))
	_, ok := <-a
	assert.False(t, ok)

	c.Inbox() <- Shutdown{}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("channel did not shut down")
	}
	_, ok = <-b
	assert.False(t, ok)

	require.ErrorIs(t, c.Publish(ctx, update(1, engine.Palette["red"])), ErrClosed)
}

func TestChannel_ExpiresWhenIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expired := make(chan *Channel, 1)
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 30*time.Millisecond, func(c *Channel) { expired <- c })
	require.NoError(t, c.Publish(ctx, update(1, engine.Palette["red"], "A")))

	select {
	case got := <-expired:
		assert.Same(t, c, got)
		assert.Equal(t, "S1", got.SessionID())
	case <-time.After(time.Second):
		t.Fatal("idle channel did not expire")
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expired channel did not stop")
	}

	require.ErrorIs(t, c.Publish(ctx, update(2, engine.Palette["red"])), ErrClosed)
	require.ErrorIs(t, c.Join(ctx, "late", make(chan engine.Update, 1)), ErrClosed)
}

func TestChannel_KeptWhileClientsJoined(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(ctx, zaptest.NewLogger(t), "S1", 30*time.Millisecond, nil)

	out := make(chan engine.Update, 1)
	require.NoError(t, c.Join(ctx, "a", out))

	select {
	case <-c.Done():
		t.Fatal("channel expired with a client joined")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, c.Leave(ctx, "a"))
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("channel did not expire after the last client left")
	}
}
