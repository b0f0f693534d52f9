package relay_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/tilecast/internal/config"
	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/httpapi"
	"github.com/DoyleJ11/tilecast/internal/immersive"
	"github.com/DoyleJ11/tilecast/internal/platform"
	"github.com/DoyleJ11/tilecast/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startRelay(t *testing.T) string {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	b := relay.NewMemoryBroker(ctx, logger, time.Minute)
	srv := httptest.NewServer(httpapi.SetupRoutes(b, logger))
	t.Cleanup(func() {
		srv.Close()
		_ = b.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *relay.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := relay.Dial(ctx, url, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func next(t *testing.T, c *relay.Client) engine.Update {
	t.Helper()
	select {
	case u, ok := <-c.Updates():
		require.True(t, ok, "relay connection closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relay update")
		return engine.Update{}
	}
}

func TestClient_LateJoinerConverges(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()
	host := dial(t, url)
	viewer := dial(t, url)

	red := engine.Palette["red"]
	require.NoError(t, host.Publish(ctx, engine.Update{SessionID: "S1", Color: &red, Cast: []string{"A", "B"}, Version: 1}))
	require.NoError(t, viewer.Join(ctx, "S1"))

	u := next(t, viewer)
	assert.Equal(t, "S1", u.SessionID)
	assert.Equal(t, []string{"A", "B"}, u.Cast)
	assert.Equal(t, red, *u.Color)

	green := engine.Palette["green"]
	require.NoError(t, host.Publish(ctx, engine.Update{SessionID: "S1", Color: &green, Cast: []string{"B"}, Version: 2}))
	u = next(t, viewer)
	assert.Equal(t, 2, u.Version)
	assert.Equal(t, []string{"B"}, u.Cast)
	assert.Equal(t, green, *u.Color)
}

func TestClient_EmptyCastSurvivesTheWire(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()
	host := dial(t, url)
	viewer := dial(t, url)

	require.NoError(t, viewer.Join(ctx, "S1"))
	// give the join a moment so the update arrives as a broadcast
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, host.Publish(ctx, engine.Update{SessionID: "S1", Cast: []string{}, Version: 1}))

	u := next(t, viewer)
	assert.NotNil(t, u.Cast)
	assert.Empty(t, u.Cast)
}

func TestClient_MissingSession(t *testing.T) {
	c := dial(t, startRelay(t))
	require.ErrorIs(t, c.Join(context.Background(), ""), relay.ErrMissingSession)
	require.ErrorIs(t, c.Publish(context.Background(), engine.Update{}), relay.ErrMissingSession)
}

func newViewer(t *testing.T, url string) *immersive.App {
	t.Helper()
	viewer := platform.NewMemory(engine.Participant{ID: "V", ScreenName: "Vic", Role: engine.RoleAttendee}, "S1", platform.ContextInClient)
	app, err := immersive.New(context.Background(), immersive.Deps{
		Logger:   zaptest.NewLogger(t),
		Platform: viewer,
		Relay:    dial(t, url),
		Config:   config.Default(),
	})
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	return app
}

// newHost starts an in-meeting host instance that publishes to the relay.
func newHost(t *testing.T, url string, started time.Time) *immersive.App {
	t.Helper()
	self := engine.Participant{ID: "H", ScreenName: "Hana", Role: engine.RoleHost}
	p := platform.NewMemory(self, "S1", platform.ContextInMeeting)
	p.SetRoster([]engine.Participant{self})
	app, err := immersive.New(context.Background(), immersive.Deps{
		Logger:   zaptest.NewLogger(t),
		Platform: p,
		Relay:    dial(t, url),
		Config:   config.Default(),
		Now:      func() time.Time { return started },
	})
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	return app
}

// A side panel viewer wired to the relay ends up with the host's state.
func TestClient_DrivesViewerApp(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()
	app := newViewer(t, url)

	host := dial(t, url)
	yellow := engine.Palette["yellow"]
	require.NoError(t, host.Publish(ctx, engine.Update{SessionID: "S1", Color: &yellow, Cast: []string{"A", "C"}, Version: 3}))

	require.Eventually(t, func() bool {
		v, err := app.View(ctx)
		return err == nil && v.State.Version == 3
	}, 2*time.Second, 10*time.Millisecond)

	v, err := app.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, yellow, v.State.Color)
	assert.Equal(t, []string{"A", "C"}, v.State.Cast)
}

// The host closes and reopens the app mid-session. The new instance counts
// from one again and its viewers still follow it.
func TestClient_RestartedHostConverges(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()
	viewer := newViewer(t, url)
	started := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	first := newHost(t, url, started)
	require.NoError(t, first.SetColor(ctx, "red"))
	require.NoError(t, first.SetCast(ctx, []string{"A", "B"}))
	require.NoError(t, first.SetColor(ctx, "green"))
	require.Eventually(t, func() bool {
		v, err := viewer.View(ctx)
		return err == nil && v.State.Version == 3 && v.State.Color == engine.Palette["green"]
	}, 2*time.Second, 10*time.Millisecond)
	first.Shutdown()

	second := newHost(t, url, started.Add(time.Minute))
	require.NoError(t, second.SetColor(ctx, "yellow"))
	require.NoError(t, second.SetCast(ctx, []string{"C"}))

	want := engine.Stamp{Epoch: started.Add(time.Minute).UnixNano(), Version: 2}
	require.Eventually(t, func() bool {
		v, err := viewer.View(ctx)
		return err == nil && v.State.Stamp() == want
	}, 2*time.Second, 10*time.Millisecond)

	v, err := viewer.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Palette["yellow"], v.State.Color)
	assert.Equal(t, []string{"C"}, v.State.Cast)

	// the relay's cache follows the new instance too
	late := dial(t, url)
	require.NoError(t, late.Join(ctx, "S1"))
	u := next(t, late)
	assert.Equal(t, want, u.Stamp())
	assert.Equal(t, []string{"C"}, u.Cast)
	assert.Equal(t, engine.Palette["yellow"], *u.Color)
}
