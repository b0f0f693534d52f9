// Command sim runs a host and a side-panel viewer against a relay on
// in-memory platforms and prints what the host's surface ends up showing.
//
//	go run ./cmd/sim -relay ws://localhost:8080/ws -cast A,B,C -color red
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/DoyleJ11/tilecast/internal/config"
	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/immersive"
	"github.com/DoyleJ11/tilecast/internal/logging"
	"github.com/DoyleJ11/tilecast/internal/platform"
	"github.com/DoyleJ11/tilecast/internal/relay"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	relayURL := flag.String("relay", "ws://localhost:8080/ws", "relay websocket URL")
	cast := flag.String("cast", "A,B,C", "comma separated participant ids")
	color := flag.String("color", "blue", "palette name or #rrggbb")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run(ctx, cfg, logger, *relayURL, strings.Split(*cast, ","), engine.Color(*color)); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, url string, cast []string, color engine.Color) error {
	session := uuid.NewString()

	var roster []engine.Participant
	for _, id := range engine.NormalizeCast(cast) {
		roster = append(roster, engine.Participant{ID: id, ScreenName: "Guest " + id, Role: engine.RoleAttendee})
	}
	hostSelf := engine.Participant{ID: "host", ScreenName: "Host", Role: engine.RoleHost}
	hostSurface := platform.NewMemory(hostSelf, session, platform.ContextInMeeting)
	hostSurface.SetRoster(append([]engine.Participant{hostSelf}, roster...))

	hostRelay, err := relay.Dial(ctx, url, logger)
	if err != nil {
		return err
	}
	defer hostRelay.Close()
	host, err := immersive.New(ctx, immersive.Deps{Logger: logger.With(zap.String("party", "host")), Platform: hostSurface, Relay: hostRelay, Config: cfg})
	if err != nil {
		return err
	}
	defer host.Shutdown()

	viewerRelay, err := relay.Dial(ctx, url, logger)
	if err != nil {
		return err
	}
	defer viewerRelay.Close()
	viewerSelf := engine.Participant{ID: "panel", ScreenName: "Panel", Role: engine.RoleAttendee}
	viewer, err := immersive.New(ctx, immersive.Deps{
		Logger:   logger.With(zap.String("party", "viewer")),
		Platform: platform.NewMemory(viewerSelf, session, platform.ContextInClient),
		Relay:    viewerRelay,
		Config:   cfg,
	})
	if err != nil {
		return err
	}
	defer viewer.Shutdown()

	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := host.SetColor(ctx, color); err != nil {
		return fmt.Errorf("set color: %w", err)
	}
	if err := host.SetCast(ctx, cast); err != nil {
		return fmt.Errorf("set cast: %w", err)
	}
	want, err := host.View(ctx)
	if err != nil {
		return err
	}

	for {
		got, err := viewer.View(ctx)
		if err != nil {
			return err
		}
		if got.State.Stamp() == want.State.Stamp() {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("viewer stuck at %s, host at %s: %w", got.State.Stamp(), want.State.Stamp(), ctx.Err())
		case <-time.After(20 * time.Millisecond):
		}
	}

	fmt.Printf("session %s v%d color %s\n", session, want.State.Version, want.State.Color)
	videos := hostSurface.Videos()
	for _, slot := range want.Drawn {
		id := want.State.ParticipantAt(slot)
		v := videos[id]
		fmt.Printf("slot %2d  %-8s  %4dx%-4d at (%d,%d) z=%d %s\n", slot, id, v.Width, v.Height, v.X, v.Y, v.ZIndex, v.FitMode)
	}
	if missing := slices.DeleteFunc(slices.Clone(want.State.Cast), func(id string) bool { _, ok := videos[id]; return ok }); len(missing) > 0 {
		fmt.Printf("not placed: %s\n", strings.Join(missing, ", "))
	}
	return nil
}
