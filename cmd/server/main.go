package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/tilecast/internal/config"
	"github.com/DoyleJ11/tilecast/internal/httpapi"
	"github.com/DoyleJ11/tilecast/internal/logging"
	"github.com/DoyleJ11/tilecast/internal/relay"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("relay stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var broker relay.Broker
	if cfg.RedisURL != "" {
		rb, err := relay.NewRedisBroker(ctx, cfg.RedisURL, cfg.RelayStateTTL, logger)
		if err != nil {
			return err
		}
		broker = rb
		logger.Info("using redis broker")
	} else {
		broker = relay.NewMemoryBroker(ctx, logger, cfg.RelayStateTTL)
		logger.Info("using in-memory broker")
	}
	defer broker.Close()

	// Build the router *with* the broker injected
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(broker, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
