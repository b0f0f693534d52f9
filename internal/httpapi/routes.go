package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/tilecast/internal/relay"
	"github.com/DoyleJ11/tilecast/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(b relay.Broker, logger *zap.Logger) http.Handler {
	logger = logger.Named("http")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(b, logger))
	r.With(requestLogger(logger)).Get("/sessions/{sessionID}", GetSession(b, logger))
	return r
}
