package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/relay"
	"github.com/DoyleJ11/tilecast/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zaptest.NewLogger(t)
	b := relay.NewMemoryBroker(ctx, logger, 0)
	h := SetupRoutes(b, logger)

	blue := engine.Palette["blue"]
	require.NoError(t, b.Publish(ctx, engine.Update{SessionID: "S1", Color: &blue, Cast: []string{"A"}, Version: 2}))

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"health", "/healthz", http.StatusOK},
		{"known session", "/sessions/S1", http.StatusOK},
		{"unknown session", "/sessions/nope", http.StatusNotFound},
		{"no route", "/lobbies", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/S1", nil))
	var got types.UpdatePayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "S1", got.SessionID)
	assert.Equal(t, []string{"A"}, got.Participants)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	logger := zaptest.NewLogger(t)
	h := SetupRoutes(relay.NewMemoryBroker(context.Background(), logger, 0), logger)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
}
