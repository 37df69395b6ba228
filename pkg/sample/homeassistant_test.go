package sample

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeAssistant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/states/sensor.grid_power":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"entity_id":"sensor.grid_power","state":"1500.25","attributes":{"unit_of_measurement":"W"}}`))
		case "/api/states/sensor.broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/api/states/sensor.garbage":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	h := NewHomeAssistant(server.URL+"/", "secret", 5*time.Second)

	t.Run("Found", func(t *testing.T) {
		state, ok, err := h.State(ctx, "sensor.grid_power")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1500.25", state)
	})

	t.Run("Not Found", func(t *testing.T) {
		state, ok, err := h.State(ctx, "sensor.missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, state)
	})

	t.Run("Server Error", func(t *testing.T) {
		_, ok, err := h.State(ctx, "sensor.broken")
		assert.ErrorContains(t, err, "unexpected status 500")
		assert.False(t, ok)
	})

	t.Run("Bad Body", func(t *testing.T) {
		_, _, err := h.State(ctx, "sensor.garbage")
		assert.ErrorContains(t, err, "failed to decode")
	})
}
