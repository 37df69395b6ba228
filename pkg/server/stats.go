package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/energystats/pkg/coordinator"
	"github.com/raterudder/energystats/pkg/log"
	"github.com/raterudder/energystats/pkg/types"
)

type statsResponse struct {
	SiteID    string         `json:"siteID"`
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"values"`
}

func newStatsResponse(siteID string, snap types.Snapshot) statsResponse {
	return statsResponse{
		SiteID:    siteID,
		Timestamp: snap.Timestamp,
		Values:    snap.Values(),
	}
}

func (s *Server) handleEnergyStats(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(r.URL.Query().Get("site"))
	if !ok {
		writeJSONError(w, "unknown site", http.StatusNotFound)
		return
	}
	snap, ok := c.Latest()
	if !ok {
		writeJSONError(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, newStatsResponse(c.Entry().ID, snap))
}

type sensorResponse struct {
	types.DerivedInfo
	Available bool `json:"available"`
}

type sensorsResponse struct {
	SiteID  string            `json:"siteID"`
	Sources []types.SourceKey `json:"sources"`
	Sensors []sensorResponse  `json:"sensors"`
}

// handleSensors lists every derived key and whether the last tick computed it.
func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(r.URL.Query().Get("site"))
	if !ok {
		writeJSONError(w, "unknown site", http.StatusNotFound)
		return
	}
	snap, _ := c.Latest()

	resp := sensorsResponse{
		SiteID:  c.Entry().ID,
		Sources: c.Entry().BoundSources(),
		Sensors: make([]sensorResponse, 0, len(types.Derived)),
	}
	for _, d := range types.Derived {
		resp.Sensors = append(resp.Sensors, sensorResponse{
			DerivedInfo: d,
			Available:   snap.IsComputed(d.Key),
		})
	}
	writeJSON(w, resp)
}

// handleUpdate runs a tick on demand for external schedulers.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := s.coordinator(r.URL.Query().Get("site"))
	if !ok {
		writeJSONError(w, "unknown site", http.StatusNotFound)
		return
	}
	ctx = log.WithSite(ctx, c.Entry().ID)

	snap, err := c.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, coordinator.ErrSourceNotReady), errors.Is(err, coordinator.ErrClosed):
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, coordinator.ErrTickInProgress):
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	default:
		log.Ctx(ctx).ErrorContext(ctx, "update failed", slog.Any("error", err))
		writeJSONError(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, newStatsResponse(c.Entry().ID, snap))
}
