package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/benbjohnson/clock"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energystats/pkg/common"
	"github.com/raterudder/energystats/pkg/config"
	"github.com/raterudder/energystats/pkg/coordinator"
	"github.com/raterudder/energystats/pkg/log"
	"github.com/raterudder/energystats/pkg/metrics"
	"github.com/raterudder/energystats/pkg/publish"
	"github.com/raterudder/energystats/pkg/sample"
	"github.com/raterudder/energystats/pkg/storage"
	"github.com/raterudder/energystats/pkg/types"
)

// Server serves the published snapshots over HTTP and drives the per-entry
// coordinators on a fixed interval.
type Server struct {
	entries   *config.Entries
	source    sample.StateSource
	storage   storage.Database
	publisher *publish.Broadcaster
	metrics   *metrics.Metrics
	clock     clock.Clock

	// reconfigMu serializes SetEntries
	reconfigMu   sync.Mutex
	coordMu      sync.RWMutex
	coordinators map[string]*coordinator.Coordinator
	// siteIDs keeps the configured order
	siteIDs []string

	listenAddr     string
	updateInterval time.Duration
	release        string
	serverName     string
	httpServer     *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(entries *config.Entries, source sample.StateSource, db storage.Database, pub *publish.Broadcaster, m *metrics.Metrics) *Server {
	srv := &Server{
		entries:      entries,
		source:       source,
		storage:      db,
		publisher:    pub,
		metrics:      m,
		clock:        clock.New(),
		coordinators: make(map[string]*coordinator.Coordinator),
		serverName:   "energystats",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	updateInterval := lflag.Duration("update-interval", 5*time.Second, "How often each entry ticks (0 disables the internal scheduler)")
	release := lflag.String("release", "production", "Release environment (production or staging)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.updateInterval = *updateInterval
		srv.release = *release
		srv.SetEntries(entries.List())
	})

	return srv
}

// SetEntries replaces the configured entries. Every coordinator is recreated
// so changed bindings or reset times take effect; accounting state carries
// over through storage. The old coordinators are closed first so their last
// save lands before a new coordinator loads.
func (s *Server) SetEntries(list []types.Entry) {
	s.reconfigMu.Lock()
	defer s.reconfigMu.Unlock()

	coords := make(map[string]*coordinator.Coordinator, len(list))
	siteIDs := make([]string, 0, len(list))
	for _, e := range list {
		opts := []coordinator.Option{
			coordinator.WithClock(s.clock),
			coordinator.WithMetrics(s.metrics),
		}
		if s.publisher != nil {
			opts = append(opts, coordinator.WithPublisher(s.publisher))
		}
		coords[e.ID] = coordinator.New(e, s.source, s.storage, opts...)
		siteIDs = append(siteIDs, e.ID)
	}

	for _, old := range s.allCoordinators() {
		old.Close()
	}

	s.coordMu.Lock()
	s.coordinators = coords
	s.siteIDs = siteIDs
	s.coordMu.Unlock()

	if s.entries != nil {
		s.entries.Set(list)
	}
}

// Reload re-reads the entries file and recreates the coordinators. On error
// the running configuration is kept.
func (s *Server) Reload(ctx context.Context) error {
	list, err := s.entries.Reload()
	if err != nil {
		return fmt.Errorf("failed to reload entries: %w", err)
	}
	s.SetEntries(list)
	log.Ctx(ctx).InfoContext(ctx, "reloaded entries", slog.Int("count", len(list)))
	return nil
}

func (s *Server) coordinator(siteID string) (*coordinator.Coordinator, bool) {
	s.coordMu.RLock()
	defer s.coordMu.RUnlock()
	if siteID == "" && len(s.siteIDs) == 1 {
		siteID = s.siteIDs[0]
	}
	c, ok := s.coordinators[siteID]
	return c, ok
}

func (s *Server) allCoordinators() []*coordinator.Coordinator {
	s.coordMu.RLock()
	defer s.coordMu.RUnlock()
	out := make([]*coordinator.Coordinator, 0, len(s.siteIDs))
	for _, id := range s.siteIDs {
		out = append(out, s.coordinators[id])
	}
	return out
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/energy_stats", s.handleEnergyStats)
	apiMux.HandleFunc("GET /api/sensors", s.handleSensors)
	apiMux.HandleFunc("POST /api/update", s.handleUpdate)
	apiMux.HandleFunc("GET /api/version", s.handleVersion)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiMux)
	if s.publisher != nil {
		// websockets can't be gzipped
		mux.Handle("GET /api/ws", s.publisher.Hub())
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/healthz", s.handleHealthz)

	compressed := gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))
	return s.revisionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/ws" {
			mux.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	}))
}

// Run starts the HTTP server and the scheduler and blocks until the context
// is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr), slog.String("release", s.release))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	schedCtx, stopScheduler := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runScheduler(schedCtx)
	}()
	defer func() {
		stopScheduler()
		wg.Wait()
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Version string `json:"version"`
		Release string `json:"release"`
	}{
		Version: common.Version(),
		Release: s.release,
	})
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
