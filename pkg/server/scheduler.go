package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/raterudder/energystats/pkg/coordinator"
	"github.com/raterudder/energystats/pkg/log"
)

// runScheduler ticks every coordinator each update interval until ctx is
// done. Coordinators are looked up on every interval so SetEntries takes
// effect without a restart.
func (s *Server) runScheduler(ctx context.Context) {
	if s.updateInterval <= 0 {
		log.Ctx(ctx).InfoContext(ctx, "internal scheduler disabled")
		return
	}

	ticker := s.clock.Ticker(s.updateInterval)
	defer ticker.Stop()

	s.tickAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickAll(ctx)
		}
	}
}

// tickAll runs one tick of every coordinator concurrently and waits for them.
func (s *Server) tickAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range s.allCoordinators() {
		wg.Add(1)
		go func(c *coordinator.Coordinator) {
			defer wg.Done()
			s.tickOne(log.WithSite(ctx, c.Entry().ID), c)
		}(c)
	}
	wg.Wait()
}

func (s *Server) tickOne(ctx context.Context, c *coordinator.Coordinator) {
	_, err := c.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, coordinator.ErrSourceNotReady):
		log.Ctx(ctx).DebugContext(ctx, "tick skipped, source not ready", slog.Any("error", err))
	case errors.Is(err, coordinator.ErrTickInProgress):
		log.Ctx(ctx).DebugContext(ctx, "tick skipped, previous tick still running")
	case errors.Is(err, coordinator.ErrClosed):
		log.Ctx(ctx).DebugContext(ctx, "tick skipped, entry is being reconfigured")
	default:
		log.Ctx(ctx).WarnContext(ctx, "tick failed", slog.Any("error", err))
	}
}
