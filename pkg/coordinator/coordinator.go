// Package coordinator runs the per-site accounting tick.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/raterudder/energystats/pkg/accounting"
	"github.com/raterudder/energystats/pkg/log"
	"github.com/raterudder/energystats/pkg/metrics"
	"github.com/raterudder/energystats/pkg/publish"
	"github.com/raterudder/energystats/pkg/sample"
	"github.com/raterudder/energystats/pkg/types"
)

var (
	// ErrSourceNotReady is returned when a bound source has no usable value.
	// The tick made no changes and should be retried on the next interval.
	ErrSourceNotReady = errors.New("source not ready")
	// ErrTickInProgress is returned when a tick is requested while another
	// one is still running.
	ErrTickInProgress = errors.New("tick already in progress")
	// ErrClosed is returned by Tick after Close.
	ErrClosed = errors.New("coordinator closed")
)

// DefaultPublishTimeout bounds how long a tick waits on its publisher.
const DefaultPublishTimeout = 5 * time.Second

// Phase is the lifecycle phase of a Coordinator.
type Phase int

const (
	// PhaseUninitialized means nothing has been loaded yet.
	PhaseUninitialized Phase = iota
	// PhaseActive means state was loaded or initialized and ticks run normally.
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseActive:
		return "active"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Store is the persistence the coordinator needs.
type Store interface {
	GetState(ctx context.Context, siteID string) (types.PersistedState, bool, error)
	SetState(ctx context.Context, siteID string, state types.PersistedState) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) {
		co.clock = c
	}
}

// WithMetrics records tick outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) {
		co.metrics = m
	}
}

// WithPublisher sends every successful snapshot to p.
func WithPublisher(p publish.Publisher) Option {
	return func(co *Coordinator) {
		co.publisher = p
	}
}

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(co *Coordinator) {
		co.publishTimeout = d
	}
}

// Coordinator owns the accounting state of one configured entry. Ticks are
// serialized; an overlapping Tick returns ErrTickInProgress.
type Coordinator struct {
	entry     types.Entry
	reader    *sample.Reader
	store     Store
	clock     clock.Clock
	reset     accounting.ResetTime
	metrics   *metrics.Metrics
	publisher publish.Publisher

	publishTimeout time.Duration

	// mu guards the accounting state and is held for the whole read, update
	// and save of a tick. Publishing happens after it is released.
	mu        sync.Mutex
	closed    bool
	phase     Phase
	counters  *accounting.Counters
	mixes     *accounting.Mixes
	lastReset time.Time
	lastTick  time.Time

	latestMu sync.RWMutex
	latest   *types.Snapshot
}

// New creates a Coordinator for entry reading from source and persisting to
// store.
func New(entry types.Entry, source sample.StateSource, store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		entry:    entry,
		reader:   sample.NewReader(source, entry.Sources),
		store:    store,
		clock:    clock.New(),
		reset:    accounting.ResetTimeOrMidnight(entry.DailyReset),
		counters: accounting.NewCounters(),
		mixes:    accounting.NewMixes(),

		publishTimeout: DefaultPublishTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Entry returns the entry the coordinator was created for.
func (c *Coordinator) Entry() types.Entry {
	return c.entry
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Latest returns the snapshot of the last successful tick.
func (c *Coordinator) Latest() (types.Snapshot, bool) {
	c.latestMu.RLock()
	defer c.latestMu.RUnlock()
	if c.latest == nil {
		return types.Snapshot{}, false
	}
	return *c.latest, true
}

// State returns the current persistable state.
func (c *Coordinator) State() types.PersistedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.export()
}

// Close waits for an in-flight tick, including its save, and makes every
// later Tick return ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Tick runs one accounting cycle and returns the published snapshot.
func (c *Coordinator) Tick(ctx context.Context) (types.Snapshot, error) {
	if !c.mu.TryLock() {
		c.metrics.ObserveTick(c.entry.ID, metrics.ResultInProgress, 0)
		return types.Snapshot{}, ErrTickInProgress
	}
	if c.closed {
		c.mu.Unlock()
		return types.Snapshot{}, ErrClosed
	}

	ctx = log.WithSite(ctx, c.entry.ID)
	start := c.clock.Now()

	snap, err := c.tick(ctx)
	c.mu.Unlock()

	switch {
	case err == nil:
		c.metrics.ObserveTick(c.entry.ID, metrics.ResultSuccess, c.clock.Since(start))
	case errors.Is(err, ErrSourceNotReady):
		c.metrics.ObserveTick(c.entry.ID, metrics.ResultNotReady, c.clock.Since(start))
	default:
		c.metrics.ObserveTick(c.entry.ID, metrics.ResultError, c.clock.Since(start))
	}
	if err != nil {
		return snap, err
	}

	c.publish(ctx, snap)
	return snap, nil
}

// publish hands snap to the publisher without holding the tick lock, so a
// slow consumer never blocks the next tick.
func (c *Coordinator) publish(ctx context.Context, snap types.Snapshot) {
	if c.publisher == nil {
		return
	}
	if c.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.publishTimeout)
		defer cancel()
	}
	if err := c.publisher.Publish(ctx, c.entry.ID, snap); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to publish snapshot", slog.Any("error", err))
	}
}

func (c *Coordinator) tick(ctx context.Context) (types.Snapshot, error) {
	if c.phase == PhaseUninitialized {
		c.load(ctx)
		c.phase = PhaseActive
	}

	now := c.clock.Now()
	var elapsedHours float64
	if !c.lastTick.IsZero() {
		elapsedHours = now.Sub(c.lastTick).Hours()
	}
	c.lastTick = now

	// every bound source must be present before anything is mutated
	samples := make(map[types.SourceKey]types.Sample, len(types.Sources))
	for _, src := range types.Sources {
		entityID, ok := c.reader.Bound(src.Key)
		if !ok {
			samples[src.Key] = types.Absent()
			continue
		}
		s := c.reader.Read(ctx, src.Key)
		if !s.Present() {
			log.Ctx(ctx).DebugContext(ctx, "source not ready", slog.String("key", string(src.Key)), slog.String("entityID", entityID))
			return types.Snapshot{}, fmt.Errorf("%w: %s (%s)", ErrSourceNotReady, entityID, src.Key)
		}
		samples[src.Key] = s
	}
	if err := ctx.Err(); err != nil {
		return types.Snapshot{}, fmt.Errorf("tick cancelled: %w", err)
	}

	snap := types.Snapshot{
		Timestamp:        now,
		GridPower:        floatPtr(samples[types.SourceGridPower]),
		PVPower:          floatPtr(samples[types.SourcePVPower]),
		BatteryPower:     floatPtr(samples[types.SourceBatteryPower]),
		CarChargingPower: floatPtr(samples[types.SourceCarChargingPower]),
		CarSOC:           floatPtr(samples[types.SourceCarSOC]),
	}
	if v, ok := samples[types.SourceCarConnected].Float(); ok {
		connected := int(v)
		snap.CarConnected = &connected
	}

	var computed []string
	mark := func(key string, ok bool) {
		if ok {
			computed = append(computed, key)
		}
	}

	gridPower := samples[types.SourceGridPower]
	exportPower := types.Absent()
	if v, ok := gridPower.Numeric(); ok {
		exportPower = types.Number(-v)
	}
	mark(string(types.CounterGridIn), c.counters.Update(types.CounterGridIn, samples[types.SourceGridInEnergy], gridPower, elapsedHours, true))
	mark(string(types.CounterGridOut), c.counters.Update(types.CounterGridOut, samples[types.SourceGridOutEnergy], exportPower, elapsedHours, true))
	mark(string(types.CounterPV), c.counters.Update(types.CounterPV, samples[types.SourcePVEnergy], samples[types.SourcePVPower], elapsedHours, true))
	// car energy meters restart per session on their own
	mark(string(types.CounterCarCharging), c.counters.Update(types.CounterCarCharging, samples[types.SourceCarChargingEnergy], samples[types.SourceCarChargingPower], elapsedHours, false))
	if v, ok := samples[types.SourceBatteryEnergy].Numeric(); ok {
		c.counters.Set(types.CounterBattery, v)
		mark(string(types.CounterBattery), true)
	}
	mark(string(types.CounterHome), c.counters.UpdateHome())

	ratios := c.updateMixes(samples, elapsedHours)
	for k := range ratios {
		computed = append(computed, k.RatioKey())
	}

	if c.reset.Due(now, c.lastReset) {
		log.Ctx(ctx).InfoContext(ctx, "resetting daily values", slog.String("resetTime", c.reset.String()))
		c.counters.Reset()
		c.mixes.Reset()
		c.lastReset = now
		c.metrics.ObserveReset(c.entry.ID)
		// published ratios follow the cleared accumulators
		for k := range ratios {
			ratios[k] = 0
		}
	}

	snap.Counters = c.counters.Totals()
	// counters computed this tick stay published even when just reset
	for _, key := range computed {
		if ck := types.CounterKey(key); isCounter(ck) {
			if _, ok := snap.Counters[ck]; !ok {
				snap.Counters[ck] = 0
			}
		}
	}
	snap.Ratios = ratios
	snap.Computed = computed

	c.save(ctx)

	c.latestMu.Lock()
	c.latest = &snap
	c.latestMu.Unlock()

	c.metrics.ObserveSnapshot(c.entry.ID, snap)

	log.Ctx(ctx).DebugContext(ctx, "tick complete", slog.Any("values", snap.Values()), slog.Any("computed", computed))
	return snap, nil
}

// updateMixes runs battery, home and car mixes in order. The battery ratio,
// when updated this tick, is the PV fraction of the later stages.
func (c *Coordinator) updateMixes(samples map[types.SourceKey]types.Sample, elapsedHours float64) map[types.MixKey]float64 {
	ratios := make(map[types.MixKey]float64, 3)
	in := accounting.MixInput{
		PVPower:      samples[types.SourcePVPower],
		GridPower:    samples[types.SourceGridPower],
		BatteryPower: samples[types.SourceBatteryPower],
	}

	if battery, ok := in.BatteryPower.Numeric(); ok && battery > 0 {
		c.mixes.Add(types.MixBattery, accounting.MixInput{
			PVPower:   in.PVPower,
			GridPower: in.GridPower,
		}, elapsedHours)
		fraction := c.mixes.Ratio(types.MixBattery)
		ratios[types.MixBattery] = fraction
		in.BatteryPVFraction = &fraction
	}

	c.mixes.Add(types.MixHome, in, elapsedHours)
	ratios[types.MixHome] = c.mixes.Ratio(types.MixHome)

	if samples[types.SourceCarChargingPower].Present() {
		c.mixes.Add(types.MixCarCharging, in, elapsedHours)
		ratios[types.MixCarCharging] = c.mixes.Ratio(types.MixCarCharging)
	}
	return ratios
}

func (c *Coordinator) load(ctx context.Context) {
	c.counters.Reset()
	c.mixes.Reset()
	c.lastReset = c.clock.Now()

	state, ok, err := c.store.GetState(ctx, c.entry.ID)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to load state, starting empty", slog.Any("error", err))
		return
	}
	if !ok {
		log.Ctx(ctx).InfoContext(ctx, "no saved state, starting empty")
		return
	}
	c.restore(ctx, state)
}

func (c *Coordinator) restore(ctx context.Context, state types.PersistedState) {
	c.counters.Restore(state.EnergySums, state.Baselines)
	c.mixes.Restore(state.PVSums, state.GridSums)
	if t, ok := ParseTimestamp(state.LastReset, c.clock.Now().Location()); ok {
		c.lastReset = t
	} else {
		log.Ctx(ctx).WarnContext(ctx, "invalid last reset in saved state", slog.String("lastReset", state.LastReset))
		c.lastReset = c.clock.Now()
	}
}

func (c *Coordinator) export() types.PersistedState {
	totals, baselines := c.counters.Export()
	pv, grid := c.mixes.Export()
	var lastReset string
	if !c.lastReset.IsZero() {
		lastReset = c.lastReset.Format(time.RFC3339Nano)
	}
	return types.PersistedState{
		EnergySums: totals,
		PVSums:     pv,
		GridSums:   grid,
		Baselines:  baselines,
		LastReset:  lastReset,
	}
}

func (c *Coordinator) save(ctx context.Context) {
	if err := c.store.SetState(ctx, c.entry.ID, c.export()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save state", slog.Any("error", err))
		c.metrics.ObserveSaveFailure(c.entry.ID)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. Timestamps without a zone are
// read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isCounter(k types.CounterKey) bool {
	switch k {
	case types.CounterGridIn, types.CounterGridOut, types.CounterPV, types.CounterHome, types.CounterCarCharging, types.CounterBattery:
		return true
	}
	return false
}

func floatPtr(s types.Sample) *float64 {
	if v, ok := s.Numeric(); ok {
		return &v
	}
	return nil
}
