// Package accounting turns instantaneous power and cumulative meter samples
// into daily energy counters and PV/grid mix ratios.
package accounting

import (
	"github.com/raterudder/energystats/pkg/types"
)

// Counters holds the running energy totals (kWh) and the meter baselines
// captured since the last reset.
type Counters struct {
	totals    map[types.CounterKey]float64
	baselines map[types.CounterKey]float64
}

// NewCounters returns empty counters.
func NewCounters() *Counters {
	return &Counters{
		totals:    make(map[types.CounterKey]float64),
		baselines: make(map[types.CounterKey]float64),
	}
}

// Update reconciles one counter for this tick and reports whether it had data.
//
// A present meter reading is authoritative: the total becomes the reading
// minus the baseline, where the first reading seen after a reset becomes the
// baseline. Without a baseline the reading is the total. Otherwise a positive
// power reading in watts is integrated over elapsedHours. With neither, the
// counter is left untouched. On/off samples are never energy or power.
func (c *Counters) Update(key types.CounterKey, meter, power types.Sample, elapsedHours float64, useBaseline bool) bool {
	if reading, ok := meter.Numeric(); ok {
		var baseline float64
		if useBaseline {
			b, ok := c.baselines[key]
			if !ok {
				b = reading
				c.baselines[key] = b
			}
			baseline = b
		}
		c.totals[key] = max(0, reading-baseline)
		return true
	}

	if watts, ok := power.Numeric(); ok && watts > 0 && elapsedHours > 0 {
		c.totals[key] += (watts / 1000) * elapsedHours
		return true
	}
	return false
}

// Set stores a pass-through total.
func (c *Counters) Set(key types.CounterKey, v float64) {
	c.totals[key] = v
}

// Total returns the current total of key.
func (c *Counters) Total(key types.CounterKey) (float64, bool) {
	v, ok := c.totals[key]
	return v, ok
}

// Baseline returns the captured baseline of key.
func (c *Counters) Baseline(key types.CounterKey) (float64, bool) {
	v, ok := c.baselines[key]
	return v, ok
}

// UpdateHome recomputes home consumption as grid import + PV - grid export
// from the current totals. It needs grid import or PV; any missing total
// counts as zero. The result is not clamped.
func (c *Counters) UpdateHome() bool {
	gridIn, hasGridIn := c.totals[types.CounterGridIn]
	pv, hasPV := c.totals[types.CounterPV]
	if !hasGridIn && !hasPV {
		return false
	}
	c.totals[types.CounterHome] = gridIn + pv - c.totals[types.CounterGridOut]
	return true
}

// Totals returns a copy of every total.
func (c *Counters) Totals() map[types.CounterKey]float64 {
	out := make(map[types.CounterKey]float64, len(c.totals))
	for k, v := range c.totals {
		out[k] = v
	}
	return out
}

// Reset clears every total and baseline.
func (c *Counters) Reset() {
	clear(c.totals)
	clear(c.baselines)
}

// Export writes the counters into the persisted form.
func (c *Counters) Export() (totals, baselines map[string]float64) {
	totals = make(map[string]float64, len(c.totals))
	for k, v := range c.totals {
		totals[string(k)] = v
	}
	baselines = make(map[string]float64, len(c.baselines))
	for k, v := range c.baselines {
		baselines[string(k)] = v
	}
	return totals, baselines
}

// Restore replaces the counters with persisted totals and baselines.
func (c *Counters) Restore(totals, baselines map[string]float64) {
	c.Reset()
	for k, v := range totals {
		c.totals[types.CounterKey(k)] = v
	}
	for k, v := range baselines {
		c.baselines[types.CounterKey(k)] = v
	}
}
