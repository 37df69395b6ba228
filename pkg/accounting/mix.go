package accounting

import (
	"github.com/raterudder/energystats/pkg/types"
)

// MixInput is the power picture used to attribute one tick of energy.
type MixInput struct {
	PVPower   types.Sample
	GridPower types.Sample
	// BatteryPower adds to the load when positive.
	BatteryPower types.Sample
	// BatteryPVFraction splits the battery's contribution between PV and
	// grid. Nil means unknown, which attributes it all to grid.
	BatteryPVFraction *float64
}

// Mixes accumulates PV- and grid-attributed energy (Wh) per mix key.
type Mixes struct {
	pv   map[types.MixKey]float64
	grid map[types.MixKey]float64
}

// NewMixes returns empty mix accumulators.
func NewMixes() *Mixes {
	return &Mixes{
		pv:   make(map[types.MixKey]float64),
		grid: make(map[types.MixKey]float64),
	}
}

// Add attributes elapsedHours worth of energy to key.
func (m *Mixes) Add(key types.MixKey, in MixInput, elapsedHours float64) {
	pvPower, _ := in.PVPower.Numeric()
	gridPower, _ := in.GridPower.Numeric()

	if battery, ok := in.BatteryPower.Numeric(); ok && battery > 0 {
		if in.BatteryPVFraction != nil {
			f := *in.BatteryPVFraction
			gridPower += (1 - f) * battery
			pvPower += f * battery
		} else {
			gridPower += battery
		}
	}

	m.pv[key] += max(0, pvPower) * elapsedHours
	m.grid[key] += max(0, gridPower) * elapsedHours
}

// Ratio returns the PV share of key's energy, 0 when nothing was accumulated.
func (m *Mixes) Ratio(key types.MixKey) float64 {
	pv := m.pv[key]
	total := pv + m.grid[key]
	if total <= 0 {
		return 0
	}
	return pv / total
}

// Sums returns the PV and grid accumulators of key.
func (m *Mixes) Sums(key types.MixKey) (pv, grid float64) {
	return m.pv[key], m.grid[key]
}

// Reset clears every accumulator.
func (m *Mixes) Reset() {
	clear(m.pv)
	clear(m.grid)
}

// Export writes the accumulators into the persisted form.
func (m *Mixes) Export() (pv, grid map[string]float64) {
	pv = make(map[string]float64, len(m.pv))
	for k, v := range m.pv {
		pv[string(k)] = v
	}
	grid = make(map[string]float64, len(m.grid))
	for k, v := range m.grid {
		grid[string(k)] = v
	}
	return pv, grid
}

// Restore replaces the accumulators with persisted values.
func (m *Mixes) Restore(pv, grid map[string]float64) {
	m.Reset()
	for k, v := range pv {
		m.pv[types.MixKey(k)] = v
	}
	for k, v := range grid {
		m.grid[types.MixKey(k)] = v
	}
}
