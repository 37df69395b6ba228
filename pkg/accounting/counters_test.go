package accounting

import (
	"testing"

	"github.com/raterudder/energystats/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersUpdate(t *testing.T) {
	t.Run("Meter Baseline", func(t *testing.T) {
		c := NewCounters()
		var totals []float64
		for _, reading := range []float64{100, 103, 107} {
			require.True(t, c.Update(types.CounterGridIn, types.Number(reading), types.Absent(), 0.1, true))
			v, _ := c.Total(types.CounterGridIn)
			totals = append(totals, v)
		}
		assert.Equal(t, []float64{0, 3, 7}, totals)

		b, ok := c.Baseline(types.CounterGridIn)
		require.True(t, ok)
		assert.Equal(t, 100.0, b)
	})

	t.Run("Meter Below Baseline", func(t *testing.T) {
		c := NewCounters()
		c.Update(types.CounterPV, types.Number(50), types.Absent(), 0, true)
		c.Update(types.CounterPV, types.Number(42), types.Absent(), 0, true)
		v, _ := c.Total(types.CounterPV)
		assert.Equal(t, 0.0, v, "a meter going backwards must not produce a negative total")
	})

	t.Run("Meter Without Baseline", func(t *testing.T) {
		c := NewCounters()
		require.True(t, c.Update(types.CounterCarCharging, types.Number(12.5), types.Absent(), 0, false))
		v, _ := c.Total(types.CounterCarCharging)
		assert.Equal(t, 12.5, v)
		_, ok := c.Baseline(types.CounterCarCharging)
		assert.False(t, ok)

		c.Update(types.CounterCarCharging, types.Number(-3), types.Absent(), 0, false)
		v, _ = c.Total(types.CounterCarCharging)
		assert.Equal(t, 0.0, v)
	})

	t.Run("Meter Preferred Over Power", func(t *testing.T) {
		c := NewCounters()
		c.Update(types.CounterGridIn, types.Number(10), types.Number(5000), 1, true)
		c.Update(types.CounterGridIn, types.Number(11), types.Number(5000), 1, true)
		v, _ := c.Total(types.CounterGridIn)
		assert.Equal(t, 1.0, v)
	})

	t.Run("Power Integration", func(t *testing.T) {
		c := NewCounters()
		require.True(t, c.Update(types.CounterPV, types.Absent(), types.Number(2000), 0.5, true))
		require.True(t, c.Update(types.CounterPV, types.Absent(), types.Number(2000), 0.5, true))
		v, _ := c.Total(types.CounterPV)
		assert.InDelta(t, 2.0, v, 1e-12)
	})

	t.Run("Negative Power Ignored", func(t *testing.T) {
		c := NewCounters()
		c.Update(types.CounterGridOut, types.Absent(), types.Number(1000), 1, true)
		assert.False(t, c.Update(types.CounterGridOut, types.Absent(), types.Number(-500), 1, true))
		v, _ := c.Total(types.CounterGridOut)
		assert.Equal(t, 1.0, v)
	})

	t.Run("Flags Are Not Energy", func(t *testing.T) {
		c := NewCounters()
		assert.False(t, c.Update(types.CounterGridIn, types.Flag(true), types.Flag(true), 1, true))
		_, ok := c.Total(types.CounterGridIn)
		assert.False(t, ok)
	})

	t.Run("No Elapsed Time", func(t *testing.T) {
		c := NewCounters()
		assert.False(t, c.Update(types.CounterPV, types.Absent(), types.Number(1000), 0, true))
		_, ok := c.Total(types.CounterPV)
		assert.False(t, ok)
	})

	t.Run("No Data", func(t *testing.T) {
		c := NewCounters()
		c.Set(types.CounterPV, 4)
		assert.False(t, c.Update(types.CounterPV, types.Absent(), types.Absent(), 1, true))
		v, _ := c.Total(types.CounterPV)
		assert.Equal(t, 4.0, v)
	})
}

func TestCountersHome(t *testing.T) {
	t.Run("Derived", func(t *testing.T) {
		c := NewCounters()
		c.Set(types.CounterGridIn, 5)
		c.Set(types.CounterGridOut, 1)
		c.Set(types.CounterPV, 3)
		require.True(t, c.UpdateHome())
		v, _ := c.Total(types.CounterHome)
		assert.Equal(t, 7.0, v)
	})

	t.Run("Missing Export Counts As Zero", func(t *testing.T) {
		c := NewCounters()
		c.Set(types.CounterGridIn, 2)
		c.Set(types.CounterPV, 1)
		require.True(t, c.UpdateHome())
		v, _ := c.Total(types.CounterHome)
		assert.Equal(t, 3.0, v)
	})

	t.Run("Not Clamped", func(t *testing.T) {
		c := NewCounters()
		c.Set(types.CounterGridIn, 0)
		c.Set(types.CounterPV, 1)
		c.Set(types.CounterGridOut, 2)
		require.True(t, c.UpdateHome())
		v, _ := c.Total(types.CounterHome)
		assert.Equal(t, -1.0, v)
	})

	t.Run("Missing PV Counts As Zero", func(t *testing.T) {
		c := NewCounters()
		c.Set(types.CounterGridIn, 2)
		c.Set(types.CounterGridOut, 0.5)
		require.True(t, c.UpdateHome())
		v, _ := c.Total(types.CounterHome)
		assert.Equal(t, 1.5, v)
	})

	t.Run("PV Only", func(t *testing.T) {
		c := NewCounters()
		c.Set(types.CounterPV, 4)
		require.True(t, c.UpdateHome())
		v, _ := c.Total(types.CounterHome)
		assert.Equal(t, 4.0, v)
	})

	t.Run("Needs Import Or PV", func(t *testing.T) {
		c := NewCounters()
		c.Set(types.CounterGridOut, 2)
		assert.False(t, c.UpdateHome())
		_, ok := c.Total(types.CounterHome)
		assert.False(t, ok)
	})
}

func TestCountersExportRestore(t *testing.T) {
	c := NewCounters()
	c.Update(types.CounterGridIn, types.Number(1234.5678901234), types.Absent(), 0, true)
	c.Update(types.CounterGridIn, types.Number(1240.1), types.Absent(), 0, true)
	c.Update(types.CounterPV, types.Absent(), types.Number(333.3), 0.0013888888888888889, true)

	totals, baselines := c.Export()

	restored := NewCounters()
	restored.Set(types.CounterCarCharging, 99)
	restored.Restore(totals, baselines)

	assert.Equal(t, c.Totals(), restored.Totals())
	b1, _ := c.Baseline(types.CounterGridIn)
	b2, _ := restored.Baseline(types.CounterGridIn)
	assert.Equal(t, b1, b2)
	_, ok := restored.Total(types.CounterCarCharging)
	assert.False(t, ok, "restore replaces existing totals")

	restored.Reset()
	assert.Empty(t, restored.Totals())
	_, ok = restored.Baseline(types.CounterGridIn)
	assert.False(t, ok)
}
