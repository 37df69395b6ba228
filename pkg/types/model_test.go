package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceKey(t *testing.T) {
	for _, info := range Sources {
		k, err := ParseSourceKey(string(info.Key))
		require.NoError(t, err)
		assert.Equal(t, info.Key, k)
	}
	_, err := ParseSourceKey("wind_power")
	assert.EqualError(t, err, "unknown source key: wind_power")
}

func TestEntryValidate(t *testing.T) {
	valid := Entry{
		ID: "home",
		Sources: map[SourceKey]string{
			SourceGridPower: "sensor.grid",
			SourcePVPower:   "sensor.pv",
			SourceCarSOC:    "",
		},
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, []SourceKey{SourceGridPower, SourcePVPower}, valid.BoundSources())
	_, ok := valid.Source(SourceCarSOC)
	assert.False(t, ok)

	t.Run("Missing ID", func(t *testing.T) {
		e := valid
		e.ID = ""
		assert.EqualError(t, e.Validate(), "entry id cannot be empty")
	})

	t.Run("Unbound Required", func(t *testing.T) {
		e := Entry{ID: "home", Sources: map[SourceKey]string{
			SourceGridPower: "sensor.grid",
			SourcePVPower:   "",
		}}
		assert.EqualError(t, e.Validate(), "entry home: missing required source pv_power")
	})

	t.Run("Unknown Source", func(t *testing.T) {
		e := Entry{ID: "home", Sources: map[SourceKey]string{
			SourceGridPower: "sensor.grid",
			SourcePVPower:   "sensor.pv",
			"wind_power":    "sensor.wind",
		}}
		assert.ErrorContains(t, e.Validate(), "unknown source key")
	})
}

func TestSample(t *testing.T) {
	_, ok := Absent().Float()
	assert.False(t, ok)
	assert.False(t, Absent().Present())

	v, ok := Number(-2.5).Float()
	assert.True(t, ok)
	assert.Equal(t, -2.5, v)

	v, ok = Flag(true).Float()
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = Flag(false).Float()
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = Flag(true).Numeric()
	assert.False(t, ok)
	_, ok = Absent().Numeric()
	assert.False(t, ok)
	v, ok = Number(3).Numeric()
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	assert.Equal(t, "absent", Absent().String())
	assert.Equal(t, "on", Flag(true).String())
	assert.Equal(t, "12.5", Number(12.5).String())
}

func TestSnapshotValues(t *testing.T) {
	grid := 100.0
	connected := 0
	s := Snapshot{
		Timestamp:    time.Now(),
		GridPower:    &grid,
		CarConnected: &connected,
		Counters: map[CounterKey]float64{
			CounterGridIn: 1.5,
			CounterHome:   -0.25,
		},
		Ratios: map[MixKey]float64{
			MixBattery: 0.4,
		},
		Computed: []string{string(CounterGridIn), MixBattery.RatioKey()},
	}

	assert.Equal(t, map[string]any{
		"grid_power":               100.0,
		"car_connected":            0,
		"grid_in_energy_daily":     1.5,
		"home_energy_daily":        -0.25,
		"battery_energy_mix_daily": 0.4,
	}, s.Values())
	assert.True(t, s.IsComputed("battery_energy_mix_daily"))
	assert.False(t, s.IsComputed(string(CounterHome)))
}

func TestDerivedMetadata(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Derived {
		assert.False(t, seen[d.Key], "duplicate %s", d.Key)
		seen[d.Key] = true
		got, ok := DerivedByKey(d.Key)
		require.True(t, ok)
		assert.Equal(t, d, got)
	}
	for _, k := range []MixKey{MixBattery, MixHome, MixCarCharging} {
		assert.True(t, seen[k.RatioKey()], "missing %s", k.RatioKey())
	}
	_, ok := DerivedByKey("nope")
	assert.False(t, ok)
}
