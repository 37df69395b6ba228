package types

import "time"

// CurrentStateVersion is stored alongside the persisted state. Increment it
// when PersistedState changes incompatibly.
const CurrentStateVersion = 1

// CounterKey names a cumulative energy counter.
type CounterKey string

const (
	CounterGridIn      CounterKey = "grid_in_energy_daily"
	CounterGridOut     CounterKey = "grid_out_energy_daily"
	CounterPV          CounterKey = "pv_energy_daily"
	CounterHome        CounterKey = "home_energy_daily"
	CounterCarCharging CounterKey = "car_charging_energy"
	CounterBattery     CounterKey = "battery_energy"
)

// MixKey names a PV/grid mix accumulator.
type MixKey string

const (
	MixBattery     MixKey = "battery_energy"
	MixHome        MixKey = "home_energy_daily"
	MixCarCharging MixKey = "car_charging_energy"
)

// RatioKey returns the published key of the mix ratio.
func (k MixKey) RatioKey() string {
	switch k {
	case MixBattery:
		return "battery_energy_mix_daily"
	case MixHome:
		return "home_energy_mix_daily"
	case MixCarCharging:
		return "car_charging_energy_mix"
	default:
		return string(k) + "_mix"
	}
}

// DerivedInfo is the display metadata of a derived key.
type DerivedInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	DeviceClass string `json:"deviceClass,omitempty"`
	StateClass  string `json:"stateClass"`
	Unit        string `json:"unit,omitempty"`
}

// Derived lists every key a coordinator can compute.
var Derived = []DerivedInfo{
	{Key: string(CounterGridIn), Name: "Grid Import Today", DeviceClass: "energy", StateClass: "total_increasing", Unit: "kWh"},
	{Key: string(CounterGridOut), Name: "Grid Export Today", DeviceClass: "energy", StateClass: "total_increasing", Unit: "kWh"},
	{Key: string(CounterPV), Name: "PV Production Today", DeviceClass: "energy", StateClass: "total_increasing", Unit: "kWh"},
	{Key: string(CounterHome), Name: "Home Consumption Today", DeviceClass: "energy", StateClass: "total", Unit: "kWh"},
	{Key: string(CounterCarCharging), Name: "Car Charging Energy", DeviceClass: "energy", StateClass: "total_increasing", Unit: "kWh"},
	{Key: string(CounterBattery), Name: "Battery Energy", DeviceClass: "energy", StateClass: "total", Unit: "kWh"},
	{Key: MixBattery.RatioKey(), Name: "Battery Solar Share Today", StateClass: "measurement"},
	{Key: MixHome.RatioKey(), Name: "Home Solar Share Today", StateClass: "measurement"},
	{Key: MixCarCharging.RatioKey(), Name: "Car Charging Solar Share", StateClass: "measurement"},
}

// DerivedByKey returns the metadata for key.
func DerivedByKey(key string) (DerivedInfo, bool) {
	for _, d := range Derived {
		if d.Key == key {
			return d, true
		}
	}
	return DerivedInfo{}, false
}

// Snapshot is the published result of one tick.
type Snapshot struct {
	Timestamp time.Time

	// Instantaneous values, nil when the source is unbound.
	GridPower        *float64
	PVPower          *float64
	BatteryPower     *float64
	CarChargingPower *float64
	CarConnected     *int
	CarSOC           *float64

	Counters map[CounterKey]float64
	Ratios   map[MixKey]float64

	// Computed lists the derived keys that had data this tick. It is internal
	// and never part of Values.
	Computed []string
}

// Values flattens the snapshot into the externally published key/value form.
func (s Snapshot) Values() map[string]any {
	out := make(map[string]any, 6+len(s.Counters)+len(s.Ratios))
	setFloat := func(key SourceKey, v *float64) {
		if v != nil {
			out[string(key)] = *v
		}
	}
	setFloat(SourceGridPower, s.GridPower)
	setFloat(SourcePVPower, s.PVPower)
	setFloat(SourceBatteryPower, s.BatteryPower)
	setFloat(SourceCarChargingPower, s.CarChargingPower)
	setFloat(SourceCarSOC, s.CarSOC)
	if s.CarConnected != nil {
		out[string(SourceCarConnected)] = *s.CarConnected
	}
	for k, v := range s.Counters {
		out[string(k)] = v
	}
	for k, v := range s.Ratios {
		out[k.RatioKey()] = v
	}
	return out
}

// IsComputed reports whether key was computed in this snapshot's tick.
func (s Snapshot) IsComputed(key string) bool {
	for _, k := range s.Computed {
		if k == key {
			return true
		}
	}
	return false
}

// PersistedState is the durable subset of a coordinator's accounting state.
type PersistedState struct {
	EnergySums map[string]float64 `json:"energy_sums"`
	PVSums     map[string]float64 `json:"pv_sums"`
	GridSums   map[string]float64 `json:"grid_sums"`
	Baselines  map[string]float64 `json:"energy_baselines"`
	// LastReset is an ISO-8601 timestamp.
	LastReset string `json:"last_reset"`
}
