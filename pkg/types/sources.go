package types

import (
	"fmt"
	"sort"
)

// SourceKey identifies one physical measurement that can be bound to an
// external sensor.
type SourceKey string

const (
	SourceGridPower         SourceKey = "grid_power"
	SourcePVPower           SourceKey = "pv_power"
	SourcePVEnergy          SourceKey = "pv_energy"
	SourceGridInEnergy      SourceKey = "grid_in_energy"
	SourceGridOutEnergy     SourceKey = "grid_out_energy"
	SourceBatteryPower      SourceKey = "battery_power"
	SourceBatteryEnergy     SourceKey = "battery_energy"
	SourceCarChargingPower  SourceKey = "car_charging_power"
	SourceCarChargingEnergy SourceKey = "car_charging_energy"
	SourceCarConnected      SourceKey = "car_connected"
	SourceCarSOC            SourceKey = "car_soc"
)

// SourceInfo describes a SourceKey: the kind of sensor it expects and whether
// an entry must bind it.
type SourceInfo struct {
	Key         SourceKey `json:"key"`
	DeviceClass string    `json:"deviceClass"`
	Required    bool      `json:"required"`
}

// Sources lists every known SourceKey in read order.
var Sources = []SourceInfo{
	{Key: SourceGridPower, DeviceClass: "power", Required: true},
	{Key: SourcePVPower, DeviceClass: "power", Required: true},
	{Key: SourcePVEnergy, DeviceClass: "energy"},
	{Key: SourceGridInEnergy, DeviceClass: "energy"},
	{Key: SourceGridOutEnergy, DeviceClass: "energy"},
	{Key: SourceBatteryPower, DeviceClass: "power"},
	{Key: SourceBatteryEnergy, DeviceClass: "energy"},
	{Key: SourceCarChargingPower, DeviceClass: "power"},
	{Key: SourceCarChargingEnergy, DeviceClass: "energy"},
	{Key: SourceCarConnected, DeviceClass: "plug"},
	{Key: SourceCarSOC, DeviceClass: "battery"},
}

// ParseSourceKey returns the SourceKey named by s.
func ParseSourceKey(s string) (SourceKey, error) {
	for _, info := range Sources {
		if string(info.Key) == s {
			return info.Key, nil
		}
	}
	return "", fmt.Errorf("unknown source key: %s", s)
}

// Entry is one configured account: the sensors it reads from and when its
// daily counters roll over. Each Entry is owned by exactly one coordinator.
type Entry struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	DailyReset string               `json:"dailyReset"`
	Sources    map[SourceKey]string `json:"sources"`
}

// Source returns the entity bound to key, if any.
func (e Entry) Source(key SourceKey) (string, bool) {
	id, ok := e.Sources[key]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// BoundSources returns the bound keys sorted by name.
func (e Entry) BoundSources() []SourceKey {
	keys := make([]SourceKey, 0, len(e.Sources))
	for k, v := range e.Sources {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Validate checks that the entry has an id, only known sources and every
// required source bound.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry id cannot be empty")
	}
	for k := range e.Sources {
		if _, err := ParseSourceKey(string(k)); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
	}
	for _, info := range Sources {
		if !info.Required {
			continue
		}
		if _, ok := e.Source(info.Key); !ok {
			return fmt.Errorf("entry %s: missing required source %s", e.ID, info.Key)
		}
	}
	return nil
}
