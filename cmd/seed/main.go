package main

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energystats/pkg/coordinator"
	"github.com/raterudder/energystats/pkg/log"
	"github.com/raterudder/energystats/pkg/sample"
	"github.com/raterudder/energystats/pkg/storage"
	"github.com/raterudder/energystats/pkg/types"
)

// seed simulates today's sensor readings for one site and runs them through a
// coordinator so the saved state looks like a day of real ticks.
func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	siteID := lflag.String("seed-site", "home", "site id to seed")
	step := lflag.Duration("seed-step", 5*time.Minute, "simulated time between ticks")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const (
		BatteryCapacityKWH = 13.5
		MaxBatteryKW       = 5.0
		HomeAvgKW          = 0.8
		SolarPeakKW        = 8.0
		CarChargeKW        = 11.0
	)

	entry := types.Entry{
		ID:         *siteID,
		Name:       "Seeded Home",
		DailyReset: "00:00",
		Sources: map[types.SourceKey]string{
			types.SourceGridPower:        "sensor.grid_power",
			types.SourcePVPower:          "sensor.pv_power",
			types.SourceGridInEnergy:     "sensor.grid_import",
			types.SourceBatteryPower:     "sensor.battery_power",
			types.SourceBatteryEnergy:    "sensor.battery_energy",
			types.SourceCarChargingPower: "sensor.car_power",
			types.SourceCarConnected:     "binary_sensor.car_connected",
		},
	}

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 1, 0, now.Location())

	clk := clock.NewMock()
	clk.Set(start)
	src := sample.NewStatic(nil)
	c := coordinator.New(entry, src, s, coordinator.WithClock(clk))

	// meters rarely start at zero
	gridMeter := 4000 + rng.Float64()*1000
	batteryKWH := BatteryCapacityKWH * 0.4

	var ticks int
	for t := start; t.Before(now); t = t.Add(*step) {
		hour := float64(t.Hour()) + float64(t.Minute())/60

		// Solar (bell curve)
		solarKW := 0.0
		if hour > 6 && hour < 20 {
			dist := hour - 13.0
			solarKW = SolarPeakKW * math.Exp(-(dist*dist)/10.0)
		}

		// Home usage
		homeKW := HomeAvgKW + rng.Float64()*0.5
		if hour >= 7 && hour < 9 {
			homeKW += 2.0 // Breakfast
		} else if hour >= 18 && hour < 22 {
			homeKW += 3.0 // Evening activities
		}

		carKW := 0.0
		carConnected := hour >= 17
		if carConnected && hour < 19 {
			carKW = CarChargeKW
		}

		// positive battery power is discharge
		batKW := 0.0
		if surplus := solarKW - homeKW - carKW; surplus > 0 {
			batKW = -math.Min(surplus, MaxBatteryKW)
		} else if batteryKWH > BatteryCapacityKWH*0.1 {
			batKW = math.Min(-surplus, MaxBatteryKW)
		}
		hours := step.Hours()
		batteryKWH = math.Max(0, math.Min(BatteryCapacityKWH, batteryKWH-batKW*hours))

		gridKW := homeKW + carKW - solarKW - batKW
		if gridKW > 0 {
			gridMeter += gridKW * hours
		}

		src.Set("sensor.grid_power", strconv.FormatFloat(gridKW*1000, 'f', 1, 64))
		src.Set("sensor.pv_power", strconv.FormatFloat(solarKW*1000, 'f', 1, 64))
		src.Set("sensor.grid_import", strconv.FormatFloat(gridMeter, 'f', 3, 64))
		src.Set("sensor.battery_power", strconv.FormatFloat(batKW*1000, 'f', 1, 64))
		src.Set("sensor.battery_energy", strconv.FormatFloat(batteryKWH, 'f', 3, 64))
		src.Set("sensor.car_power", strconv.FormatFloat(carKW*1000, 'f', 1, 64))
		if carConnected {
			src.Set("binary_sensor.car_connected", "on")
		} else {
			src.Set("binary_sensor.car_connected", "off")
		}

		clk.Set(t)
		if _, err := c.Tick(ctx); err != nil && !errors.Is(err, coordinator.ErrSourceNotReady) {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed tick", "error", err)
			os.Exit(1)
		}
		ticks++
	}

	snap, _ := c.Latest()
	log.Ctx(ctx).InfoContext(ctx, "seeding complete", "siteID", entry.ID, "ticks", ticks, "values", snap.Values())
}
