package service

import (
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
)

// BatteryTracker derives battery energy figures from raw telemetry.
// Samples older than the freshness bound yield a StaleTelemetryError
// alongside the state, so the caller can choose between aborting and
// proceeding with a warning.
type BatteryTracker struct {
	profile domain.BatteryProfile
	bound   time.Duration
}

func NewBatteryTracker(profile domain.BatteryProfile, freshnessBound time.Duration) *BatteryTracker {
	if freshnessBound <= 0 {
		freshnessBound = 15 * time.Minute
	}
	return &BatteryTracker{
		profile: profile,
		bound:   freshnessBound,
	}
}

func (t *BatteryTracker) FreshnessBound() time.Duration {
	return t.bound
}

func (t *BatteryTracker) StateFrom(sample domain.TelemetrySample, now time.Time) (domain.BatteryState, error) {
	usable := t.profile.UsableCapacityKWh * sample.SoCPercent / 100
	reserve := t.profile.ReserveEnergyKWh()
	state := domain.BatteryState{
		SoCPercent:      sample.SoCPercent,
		UsableEnergyKWh: usable,
		HeadroomKWh:     max(0, t.profile.UsableCapacityKWh-usable),
		AboveReserveKWh: max(0, usable-reserve),
		SampleAge:       now.Sub(sample.Timestamp),
	}
	if state.SampleAge > t.bound {
		return state, domain.StaleTelemetryError{Age: state.SampleAge, Bound: t.bound}
	}
	return state, nil
}
