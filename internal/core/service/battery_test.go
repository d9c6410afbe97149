package service

import (
	"testing"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatteryStateFromFreshSample(t *testing.T) {

	require := require.New(t)

	tracker := NewBatteryTracker(testProfile(), 15*time.Minute)
	now := time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC)

	state, err := tracker.StateFrom(domain.TelemetrySample{
		Timestamp:  now.Add(-5 * time.Minute),
		SoCPercent: 40,
	}, now)
	require.NoError(err)

	assert.InDelta(t, 4.0, state.UsableEnergyKWh, 0.001)
	assert.InDelta(t, 6.0, state.HeadroomKWh, 0.001)
	assert.InDelta(t, 2.0, state.AboveReserveKWh, 0.001)
	assert.Equal(t, 5*time.Minute, state.SampleAge)
}

func TestBatteryStateStaleSample(t *testing.T) {

	require := require.New(t)

	tracker := NewBatteryTracker(testProfile(), 15*time.Minute)
	now := time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC)

	state, err := tracker.StateFrom(domain.TelemetrySample{
		Timestamp:  now.Add(-20 * time.Minute),
		SoCPercent: 40,
	}, now)

	var stale domain.StaleTelemetryError
	require.ErrorAs(err, &stale)
	assert.Equal(t, 20*time.Minute, stale.Age)
	// state is still usable for callers that proceed with a warning
	assert.InDelta(t, 4.0, state.UsableEnergyKWh, 0.001)
}

func TestBatteryStateBelowReserve(t *testing.T) {

	require := require.New(t)

	tracker := NewBatteryTracker(testProfile(), 15*time.Minute)
	now := time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC)

	state, err := tracker.StateFrom(domain.TelemetrySample{
		Timestamp:  now,
		SoCPercent: 10,
	}, now)
	require.NoError(err)
	assert.Zero(t, state.AboveReserveKWh)
}
