package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCloud struct {
	telemetry      *domain.TelemetrySample
	telemetryErr   error
	telemetryCalls int
	setWindows     [][]domain.ChargeWindow
	setErr         error
}

func (f *fakeCloud) GetLatestTelemetry(ctx context.Context, deviceId string) (*domain.TelemetrySample, error) {
	f.telemetryCalls++
	if f.telemetryErr != nil {
		return nil, f.telemetryErr
	}
	return f.telemetry, nil
}

func (f *fakeCloud) GetHistory(ctx context.Context, deviceId string, from, to time.Time) ([]domain.TelemetrySample, error) {
	return nil, nil
}

func (f *fakeCloud) SetChargeWindows(ctx context.Context, deviceId string, windows []domain.ChargeWindow) error {
	f.setWindows = append(f.setWindows, windows)
	return f.setErr
}

func testEngine(t *testing.T, cloud *fakeCloud, runAfter int, proceedOnStale bool) *DecisionEngine {
	cal, err := NewTariffCalendar(fluxPeriods(), 0)
	require.NoError(t, err)
	logger := zap.NewNop()
	aggregator := NewForecastAggregator(nil, time.Second, logger)
	tracker := NewBatteryTracker(testProfile(), 15*time.Minute)
	calculator := NewChargeNeedCalculator(cal, testProfile(), CalculatorParams{
		ChargeEfficiency: 1,
		DefaultLoadKw:    0.5,
	})
	return NewDecisionEngine(cal, aggregator, tracker, calculator, cloud, "DEV1", runAfter, proceedOnStale, 48*time.Hour, logger)
}

func freshSample(now time.Time, soc float64) *domain.TelemetrySample {
	return &domain.TelemetrySample{Timestamp: now.Add(-time.Minute), SoCPercent: soc}
}

func TestRunSkippedWhenNotDue(t *testing.T) {

	require := require.New(t)

	cloud := &fakeCloud{}
	engine := testEngine(t, cloud, 22, false)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeSkippedNotDue, result.Outcome)
	assert.Equal(t, 0, cloud.telemetryCalls)
	require.NotNil(result.NextLowCostStart)
	assert.Equal(t, time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC), *result.NextLowCostStart)
}

func TestForceBypassesRunAfterGate(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cloud := &fakeCloud{telemetry: freshSample(now, 80)}
	engine := testEngine(t, cloud, 22, false)

	result := engine.RunChargeCheck(context.Background(), now, true)

	require.Equal(domain.OutcomeNotNeeded, result.Outcome)
	assert.Equal(t, 1, cloud.telemetryCalls)
}

func TestRunSkippedOnStaleTelemetry(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	cloud := &fakeCloud{telemetry: &domain.TelemetrySample{
		Timestamp:  now.Add(-time.Hour),
		SoCPercent: 15,
	}}
	engine := testEngine(t, cloud, 22, false)

	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeSkippedStaleData, result.Outcome)
	assert.Empty(t, cloud.setWindows)
	require.NotEmpty(result.Warnings)
	assert.Equal(t, domain.WarningStaleTelemetry, result.Warnings[0].Code)
}

func TestRunProceedsOnStaleWhenConfigured(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	cloud := &fakeCloud{telemetry: &domain.TelemetrySample{
		Timestamp:  now.Add(-time.Hour),
		SoCPercent: 15,
	}}
	engine := testEngine(t, cloud, 22, true)

	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeCharged, result.Outcome)
	require.Len(cloud.setWindows, 1)
}

func TestRunNotNeeded(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	cloud := &fakeCloud{telemetry: freshSample(now, 80)}
	engine := testEngine(t, cloud, 22, false)

	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeNotNeeded, result.Outcome)
	// a leftover schedule from a previous run must be cleared
	require.Len(cloud.setWindows, 1)
	assert.Empty(t, cloud.setWindows[0])
}

func TestRunNotNeededFailsWhenClearRejected(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	cloud := &fakeCloud{telemetry: freshSample(now, 80), setErr: errors.New("rejected")}
	engine := testEngine(t, cloud, 22, false)

	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Error, "rejected")
}

func TestRunChargedWritesSchedule(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	cloud := &fakeCloud{telemetry: freshSample(now, 15)}
	engine := testEngine(t, cloud, 22, false)

	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeCharged, result.Outcome)
	require.Len(cloud.setWindows, 1)
	require.NotEmpty(cloud.setWindows[0])
	assert.Equal(t, time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC), cloud.setWindows[0][0].End)
	assert.Greater(t, result.RequiredEnergyKWh, 0.0)
	assert.Equal(t, result.Windows, cloud.setWindows[0])
}

func TestRunFailsOnForecastQuotaExceeded(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	cloud := &fakeCloud{telemetry: freshSample(now, 15)}

	cal, err := NewTariffCalendar(fluxPeriods(), 0)
	require.NoError(err)
	logger := zap.NewNop()
	source := &fakeSource{name: "quota", err: domain.QuotaExceededError{Source: "quota", Limit: 10}}
	aggregator := NewForecastAggregator([]SourceBinding{{Source: source}}, time.Second, logger)
	tracker := NewBatteryTracker(testProfile(), 15*time.Minute)
	calculator := NewChargeNeedCalculator(cal, testProfile(), CalculatorParams{
		ChargeEfficiency: 1,
		DefaultLoadKw:    0.5,
	})
	engine := NewDecisionEngine(cal, aggregator, tracker, calculator, cloud, "DEV1", 22, false, 48*time.Hour, logger)

	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeFailed, result.Outcome)
	assert.Empty(t, cloud.setWindows)
	assert.Contains(t, result.Error, "quota")
}

func TestRunFailsOnTelemetryError(t *testing.T) {

	require := require.New(t)

	cloud := &fakeCloud{telemetryErr: errors.New("cloud unavailable")}
	engine := testEngine(t, cloud, 22, false)

	now := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Error, "cloud unavailable")
}

func TestRunFailsOnScheduleWriteError(t *testing.T) {

	require := require.New(t)

	now := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	cloud := &fakeCloud{telemetry: freshSample(now, 15), setErr: errors.New("rejected")}
	engine := testEngine(t, cloud, 22, false)

	result := engine.RunChargeCheck(context.Background(), now, false)

	require.Equal(domain.OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Error, "rejected")
}
