package service

import (
	"testing"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() domain.BatteryProfile {
	return domain.BatteryProfile{
		UsableCapacityKWh:   10,
		MaxChargePowerKW:    3,
		MaxDischargePowerKW: 3,
		MinReservePercent:   20,
	}
}

func testCalculator(t *testing.T, params CalculatorParams) *ChargeNeedCalculator {
	cal, err := NewTariffCalendar(fluxPeriods(), 0)
	require.NoError(t, err)
	return NewChargeNeedCalculator(cal, testProfile(), params)
}

func batteryAt(soc float64) domain.BatteryState {
	profile := testProfile()
	usable := profile.UsableCapacityKWh * soc / 100
	return domain.BatteryState{
		SoCPercent:      soc,
		UsableEnergyKWh: usable,
		HeadroomKWh:     profile.UsableCapacityKWh - usable,
		AboveReserveKWh: usable - profile.ReserveEnergyKWh(),
	}
}

func genSeries(start time.Time, slotKWh float64, slots int) domain.ForecastSeries {
	var samples []domain.ForecastSample
	for i := 0; i < slots; i++ {
		samples = append(samples, domain.ForecastSample{
			Timestamp: start.Add(time.Duration(i) * domain.ForecastSlot),
			EnergyKWh: slotKWh,
		})
	}
	return domain.ForecastSeries{Samples: samples}
}

func TestNotNeededWhenBalanceCoversReserve(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1, DefaultLoadKw: 0.5})

	// monday 20:00, boundary tuesday 02:00 (6h gap). generation exceeds
	// load by 5 kWh over the gap.
	now := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	gen := genSeries(now, 8.0/12, 12) // 8 kWh over 6h, load 3 kWh

	decision, err := calc.Compute(now, batteryAt(80), gen, domain.ForecastSeries{}, nil)
	require.NoError(err)
	assert.False(t, decision.Needed)
	assert.Empty(t, decision.Windows)
}

func TestDeficitProducesWindowEndingAtBoundary(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1, DefaultLoadKw: 0.5})

	// monday 22:00, boundary tuesday 02:00. zero generation, 0.5 kW
	// load over 4h = 2 kWh. usable 1.5, reserve 2.0:
	// deficit = 2.0 - (1.5 - 2.0) = 2.5 kWh
	now := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	boundary := time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)

	decision, err := calc.Compute(now, batteryAt(15), domain.ForecastSeries{}, domain.ForecastSeries{}, nil)
	require.NoError(err)
	require.True(decision.Needed)
	assert.InDelta(t, 2.5, decision.RequiredEnergyKWh, 0.001)

	require.Len(decision.Windows, 1)
	w := decision.Windows[0]
	assert.Equal(t, boundary, w.End)
	// 2.5 kWh at 3 kW = 50 min
	assert.InDelta(t, 50.0, w.Duration().Minutes(), 0.5)
	assert.False(t, w.Start.Before(now))
}

func TestWindowNeverExtendsPastNow(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1})

	// empty battery 2h before the boundary: 3 kW for 2h can only
	// deliver 6 kWh of the 8 kWh deficit
	now := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	boundary := time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)

	decision, err := calc.Compute(now, batteryAt(0), domain.ForecastSeries{}, domain.ForecastSeries{}, nil)
	require.NoError(err)
	require.True(decision.Needed)
	require.Len(decision.Windows, 1)
	assert.Equal(t, now, decision.Windows[0].Start)
	assert.Equal(t, boundary, decision.Windows[0].End)
	assert.InDelta(t, 6.0, decision.RequiredEnergyKWh, 0.001)
}

func TestRequiredEnergyCappedAtHeadroom(t *testing.T) {

	require := require.New(t)

	// huge load so the raw deficit exceeds the battery headroom
	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1, DefaultLoadKw: 10})

	now := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	decision, err := calc.Compute(now, batteryAt(80), domain.ForecastSeries{}, domain.ForecastSeries{}, nil)
	require.NoError(err)
	require.True(decision.Needed)
	// headroom at 80% of 10 kWh is 2 kWh
	assert.InDelta(t, 2.0, decision.RequiredEnergyKWh, 0.001)
}

func TestContingencyDiscountsGeneration(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1, ContingencyFactor: 1.25, DefaultLoadKw: 0.5})

	// 2.5 kWh forecast discounts to 2.0. load 2.0 over the 4h gap, so
	// the balance is exactly zero and usable 1.5 < reserve 2.0
	now := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	gen := genSeries(now, 2.5/8, 8)

	decision, err := calc.Compute(now, batteryAt(15), gen, domain.ForecastSeries{}, nil)
	require.NoError(err)
	require.True(decision.Needed)
	assert.InDelta(t, 0.5, decision.RequiredEnergyKWh, 0.001)
}

func TestInsideLowCostWindowTargetsNextGap(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1, DefaultLoadKw: 0.5})

	// tuesday 03:00 is inside the 02:00-05:00 window. the deficit must
	// bridge until wednesday 02:00 and the charge window must end there.
	now := time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)
	nextBoundary := time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC)

	decision, err := calc.Compute(now, batteryAt(15), domain.ForecastSeries{}, domain.ForecastSeries{}, nil)
	require.NoError(err)
	require.True(decision.Needed)
	require.NotEmpty(decision.Windows)
	last := decision.Windows[len(decision.Windows)-1]
	assert.Equal(t, nextBoundary, last.End)
}

func TestSplitWindowsUseRemainingCheapTime(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1, DefaultLoadKw: 0.5, AllowSplitWindows: true})

	// inside the cheap window with a deficit larger than the remaining
	// cheap time can absorb at min window granularity
	now := time.Date(2026, 3, 3, 4, 0, 0, 0, time.UTC)

	decision, err := calc.Compute(now, batteryAt(0), domain.ForecastSeries{}, domain.ForecastSeries{}, nil)
	require.NoError(err)
	require.True(decision.Needed)
	require.Len(decision.Windows, 2)

	first, second := decision.Windows[0], decision.Windows[1]
	assert.Equal(t, now, first.Start)
	assert.Equal(t, time.Date(2026, 3, 3, 5, 0, 0, 0, time.UTC), first.End)
	assert.Equal(t, time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC), second.End)
	assert.False(t, second.Start.Before(first.End))
}

func TestSplitRemainderRoundedUpToMinimumWindow(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1, DefaultLoadKw: 0.5, AllowSplitWindows: true})

	// headroom 3.2 kWh at 3 kW needs 64 min. the cheap hour before 05:00
	// absorbs 60, leaving 4 min for the boundary window
	now := time.Date(2026, 3, 3, 4, 0, 0, 0, time.UTC)

	decision, err := calc.Compute(now, batteryAt(68), domain.ForecastSeries{}, domain.ForecastSeries{}, nil)
	require.NoError(err)
	require.True(decision.Needed)
	require.Len(decision.Windows, 2)

	second := decision.Windows[1]
	assert.Equal(t, time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC), second.End)
	assert.Equal(t, 15*time.Minute, second.Duration())
}

func TestMinimumWindowDuration(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1, MinWindow: 15 * time.Minute})

	// tiny deficit still yields a 15 minute window
	now := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	battery := batteryAt(19.5)

	decision, err := calc.Compute(now, battery, domain.ForecastSeries{}, domain.ForecastSeries{}, nil)
	require.NoError(err)
	require.True(decision.Needed)
	require.Len(decision.Windows, 1)
	assert.Equal(t, 15*time.Minute, decision.Windows[0].Duration())
}

func TestWarningsPropagate(t *testing.T) {

	require := require.New(t)

	calc := testCalculator(t, CalculatorParams{ChargeEfficiency: 1})

	now := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	warnings := []domain.Warning{domain.PartialDataWarning("source solcast: timeout")}

	decision, err := calc.Compute(now, batteryAt(50), domain.ForecastSeries{}, domain.ForecastSeries{}, warnings)
	require.NoError(err)
	assert.Equal(t, warnings, decision.Warnings)
}
