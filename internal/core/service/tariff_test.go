package service

import (
	"math/rand"
	"testing"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fluxPeriods() []domain.TariffPeriod {
	return []domain.TariffPeriod{
		{Name: "night", Days: domain.AllWeekdays, StartMin: 0, EndMin: 2 * 60, UnitPrice: 0.25},
		{Name: "off_peak", Days: domain.AllWeekdays, StartMin: 2 * 60, EndMin: 5 * 60, LowCost: true, UnitPrice: 0.15},
		{Name: "day", Days: domain.AllWeekdays, StartMin: 5 * 60, EndMin: 16 * 60, UnitPrice: 0.25},
		{Name: "peak", Days: domain.AllWeekdays, StartMin: 16 * 60, EndMin: 19 * 60, UnitPrice: 0.35},
		{Name: "evening", Days: domain.AllWeekdays, StartMin: 19 * 60, EndMin: 24 * 60, UnitPrice: 0.25},
	}
}

func overnightPeriods() []domain.TariffPeriod {
	return []domain.TariffPeriod{
		{Name: "off_peak_am", Days: domain.AllWeekdays, StartMin: 0, EndMin: 5*60 + 30, LowCost: true},
		{Name: "day", Days: domain.AllWeekdays, StartMin: 5*60 + 30, EndMin: 23*60 + 30},
		{Name: "off_peak_pm", Days: domain.AllWeekdays, StartMin: 23*60 + 30, EndMin: 24 * 60, LowCost: true},
	}
}

func TestPartitionValidation(t *testing.T) {

	require := require.New(t)

	_, err := NewTariffCalendar(fluxPeriods(), 0)
	require.NoError(err)

	// gap between 05:00 and 06:00
	gapped := fluxPeriods()
	gapped[2].StartMin = 6 * 60
	_, err = NewTariffCalendar(gapped, 0)
	var cfgErr domain.ConfigError
	require.ErrorAs(err, &cfgErr)

	// overlap between off_peak and day
	overlapping := fluxPeriods()
	overlapping[2].StartMin = 4 * 60
	_, err = NewTariffCalendar(overlapping, 0)
	require.ErrorAs(err, &cfgErr)

	// day does not start at midnight
	late := fluxPeriods()
	late[0].StartMin = 60
	_, err = NewTariffCalendar(late, 0)
	require.ErrorAs(err, &cfgErr)

	// weekday without coverage
	weekdayOnly := fluxPeriods()
	for i := range weekdayOnly {
		weekdayOnly[i].Days = domain.WeekdaysOf(time.Monday)
	}
	_, err = NewTariffCalendar(weekdayOnly, 0)
	require.ErrorAs(err, &cfgErr)
}

func TestActivePeriod(t *testing.T) {

	require := require.New(t)

	cal, err := NewTariffCalendar(fluxPeriods(), 0)
	require.NoError(err)

	assert.Equal(t, "off_peak", cal.ActivePeriod(time.Date(2026, 3, 2, 3, 30, 0, 0, time.UTC)).Name)
	assert.Equal(t, "peak", cal.ActivePeriod(time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)).Name)
	assert.Equal(t, "evening", cal.ActivePeriod(time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)).Name)
	assert.Equal(t, "night", cal.ActivePeriod(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)).Name)
}

func TestNextLowCostWindow(t *testing.T) {

	require := require.New(t)

	cal, err := NewTariffCalendar(fluxPeriods(), 0)
	require.NoError(err)

	// monday 21:00 -> tuesday 02:00-05:00
	w, err := cal.NextLowCostWindow(time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC))
	require.NoError(err)
	assert.Equal(t, time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 3, 5, 0, 0, 0, time.UTC), w.End)
}

func TestNextLowCostWindowIdempotentInsideWindow(t *testing.T) {

	require := require.New(t)

	cal, err := NewTariffCalendar(fluxPeriods(), 0)
	require.NoError(err)

	at := time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)
	w, err := cal.NextLowCostWindow(at)
	require.NoError(err)
	assert.Equal(t, at, w.Start)
	assert.Equal(t, time.Date(2026, 3, 3, 5, 0, 0, 0, time.UTC), w.End)

	// a later call inside the same run of low-cost time keeps the end
	later := at.Add(30 * time.Minute)
	w2, err := cal.NextLowCostWindow(later)
	require.NoError(err)
	assert.Equal(t, later, w2.Start)
	assert.Equal(t, w.End, w2.End)
}

func TestLowCostWindowExtendsAcrossMidnight(t *testing.T) {

	require := require.New(t)

	cal, err := NewTariffCalendar(overnightPeriods(), 0)
	require.NoError(err)

	// 22:00 -> 23:30 today through 05:30 tomorrow
	w, err := cal.NextLowCostWindow(time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC))
	require.NoError(err)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 3, 5, 30, 0, 0, time.UTC), w.End)
}

func TestLowCostWindowCappedAtScanHorizon(t *testing.T) {

	require := require.New(t)

	cheap := []domain.TariffPeriod{
		{Name: "all_day", Days: domain.AllWeekdays, StartMin: 0, EndMin: 24 * 60, LowCost: true},
	}
	cal, err := NewTariffCalendar(cheap, 6*time.Hour)
	require.NoError(err)

	from := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	w, err := cal.NextLowCostWindow(from)
	require.NoError(err)
	assert.Equal(t, from, w.Start)
	assert.Equal(t, from.Add(6*time.Hour), w.End)
}

func TestExactlyOnePeriodCoversEveryInstant(t *testing.T) {

	require := require.New(t)

	weekdays := domain.WeekdaysOf(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
	weekend := domain.WeekdaysOf(time.Saturday, time.Sunday)
	periods := []domain.TariffPeriod{
		{Name: "wd_night", Days: weekdays, StartMin: 0, EndMin: 2 * 60},
		{Name: "wd_off_peak", Days: weekdays, StartMin: 2 * 60, EndMin: 5 * 60, LowCost: true},
		{Name: "wd_day", Days: weekdays, StartMin: 5 * 60, EndMin: 24 * 60},
		{Name: "we_off_peak", Days: weekend, StartMin: 0, EndMin: 7 * 60, LowCost: true},
		{Name: "we_day", Days: weekend, StartMin: 7 * 60, EndMin: 24 * 60},
	}
	cal, err := NewTariffCalendar(periods, 0)
	require.NoError(err)

	rnd := rand.New(rand.NewSource(1))
	week := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2000; i++ {
		at := week.Add(time.Duration(rnd.Int63n(7*24*3600)) * time.Second)
		minute := at.Hour()*60 + at.Minute()

		covering := 0
		var matched domain.TariffPeriod
		for _, p := range periods {
			if p.Days.Contains(at.Weekday()) && minute >= p.StartMin && minute < p.EndMin {
				covering++
				matched = p
			}
		}
		require.Equalf(1, covering, "instant %s covered by %d periods", at, covering)
		assert.Equal(t, matched.Name, cal.ActivePeriod(at).Name, "instant %s", at)
	}
}

func TestNoLowCostWindowInHorizon(t *testing.T) {

	require := require.New(t)

	flat := []domain.TariffPeriod{
		{Name: "all_day", Days: domain.AllWeekdays, StartMin: 0, EndMin: 24 * 60},
	}
	cal, err := NewTariffCalendar(flat, 0)
	require.NoError(err)

	_, err = cal.NextLowCostWindow(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	require.ErrorIs(err, domain.ErrNoLowCostWindow)
}
