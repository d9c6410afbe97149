package config

import (
	"testing"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetPlansResolve(t *testing.T) {
	for _, plan := range PresetTariffNames() {
		cfg := TariffConfig{Plan: plan}
		periods, err := cfg.ToPeriods()
		require.NoError(t, err, plan)
		require.NotEmpty(t, periods, plan)

		// every preset must partition the day and contain a low-cost run
		lowCost := false
		total := 0
		for _, p := range periods {
			assert.Less(t, p.StartMin, p.EndMin, plan)
			total += p.EndMin - p.StartMin
			lowCost = lowCost || p.LowCost
		}
		assert.Equal(t, 24*60, total, plan)
		assert.True(t, lowCost, plan)
	}
}

func TestUnknownPlanFails(t *testing.T) {
	cfg := TariffConfig{Plan: "octopus_unknown"}
	_, err := cfg.ToPeriods()
	require.Error(t, err)
	var cfgErr domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestCustomPlanRequiresPeriods(t *testing.T) {
	cfg := TariffConfig{Plan: "custom"}
	_, err := cfg.ToPeriods()
	assert.Error(t, err)
}

func TestCustomPlanParsing(t *testing.T) {
	require := require.New(t)

	cfg := TariffConfig{
		Plan: "custom",
		Periods: []TariffPeriodConfig{
			{Name: "cheap", Start: "00:30", End: "04:30", LowCost: true, UnitPrice: 0.10},
			{Name: "day", Days: []string{"Mon", "tuesday", "WED"}, Start: "04:30", End: "24:00", UnitPrice: 0.30},
		},
	}
	periods, err := cfg.ToPeriods()
	require.NoError(err)
	require.Len(periods, 2)

	assert.Equal(t, 30, periods[0].StartMin)
	assert.Equal(t, 4*60+30, periods[0].EndMin)
	assert.True(t, periods[0].LowCost)
	assert.Equal(t, domain.AllWeekdays, periods[0].Days)

	assert.Equal(t, 24*60, periods[1].EndMin)
	assert.True(t, periods[1].Days.Contains(time.Monday))
	assert.True(t, periods[1].Days.Contains(time.Tuesday))
	assert.True(t, periods[1].Days.Contains(time.Wednesday))
	assert.False(t, periods[1].Days.Contains(time.Sunday))
}

func TestInvalidTimeOfDay(t *testing.T) {
	for _, bad := range []string{"24:30", "7", "07:60", "-1:00"} {
		cfg := TariffConfig{
			Plan: "custom",
			Periods: []TariffPeriodConfig{
				{Name: "p", Start: bad, End: "24:00"},
			},
		}
		_, err := cfg.ToPeriods()
		assert.Error(t, err, bad)
	}
}

func TestInvalidWeekday(t *testing.T) {
	cfg := TariffConfig{
		Plan: "custom",
		Periods: []TariffPeriodConfig{
			{Name: "p", Days: []string{"noday"}, Start: "00:00", End: "24:00"},
		},
	}
	_, err := cfg.ToPeriods()
	assert.Error(t, err)
}

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := CheckMQTTTopic("ChargePilot_1")
	require.NoError(t, err)
	assert.Equal(t, "chargepilot_1", topic)

	_, err = CheckMQTTTopic("bad/topic")
	assert.Error(t, err)
}
