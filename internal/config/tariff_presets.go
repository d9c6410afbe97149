package config

import (
	"github.com/berfenger/chargepilot/internal/core/domain"
)

// Preset period tables for the supported UK agile tariffs. Every table
// partitions the 24h day for all weekdays; overnight cheap rates are
// encoded as two rows because periods never wrap midnight.
var presetTariffs = map[string][]domain.TariffPeriod{
	"octopus_flux": {
		{Name: "night", Days: domain.AllWeekdays, StartMin: 0, EndMin: 2 * 60, LowCost: false, UnitPrice: 0.2497},
		{Name: "off_peak", Days: domain.AllWeekdays, StartMin: 2 * 60, EndMin: 5 * 60, LowCost: true, UnitPrice: 0.1497},
		{Name: "day", Days: domain.AllWeekdays, StartMin: 5 * 60, EndMin: 16 * 60, LowCost: false, UnitPrice: 0.2497},
		{Name: "peak", Days: domain.AllWeekdays, StartMin: 16 * 60, EndMin: 19 * 60, LowCost: false, UnitPrice: 0.3496},
		{Name: "evening", Days: domain.AllWeekdays, StartMin: 19 * 60, EndMin: 24 * 60, LowCost: false, UnitPrice: 0.2497},
	},
	"intelligent_octopus": {
		{Name: "off_peak_am", Days: domain.AllWeekdays, StartMin: 0, EndMin: 5*60 + 30, LowCost: true, UnitPrice: 0.0750},
		{Name: "day", Days: domain.AllWeekdays, StartMin: 5*60 + 30, EndMin: 23*60 + 30, LowCost: false, UnitPrice: 0.2497},
		{Name: "off_peak_pm", Days: domain.AllWeekdays, StartMin: 23*60 + 30, EndMin: 24 * 60, LowCost: true, UnitPrice: 0.0750},
	},
	"octopus_cosy": {
		{Name: "night", Days: domain.AllWeekdays, StartMin: 0, EndMin: 4 * 60, LowCost: false, UnitPrice: 0.2492},
		{Name: "off_peak_am", Days: domain.AllWeekdays, StartMin: 4 * 60, EndMin: 7 * 60, LowCost: true, UnitPrice: 0.1211},
		{Name: "day", Days: domain.AllWeekdays, StartMin: 7 * 60, EndMin: 13 * 60, LowCost: false, UnitPrice: 0.2492},
		{Name: "off_peak_pm", Days: domain.AllWeekdays, StartMin: 13 * 60, EndMin: 16 * 60, LowCost: true, UnitPrice: 0.1211},
		{Name: "peak", Days: domain.AllWeekdays, StartMin: 16 * 60, EndMin: 19 * 60, LowCost: false, UnitPrice: 0.3373},
		{Name: "evening", Days: domain.AllWeekdays, StartMin: 19 * 60, EndMin: 24 * 60, LowCost: false, UnitPrice: 0.2492},
	},
	"octopus_go": {
		{Name: "night", Days: domain.AllWeekdays, StartMin: 0, EndMin: 30, LowCost: false, UnitPrice: 0.2462},
		{Name: "off_peak", Days: domain.AllWeekdays, StartMin: 30, EndMin: 4*60 + 30, LowCost: true, UnitPrice: 0.0950},
		{Name: "day", Days: domain.AllWeekdays, StartMin: 4*60 + 30, EndMin: 24 * 60, LowCost: false, UnitPrice: 0.2462},
	},
}

// PresetTariffNames lists the supported plan identifiers.
func PresetTariffNames() []string {
	names := make([]string, 0, len(presetTariffs))
	for name := range presetTariffs {
		names = append(names, name)
	}
	return names
}
