package service

import (
	"math"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
)

type CalculatorParams struct {
	// ContingencyFactor discounts forecast generation (1.25 plans for a
	// forecast 25% too optimistic). Values below 1 are treated as 1.
	ContingencyFactor float64
	// ChargeEfficiency is the grid-to-battery conversion ratio.
	ChargeEfficiency float64
	// DefaultLoadKw estimates house consumption when no load series is
	// supplied.
	DefaultLoadKw     float64
	UseSeasonality    bool
	AllowSplitWindows bool
	// MinWindow is the shortest charge window the inverter accepts.
	MinWindow time.Duration
	// Seasonality weights DefaultLoadKw by calendar month (January
	// first). Zero value disables weighting.
	Seasonality [12]float64
}

// ChargeNeedCalculator decides whether a force charge is required to
// keep the battery above its minimum reserve until the next low-cost
// window, and where to place the charge. The charge window ends at the
// low-cost boundary and grows backward when max charge power cannot
// deliver the energy in time, never reaching past now.
type ChargeNeedCalculator struct {
	calendar *TariffCalendar
	profile  domain.BatteryProfile
	params   CalculatorParams
}

func NewChargeNeedCalculator(calendar *TariffCalendar, profile domain.BatteryProfile, params CalculatorParams) *ChargeNeedCalculator {
	if params.ContingencyFactor < 1 {
		params.ContingencyFactor = 1
	}
	if params.ChargeEfficiency <= 0 || params.ChargeEfficiency > 1 {
		params.ChargeEfficiency = 1
	}
	if params.MinWindow <= 0 {
		params.MinWindow = 15 * time.Minute
	}
	return &ChargeNeedCalculator{
		calendar: calendar,
		profile:  profile,
		params:   params,
	}
}

// Compute evaluates the deficit over [now, boundary) where boundary is
// the start of the next low-cost window. When now is already inside a
// low-cost window, the deficit interval runs to the window after the
// current one: force-charging exists to bridge the high-cost gap. The
// load series is optional; when empty, consumption is estimated from
// DefaultLoadKw.
func (c *ChargeNeedCalculator) Compute(now time.Time, battery domain.BatteryState, generation domain.ForecastSeries, load domain.ForecastSeries, warnings []domain.Warning) (domain.ChargeDecision, error) {
	current, err := c.calendar.NextLowCostWindow(now)
	if err != nil {
		return domain.ChargeDecision{}, err
	}

	var inside *domain.LowCostWindow
	boundary := current
	if current.Contains(now) {
		inside = &current
		boundary, err = c.calendar.NextLowCostWindow(current.End)
		if err != nil {
			return domain.ChargeDecision{}, err
		}
	}

	if !boundary.Start.After(now) {
		return domain.ChargeDecision{}, domain.InvalidIntervalError{Start: now, End: boundary.Start}
	}

	expectedGen := sumEnergyBetween(generation, now, boundary.Start) / c.params.ContingencyFactor
	expectedLoad := c.expectedLoad(load, now, boundary.Start)
	netBalance := expectedGen - expectedLoad

	reserve := c.profile.ReserveEnergyKWh()
	deficit := math.Max(0, reserve-(battery.UsableEnergyKWh+netBalance))

	decision := domain.ChargeDecision{Warnings: warnings}
	if deficit <= 0 {
		return decision, nil
	}

	required := math.Min(deficit, battery.HeadroomKWh)
	if required <= 0 {
		return decision, nil
	}

	windows := c.placeWindows(now, battery, required, inside, boundary)
	if len(windows) == 0 {
		return decision, nil
	}

	// the energy cap may have trimmed what the windows can deliver
	deliverable := 0.0
	for _, w := range windows {
		deliverable += w.Duration().Hours() * c.profile.MaxChargePowerKW * c.params.ChargeEfficiency
	}
	decision.Needed = true
	decision.RequiredEnergyKWh = math.Min(required, deliverable)
	decision.Windows = windows
	return decision, nil
}

func (c *ChargeNeedCalculator) expectedLoad(load domain.ForecastSeries, from, to time.Time) float64 {
	if !load.Empty() {
		return sumEnergyBetween(load, from, to)
	}
	hours := to.Sub(from).Hours()
	factor := 1.0
	if c.params.UseSeasonality && c.params.Seasonality != [12]float64{} {
		factor = c.params.Seasonality[from.Month()-1]
	}
	return c.params.DefaultLoadKw * hours * factor
}

// placeWindows lays out the charge windows for the required battery
// energy. The main window abuts the low-cost boundary; when now sits
// inside a low-cost window and splitting is enabled, a leading window
// uses the remaining cheap time first.
func (c *ChargeNeedCalculator) placeWindows(now time.Time, battery domain.BatteryState, requiredKWh float64, inside *domain.LowCostWindow, boundary domain.LowCostWindow) []domain.ChargeWindow {
	duration := c.chargeDuration(requiredKWh)
	targetSoC := c.targetSoC(battery, requiredKWh)

	var windows []domain.ChargeWindow
	earliest := now

	if inside != nil && c.params.AllowSplitWindows && inside.End.Before(boundary.Start) {
		cheap := inside.End.Sub(now)
		if cheap > duration {
			cheap = duration
		}
		if cheap >= c.params.MinWindow {
			windows = append(windows, domain.ChargeWindow{
				Start:            now,
				End:              now.Add(cheap),
				TargetSoCPercent: targetSoC,
			})
			duration -= cheap
			// a leftover below the floor still becomes a full MinWindow
			if duration > 0 && duration < c.params.MinWindow {
				duration = c.params.MinWindow
			}
			earliest = inside.End
		}
	}

	if duration > 0 {
		start := boundary.Start.Add(-duration)
		if start.Before(earliest) {
			start = earliest
		}
		if boundary.Start.Sub(start) > 0 {
			windows = append(windows, domain.ChargeWindow{
				Start:            start,
				End:              boundary.Start,
				TargetSoCPercent: targetSoC,
			})
		}
	}
	return windows
}

// chargeDuration converts battery-side energy into wall time at max
// charge power, floored at the inverter's minimum window.
func (c *ChargeNeedCalculator) chargeDuration(requiredKWh float64) time.Duration {
	hours := requiredKWh / (c.profile.MaxChargePowerKW * c.params.ChargeEfficiency)
	d := time.Duration(hours * float64(time.Hour))
	if d < c.params.MinWindow {
		d = c.params.MinWindow
	}
	return d
}

// targetSoC is the state of charge the inverter should stop at: the
// current level plus the required energy.
func (c *ChargeNeedCalculator) targetSoC(battery domain.BatteryState, requiredKWh float64) float64 {
	if c.profile.UsableCapacityKWh <= 0 {
		return 100
	}
	target := (battery.UsableEnergyKWh + requiredKWh) / c.profile.UsableCapacityKWh * 100
	return math.Min(100, math.Ceil(target))
}

func sumEnergyBetween(series domain.ForecastSeries, from, to time.Time) float64 {
	total := 0.0
	for _, s := range series.Samples {
		if !s.Timestamp.Before(from) && s.Timestamp.Before(to) {
			total += s.EnergyKWh
		}
	}
	return total
}
