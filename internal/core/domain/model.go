package domain

import (
	"fmt"
	"time"
)

// ForecastSlot is the fixed interval covered by a single ForecastSample.
const ForecastSlot = 30 * time.Minute

// TariffPeriod is a time-of-use rate period. Start/End are minutes from
// midnight, End exclusive. Periods never wrap midnight: tariffs with an
// overnight window are expressed as two periods (one ending at 24:00,
// one starting at 00:00).
type TariffPeriod struct {
	Name      string
	Days      Weekdays
	StartMin  int
	EndMin    int
	LowCost   bool
	UnitPrice float64
}

// Weekdays is a day-of-week bitmask, bit 0 = Sunday (time.Weekday order).
type Weekdays uint8

const AllWeekdays Weekdays = 0x7f

func (w Weekdays) Contains(day time.Weekday) bool {
	return w&(1<<uint(day)) != 0
}

func WeekdaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// LowCostWindow is a contiguous low-cost interval [Start, End).
type LowCostWindow struct {
	Start time.Time
	End   time.Time
}

func (w LowCostWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ForecastSample is the expected generation for one slot starting at
// Timestamp. Estimate10/Estimate90 carry the confidence band when the
// source provides one.
type ForecastSample struct {
	Timestamp  time.Time
	EnergyKWh  float64
	Source     string
	Estimate10 *float64
	Estimate90 *float64
}

// ForecastSeries is a merged, slot-ordered expected-generation series.
// Slots with no source coverage are absent from Samples.
type ForecastSeries struct {
	Samples []ForecastSample
}

func (s ForecastSeries) TotalKWh() float64 {
	var total float64
	for _, sample := range s.Samples {
		total += sample.EnergyKWh
	}
	return total
}

func (s ForecastSeries) Empty() bool {
	return len(s.Samples) == 0
}

// TelemetrySample is one inverter cloud telemetry snapshot.
type TelemetrySample struct {
	Timestamp    time.Time
	SoCPercent   float64
	GridImportKW float64
	GridExportKW float64
	PVPowerKW    float64
	LoadPowerKW  float64
}

// BatteryProfile is supplied by configuration and immutable per run.
type BatteryProfile struct {
	UsableCapacityKWh   float64
	MaxChargePowerKW    float64
	MaxDischargePowerKW float64
	MinReservePercent   float64
}

func (p BatteryProfile) ReserveEnergyKWh() float64 {
	return p.UsableCapacityKWh * p.MinReservePercent / 100
}

// BatteryState is derived from the latest telemetry sample.
type BatteryState struct {
	SoCPercent      float64
	UsableEnergyKWh float64
	// HeadroomKWh is the energy that still fits before the battery is full.
	HeadroomKWh float64
	// AboveReserveKWh is the energy available above the minimum reserve.
	AboveReserveKWh float64
	SampleAge       time.Duration
}

// ChargeWindow is a force-charge command slot for the inverter.
type ChargeWindow struct {
	Start            time.Time
	End              time.Time
	TargetSoCPercent float64
}

func (w ChargeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// ChargeDecision is the output of the charge need calculator.
type ChargeDecision struct {
	Needed            bool
	RequiredEnergyKWh float64
	Windows           []ChargeWindow
	Warnings          []Warning
}

// Warning is a non-fatal condition attached to a decision or run result
// instead of aborting the run.
type Warning struct {
	Code    string
	Message string
}

const (
	WarningPartialForecastData = "partial_forecast_data"
	WarningEmptyForecast       = "empty_forecast"
	WarningStaleTelemetry      = "stale_telemetry"
)

func PartialDataWarning(detail string) Warning {
	return Warning{Code: WarningPartialForecastData, Message: detail}
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// ReportRecord is a one-day generation report for the upload service.
type ReportRecord struct {
	Date           time.Time
	GenerationKWh  float64
	ExportKWh      float64
	ImportKWh      float64
	ConsumptionKWh float64
	PeakPowerKW    float64
	PeakTime       time.Time
	ZeroFilled     bool
}

// RunOutcome is the externally observable result of a scheduled run.
type RunOutcome string

const (
	OutcomeCharged          RunOutcome = "charged"
	OutcomeNotNeeded        RunOutcome = "not_needed"
	OutcomeSkippedStaleData RunOutcome = "skipped_stale_data"
	OutcomeSkippedNotDue    RunOutcome = "skipped_not_due"
	OutcomeFailed           RunOutcome = "failed"
)

// RunResult is reported to the scheduling layer after every invocation.
type RunResult struct {
	Outcome           RunOutcome     `json:"outcome"`
	RequiredEnergyKWh float64        `json:"required_energy_kwh"`
	BatterySoCPercent *float64       `json:"battery_soc_percent,omitempty"`
	Windows           []ChargeWindow `json:"windows,omitempty"`
	NextLowCostStart  *time.Time     `json:"next_low_cost_start,omitempty"`
	Warnings          []Warning      `json:"warnings,omitempty"`
	Error             string         `json:"error,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
}
