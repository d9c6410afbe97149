package service

import (
	"context"
	"errors"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
	"github.com/berfenger/chargepilot/internal/core/port"

	"go.uber.org/zap"
)

// DecisionEngine runs one full charge check: fetch telemetry, fetch
// forecasts, compute the charge need and push the schedule to the
// inverter. It keeps no state between runs beyond the last result the
// caller chooses to retain.
type DecisionEngine struct {
	calendar   *TariffCalendar
	aggregator *ForecastAggregator
	tracker    *BatteryTracker
	calculator *ChargeNeedCalculator
	writer     ScheduleWriter
	cloud      port.InverterCloudClient
	deviceId   string

	// runAfterHour gates unforced runs to the late evening so the day's
	// generation is already known. Zero disables the gate.
	runAfterHour   int
	proceedOnStale bool
	horizon        time.Duration
	logger         *zap.Logger
}

func NewDecisionEngine(calendar *TariffCalendar, aggregator *ForecastAggregator, tracker *BatteryTracker,
	calculator *ChargeNeedCalculator, cloud port.InverterCloudClient, deviceId string,
	runAfterHour int, proceedOnStale bool, horizon time.Duration, logger *zap.Logger) *DecisionEngine {
	if horizon <= 0 {
		horizon = defaultScanHorizon
	}
	return &DecisionEngine{
		calendar:       calendar,
		aggregator:     aggregator,
		tracker:        tracker,
		calculator:     calculator,
		cloud:          cloud,
		deviceId:       deviceId,
		runAfterHour:   runAfterHour,
		proceedOnStale: proceedOnStale,
		horizon:        horizon,
		logger:         logger.With(zap.String("service", "engine")),
	}
}

// RunChargeCheck executes one charge check. force bypasses the
// run-after gate and the stale-telemetry abort. The returned result
// always carries an outcome; errors are folded into it.
func (e *DecisionEngine) RunChargeCheck(ctx context.Context, now time.Time, force bool) domain.RunResult {
	result := domain.RunResult{StartedAt: now}

	if next, err := e.calendar.NextLowCostWindow(now); err == nil {
		result.NextLowCostStart = &next.Start
	}

	if !force && e.runAfterHour > 0 && now.Hour() < e.runAfterHour {
		e.logger.Info("charge check not due yet", zap.Int("run_after_hour", e.runAfterHour))
		result.Outcome = domain.OutcomeSkippedNotDue
		return e.finish(result)
	}

	sample, err := e.cloud.GetLatestTelemetry(ctx, e.deviceId)
	if err != nil {
		return e.fail(result, err)
	}
	battery, err := e.tracker.StateFrom(*sample, now)
	if err != nil {
		var stale domain.StaleTelemetryError
		if !errors.As(err, &stale) {
			return e.fail(result, err)
		}
		if !force && !e.proceedOnStale {
			e.logger.Warn("telemetry is stale, skipping run", zap.Duration("age", stale.Age))
			result.Outcome = domain.OutcomeSkippedStaleData
			result.Warnings = append(result.Warnings, domain.Warning{
				Code:    domain.WarningStaleTelemetry,
				Message: stale.Error(),
			})
			return e.finish(result)
		}
		result.Warnings = append(result.Warnings, domain.Warning{
			Code:    domain.WarningStaleTelemetry,
			Message: stale.Error(),
		})
	}
	result.BatterySoCPercent = &battery.SoCPercent

	e.aggregator.Reset()
	generation, warnings, err := e.aggregator.Aggregate(ctx, e.horizon)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		var quota domain.QuotaExceededError
		if errors.As(err, &quota) {
			return e.fail(result, err)
		}
		// no source delivered: assume zero generation, keep the warnings
		e.logger.Warn("forecast unavailable, assuming zero generation", zap.Error(err))
		generation = domain.ForecastSeries{}
	}

	decision, err := e.calculator.Compute(now, battery, generation, domain.ForecastSeries{}, result.Warnings)
	if err != nil {
		return e.fail(result, err)
	}
	result.Warnings = decision.Warnings
	result.RequiredEnergyKWh = decision.RequiredEnergyKWh

	if !decision.Needed {
		// clear any window left over from an earlier run
		if err := e.cloud.SetChargeWindows(ctx, e.deviceId, nil); err != nil {
			return e.fail(result, err)
		}
		e.logger.Info("force charge not needed",
			zap.Float64("soc", battery.SoCPercent))
		result.Outcome = domain.OutcomeNotNeeded
		return e.finish(result)
	}

	commands, err := e.writer.Commands(decision)
	if err != nil {
		return e.fail(result, err)
	}
	if err := e.cloud.SetChargeWindows(ctx, e.deviceId, commands); err != nil {
		return e.fail(result, err)
	}

	e.logger.Info("force charge scheduled",
		zap.Float64("required_kwh", decision.RequiredEnergyKWh),
		zap.Int("windows", len(commands)))
	result.Outcome = domain.OutcomeCharged
	result.Windows = commands
	return e.finish(result)
}

func (e *DecisionEngine) fail(result domain.RunResult, err error) domain.RunResult {
	e.logger.Error("charge check failed", zap.Error(err))
	result.Outcome = domain.OutcomeFailed
	result.Error = err.Error()
	return e.finish(result)
}

func (e *DecisionEngine) finish(result domain.RunResult) domain.RunResult {
	result.FinishedAt = time.Now()
	return result
}

// ReportRunner fetches historical telemetry, folds it into daily
// records and pushes them to the report service.
type ReportRunner struct {
	cloud     port.InverterCloudClient
	uploader  port.ReportUploader
	formatter *ReportFormatter
	deviceId  string
	systemId  string
	logger    *zap.Logger
}

func NewReportRunner(cloud port.InverterCloudClient, uploader port.ReportUploader, formatter *ReportFormatter,
	deviceId, systemId string, logger *zap.Logger) *ReportRunner {
	return &ReportRunner{
		cloud:     cloud,
		uploader:  uploader,
		formatter: formatter,
		deviceId:  deviceId,
		systemId:  systemId,
		logger:    logger.With(zap.String("service", "report")),
	}
}

// UploadRange formats and uploads one record per day of [from, to].
// Returns how many records were accepted and how many were rejected.
func (r *ReportRunner) UploadRange(ctx context.Context, from, to time.Time) (int, int, error) {
	fetch := func(day time.Time) ([]domain.TelemetrySample, error) {
		return r.cloud.GetHistory(ctx, r.deviceId, day, day.AddDate(0, 0, 1))
	}

	var records []domain.ReportRecord
	for record, err := range r.formatter.DailyRecords(from, to, fetch) {
		if err != nil {
			return 0, 0, err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	statuses, err := r.uploader.Upload(ctx, r.systemId, records)
	if err != nil {
		return 0, 0, err
	}
	uploaded, failed := 0, 0
	for _, s := range statuses {
		if s.Err != nil {
			failed++
			r.logger.Warn("record upload failed",
				zap.Time("date", s.Record.Date), zap.Error(s.Err))
		} else {
			uploaded++
		}
	}
	return uploaded, failed, nil
}
