package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoLowCostWindow is returned when the tariff calendar finds no
// low-cost window within its scan horizon.
var ErrNoLowCostWindow = errors.New("no low-cost window within horizon")

// ConfigError marks a malformed configuration. Fatal: the run aborts
// before any decision is made.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// StaleTelemetryError is returned when the latest telemetry sample is
// older than the freshness bound. Recoverable: caller policy decides
// whether to proceed with a warning or abort.
type StaleTelemetryError struct {
	Age   time.Duration
	Bound time.Duration
}

func (e StaleTelemetryError) Error() string {
	return fmt.Sprintf("telemetry is stale: sample age %s exceeds bound %s", e.Age.Round(time.Second), e.Bound)
}

// QuotaExceededError is returned when a forecast source's call quota
// for the current period is exhausted. Fatal for the current run, never
// retried.
type QuotaExceededError struct {
	Source string
	Limit  int
}

func (e QuotaExceededError) Error() string {
	return fmt.Sprintf("forecast source %s: call quota of %d exceeded", e.Source, e.Limit)
}

// InvalidIntervalError marks an empty or negative evaluation interval.
// Indicates an upstream logic error.
type InvalidIntervalError struct {
	Start time.Time
	End   time.Time
}

func (e InvalidIntervalError) Error() string {
	return fmt.Sprintf("invalid interval [%s, %s)", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// ValidationError marks a charge window set that violates the
// non-overlap/order invariant. Indicates a calculator bug.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid charge windows: %s", e.Reason)
}
