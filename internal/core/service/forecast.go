package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
	"github.com/berfenger/chargepilot/internal/core/port"

	"go.uber.org/zap"
)

// SourceBinding ties a forecast source to the rooftop resource it
// should be queried for. Calibration scales the source's energy values
// against observed generation; zero means uncalibrated (factor 1).
type SourceBinding struct {
	Source      port.ForecastSource
	ResourceId  string
	Calibration float64
}

// ForecastAggregator fetches all configured sources concurrently and
// merges overlapping slots by arithmetic mean. Sources that fail are
// excluded from the merge and reported as warnings instead of failing
// the whole fetch. Fetched series are cached until Reset, so a single
// engine run never queries a source twice.
type ForecastAggregator struct {
	sources []SourceBinding
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string][]domain.ForecastSample
}

func NewForecastAggregator(sources []SourceBinding, timeout time.Duration, logger *zap.Logger) *ForecastAggregator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ForecastAggregator{
		sources: sources,
		timeout: timeout,
		logger:  logger.With(zap.String("service", "forecast")),
		cache:   map[string][]domain.ForecastSample{},
	}
}

// Reset drops cached source series. Call at the start of each run.
func (a *ForecastAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = map[string][]domain.ForecastSample{}
}

type sourceResult struct {
	name    string
	samples []domain.ForecastSample
	err     error
}

// Aggregate returns the merged generation series over the horizon. An
// error is returned only when every source fails; partial failures
// surface as warnings on the result. An exhausted call quota is the
// exception: it always aborts, running past it means the schedule is
// firing more often than the plan allows.
func (a *ForecastAggregator) Aggregate(ctx context.Context, horizon time.Duration) (domain.ForecastSeries, []domain.Warning, error) {
	if len(a.sources) == 0 {
		return domain.ForecastSeries{}, []domain.Warning{{
			Code:    domain.WarningEmptyForecast,
			Message: "no forecast sources configured",
		}}, nil
	}

	results := make(chan sourceResult, len(a.sources))
	for _, binding := range a.sources {
		if cached, ok := a.cachedSeries(binding.Source.Name()); ok {
			results <- sourceResult{name: binding.Source.Name(), samples: cached}
			continue
		}
		go func(b SourceBinding) {
			fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			samples, err := b.Source.GetForecast(fetchCtx, b.ResourceId, horizon)
			if err == nil {
				samples = calibrate(samples, b.Calibration)
			}
			results <- sourceResult{name: b.Source.Name(), samples: samples, err: err}
		}(binding)
	}

	var warnings []domain.Warning
	var merged []sourceResult
	var firstErr error
	var quotaErr error
	for range a.sources {
		r := <-results
		if r.err != nil {
			a.logger.Warn("forecast source failed", zap.String("source", r.name), zap.Error(r.err))
			var quota domain.QuotaExceededError
			if errors.As(r.err, &quota) && quotaErr == nil {
				quotaErr = r.err
			}
			warnings = append(warnings, domain.PartialDataWarning(fmt.Sprintf("source %s: %s", r.name, r.err)))
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		a.storeSeries(r.name, r.samples)
		merged = append(merged, r)
	}

	if quotaErr != nil {
		return domain.ForecastSeries{}, warnings, quotaErr
	}
	if len(merged) == 0 {
		return domain.ForecastSeries{}, warnings, fmt.Errorf("all forecast sources failed: %w", firstErr)
	}

	series := mergeByMean(merged)
	if series.Empty() {
		warnings = append(warnings, domain.Warning{
			Code:    domain.WarningEmptyForecast,
			Message: "forecast sources returned no samples",
		})
	}
	return series, warnings, nil
}

func (a *ForecastAggregator) cachedSeries(name string) ([]domain.ForecastSample, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.cache[name]
	return s, ok
}

func (a *ForecastAggregator) storeSeries(name string, samples []domain.ForecastSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[name] = samples
}

func calibrate(samples []domain.ForecastSample, factor float64) []domain.ForecastSample {
	if factor <= 0 || factor == 1 {
		return samples
	}
	out := make([]domain.ForecastSample, len(samples))
	for i, s := range samples {
		s.EnergyKWh *= factor
		out[i] = s
	}
	return out
}

// mergeByMean averages the energy of slots reported by more than one
// source. A slot missing from a source does not drag the mean down:
// only sources that reported it participate.
func mergeByMean(results []sourceResult) domain.ForecastSeries {
	type acc struct {
		sum   float64
		count int
	}
	slots := map[time.Time]*acc{}
	for _, r := range results {
		for _, s := range r.samples {
			key := s.Timestamp.UTC()
			if a, ok := slots[key]; ok {
				a.sum += s.EnergyKWh
				a.count++
			} else {
				slots[key] = &acc{sum: s.EnergyKWh, count: 1}
			}
		}
	}
	samples := make([]domain.ForecastSample, 0, len(slots))
	for ts, a := range slots {
		samples = append(samples, domain.ForecastSample{
			Timestamp: ts,
			EnergyKWh: a.sum / float64(a.count),
			Source:    "merged",
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return domain.ForecastSeries{Samples: samples}
}
