package service

import (
	"iter"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
)

// HistoryFetch loads the telemetry samples of a single calendar day.
// The day argument is midnight in the reporting location.
type HistoryFetch func(day time.Time) ([]domain.TelemetrySample, error)

// ReportFormatter aggregates telemetry into one record per calendar
// day. The sequence it produces is lazy (each day is fetched when the
// consumer reaches it) and restartable (iterating again refetches).
type ReportFormatter struct {
	sampleInterval time.Duration
	zeroFill       bool
}

// NewReportFormatter builds a formatter for history sampled every
// sampleInterval. zeroFill controls whether days without samples are
// emitted as zero records or omitted.
func NewReportFormatter(sampleInterval time.Duration, zeroFill bool) *ReportFormatter {
	if sampleInterval <= 0 {
		sampleInterval = domain.ForecastSlot
	}
	return &ReportFormatter{
		sampleInterval: sampleInterval,
		zeroFill:       zeroFill,
	}
}

// DailyRecords yields records for each day of [from, to], ordered by
// date ascending. A fetch error yields the error and ends the
// sequence.
func (f *ReportFormatter) DailyRecords(from, to time.Time, fetch HistoryFetch) iter.Seq2[domain.ReportRecord, error] {
	return func(yield func(domain.ReportRecord, error) bool) {
		last := dayOf(to)
		for day := dayOf(from); !day.After(last); day = day.AddDate(0, 0, 1) {
			samples, err := fetch(day)
			if err != nil {
				yield(domain.ReportRecord{Date: day}, err)
				return
			}
			if len(samples) == 0 {
				if !f.zeroFill {
					continue
				}
				if !yield(domain.ReportRecord{Date: day, ZeroFilled: true}, nil) {
					return
				}
				continue
			}
			if !yield(f.aggregateDay(day, samples), nil) {
				return
			}
		}
	}
}

func (f *ReportFormatter) aggregateDay(day time.Time, samples []domain.TelemetrySample) domain.ReportRecord {
	intervalHours := f.sampleInterval.Hours()
	record := domain.ReportRecord{Date: day}
	for _, s := range samples {
		record.GenerationKWh += s.PVPowerKW * intervalHours
		record.ExportKWh += s.GridExportKW * intervalHours
		record.ImportKWh += s.GridImportKW * intervalHours
		record.ConsumptionKWh += s.LoadPowerKW * intervalHours
		if s.PVPowerKW > record.PeakPowerKW {
			record.PeakPowerKW = s.PVPowerKW
			record.PeakTime = s.Timestamp
		}
	}
	return record
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
