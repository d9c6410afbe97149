package service

import (
	"fmt"

	"github.com/berfenger/chargepilot/internal/core/domain"
)

// ScheduleWriter turns a charge decision into the ordered window list
// the inverter accepts. Pure transform, no I/O. A decision whose
// windows overlap or run backward indicates a calculator bug and fails
// with ValidationError instead of being silently fixed.
type ScheduleWriter struct{}

func (ScheduleWriter) Commands(decision domain.ChargeDecision) ([]domain.ChargeWindow, error) {
	if !decision.Needed {
		return nil, nil
	}
	windows := decision.Windows
	for i, w := range windows {
		if !w.Start.Before(w.End) {
			return nil, domain.ValidationError{
				Reason: fmt.Sprintf("charge window %d is empty or reversed (%s >= %s)", i, w.Start, w.End),
			}
		}
		if i > 0 && w.Start.Before(windows[i-1].End) {
			return nil, domain.ValidationError{
				Reason: fmt.Sprintf("charge windows %d and %d overlap or are out of order", i-1, i),
			}
		}
	}
	return windows, nil
}
