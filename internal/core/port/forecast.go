package port

import (
	"context"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
)

// ForecastSource provides expected-generation samples for a rooftop
// resource. Sources are subject to a hard call quota per period:
// exceeding it must fail fast with domain.QuotaExceededError without
// making a network request.
type ForecastSource interface {
	Name() string
	GetForecast(ctx context.Context, resourceId string, horizon time.Duration) ([]domain.ForecastSample, error)
}
