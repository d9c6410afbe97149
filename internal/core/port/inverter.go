package port

import (
	"context"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
)

// InverterCloudClient is the narrow contract to the inverter vendor
// cloud. Implementations must surface authentication failures and
// rate-limit responses distinctly from transient network errors.
type InverterCloudClient interface {
	GetLatestTelemetry(ctx context.Context, deviceId string) (*domain.TelemetrySample, error)
	GetHistory(ctx context.Context, deviceId string, from, to time.Time) ([]domain.TelemetrySample, error)
	SetChargeWindows(ctx context.Context, deviceId string, windows []domain.ChargeWindow) error
}
