// Package forecastsolar fetches PV forecasts from the forecast.solar
// public API. The site plane (latitude, longitude, declination,
// azimuth, kWp) is encoded in the request path.
package forecastsolar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
	"github.com/berfenger/chargepilot/internal/core/port"

	"go.uber.org/zap"
)

const SourceName = "forecast_solar"

const timeLayout = "2006-01-02 15:04:05"

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

var _ port.ForecastSource = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("adapter", SourceName)),
	}
}

func (c *Client) Name() string {
	return SourceName
}

type estimateResponse struct {
	Result struct {
		WattHoursPeriod map[string]float64 `json:"watt_hours_period"`
	} `json:"result"`
}

// GetForecast queries /estimate/{plane}. resourceId is the plane path
// segment, e.g. "51.5/-0.1/37/0/5.6".
func (c *Client) GetForecast(ctx context.Context, resourceId string, horizon time.Duration) ([]domain.ForecastSample, error) {
	url := fmt.Sprintf("%s/estimate/%s", c.baseURL, resourceId)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.QuotaExceededError{Source: SourceName}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("forecast.solar http status %d", resp.StatusCode)
	}

	var body estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	samples := make([]domain.ForecastSample, 0, len(body.Result.WattHoursPeriod))
	for ts, wh := range body.Result.WattHoursPeriod {
		// period end timestamps in local time, energy in Wh
		end, err := time.ParseInLocation(timeLayout, ts, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		samples = append(samples, domain.ForecastSample{
			Timestamp: end.Add(-domain.ForecastSlot),
			EnergyKWh: wh / 1000,
			Source:    SourceName,
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	c.logger.Debug("forecast fetched", zap.Int("slots", len(samples)))
	return samples, nil
}
