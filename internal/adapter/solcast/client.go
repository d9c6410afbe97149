// Package solcast fetches rooftop PV forecasts from the Solcast API.
// The free tier enforces a small daily call quota, so the client
// counts its own calls and fails fast once the budget is spent.
package solcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
	"github.com/berfenger/chargepilot/internal/core/port"

	"go.uber.org/zap"
)

const SourceName = "solcast"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	dailyQuota int
	quotaDay   string
	calls      int
}

var _ port.ForecastSource = (*Client)(nil)

func NewClient(baseURL, apiKey string, dailyQuota int, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		http:       &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("adapter", SourceName)),
		dailyQuota: dailyQuota,
	}
}

func (c *Client) Name() string {
	return SourceName
}

// consumeQuota reserves one API call from today's budget, or fails
// without touching the network when the budget is spent.
func (c *Client) consumeQuota(now time.Time) error {
	if c.dailyQuota <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	day := now.UTC().Format(time.DateOnly)
	if day != c.quotaDay {
		c.quotaDay = day
		c.calls = 0
	}
	if c.calls >= c.dailyQuota {
		return domain.QuotaExceededError{Source: SourceName, Limit: c.dailyQuota}
	}
	c.calls++
	return nil
}

type forecastResponse struct {
	Forecasts []struct {
		PvEstimate   float64  `json:"pv_estimate"`
		PvEstimate10 *float64 `json:"pv_estimate10"`
		PvEstimate90 *float64 `json:"pv_estimate90"`
		PeriodEnd    string   `json:"period_end"`
		Period       string   `json:"period"`
	} `json:"forecasts"`
}

func (c *Client) GetForecast(ctx context.Context, resourceId string, horizon time.Duration) ([]domain.ForecastSample, error) {
	if err := c.consumeQuota(time.Now()); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/rooftop_sites/%s/forecasts?format=json&hours=%d",
		c.baseURL, resourceId, int(horizon.Hours()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// the server-side quota ran out before ours did
		return nil, domain.QuotaExceededError{Source: SourceName, Limit: c.dailyQuota}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("solcast http status %d", resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	samples := make([]domain.ForecastSample, 0, len(body.Forecasts))
	for _, f := range body.Forecasts {
		end, err := time.Parse(time.RFC3339, f.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid period_end %q: %w", f.PeriodEnd, err)
		}
		// pv_estimate is average kW over a 30 minute period, so the
		// slot energy in kWh is half of it
		samples = append(samples, domain.ForecastSample{
			Timestamp:  end.Add(-domain.ForecastSlot),
			EnergyKWh:  f.PvEstimate / 2,
			Source:     SourceName,
			Estimate10: f.PvEstimate10,
			Estimate90: f.PvEstimate90,
		})
	}
	c.logger.Debug("forecast fetched", zap.Int("slots", len(samples)))
	return samples, nil
}
