package forecastsolar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetForecastParsesPeriods(t *testing.T) {

	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/estimate/51.5/-0.1/37/0/5.6", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":{"watt_hours_period":{
			"2026-03-04 10:30:00": 900,
			"2026-03-04 10:00:00": 750
		}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())
	samples, err := client.GetForecast(context.Background(), "51.5/-0.1/37/0/5.6", 24*time.Hour)
	require.NoError(err)

	require.Len(samples, 2)
	// sorted ascending, Wh converted to kWh
	assert.True(t, samples[0].Timestamp.Before(samples[1].Timestamp))
	assert.InDelta(t, 0.75, samples[0].EnergyKWh, 0.001)
	assert.InDelta(t, 0.9, samples[1].EnergyKWh, 0.001)
}

func TestRateLimitMapsToQuotaError(t *testing.T) {

	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())
	_, err := client.GetForecast(context.Background(), "51.5/-0.1/37/0/5.6", 24*time.Hour)

	var quotaErr domain.QuotaExceededError
	require.ErrorAs(err, &quotaErr)
}
