// Package pvoutput uploads daily generation records to the PVOutput
// addoutput service.
package pvoutput

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
	"github.com/berfenger/chargepilot/internal/core/port"

	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

var _ port.ReportUploader = (*Client)(nil)

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("adapter", "pvoutput")),
	}
}

// Upload posts each record to addoutput.jsp. A rejected record does
// not stop the rest of the batch; every record gets its own status.
func (c *Client) Upload(ctx context.Context, systemId string, records []domain.ReportRecord) ([]port.RecordUploadStatus, error) {
	statuses := make([]port.RecordUploadStatus, 0, len(records))
	for _, record := range records {
		err := c.uploadOne(ctx, systemId, record)
		if err != nil {
			c.logger.Warn("output rejected",
				zap.String("date", record.Date.Format(time.DateOnly)), zap.Error(err))
		}
		statuses = append(statuses, port.RecordUploadStatus{Record: record, Err: err})
	}
	return statuses, nil
}

func (c *Client) uploadOne(ctx context.Context, systemId string, record domain.ReportRecord) error {
	form := url.Values{}
	form.Set("d", record.Date.Format("20060102"))
	form.Set("g", wattHours(record.GenerationKWh))
	form.Set("e", wattHours(record.ExportKWh))
	form.Set("ip", wattHours(record.ImportKWh))
	form.Set("c", wattHours(record.ConsumptionKWh))
	if record.PeakPowerKW > 0 {
		form.Set("pp", watts(record.PeakPowerKW))
		form.Set("pt", record.PeakTime.Format("15:04"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/service/r2/addoutput.jsp", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Pvoutput-Apikey", c.apiKey)
	req.Header.Set("X-Pvoutput-SystemId", systemId)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("pvoutput status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func wattHours(kwh float64) string {
	return fmt.Sprintf("%d", int(math.Round(kwh*1000)))
}

func watts(kw float64) string {
	return fmt.Sprintf("%d", int(math.Round(kw*1000)))
}
