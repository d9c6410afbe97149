// Package foxcloud implements the inverter vendor cloud API: token
// login, realtime and historical telemetry and the battery charge time
// settings.
package foxcloud

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
	"github.com/berfenger/chargepilot/internal/core/port"

	"go.uber.org/zap"
)

const (
	errnoTokenInvalid   = 41808
	errnoTokenExpired   = 41809
	errnoBadCredentials = 41807
)

// AuthError reports rejected credentials or an unrecoverable token
// failure. Not retryable.
type AuthError struct {
	Message string
}

func (e AuthError) Error() string {
	return fmt.Sprintf("cloud authentication failed: %s", e.Message)
}

// RateLimitError reports a 429 from the cloud API. Retryable after
// backing off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("cloud rate limit hit, retry after %s", e.RetryAfter)
}

type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *zap.Logger

	mu    sync.Mutex
	token string
}

var _ port.InverterCloudClient = (*Client)(nil)

func NewClient(baseURL, username, password string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("adapter", "foxcloud")),
	}
}

type apiEnvelope struct {
	Errno  int             `json:"errno"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type loginResult struct {
	Token string `json:"token"`
}

func (c *Client) login(ctx context.Context) (string, error) {
	hash := md5.Sum([]byte(c.password))
	body := loginRequest{
		User:     c.username,
		Password: hex.EncodeToString(hash[:]),
	}
	var result loginResult
	if err := c.post(ctx, "/c/v0/user/login", "", body, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", AuthError{Message: "login returned no token"}
	}
	c.logger.Debug("cloud login ok")
	return result.Token, nil
}

// call performs an authenticated request, logging in lazily and once
// more when the token has expired.
func (c *Client) call(ctx context.Context, path string, body any, result any) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		fresh, err := c.login(ctx)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.token = fresh
		c.mu.Unlock()
		token = fresh
	}

	err := c.post(ctx, path, token, body, result)
	if isTokenError(err) {
		fresh, loginErr := c.login(ctx)
		if loginErr != nil {
			return loginErr
		}
		c.mu.Lock()
		c.token = fresh
		c.mu.Unlock()
		return c.post(ctx, path, fresh, body, result)
	}
	return err
}

func isTokenError(err error) bool {
	apiErr, ok := err.(apiError)
	return ok && (apiErr.errno == errnoTokenInvalid || apiErr.errno == errnoTokenExpired)
}

type apiError struct {
	errno   int
	message string
}

func (e apiError) Error() string {
	return fmt.Sprintf("cloud api error %d: %s", e.errno, e.message)
}

func (c *Client) post(ctx context.Context, path, token string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return AuthError{Message: resp.Status}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("cloud api http status %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Errno != 0 {
		if envelope.Errno == errnoBadCredentials {
			return AuthError{Message: envelope.Error}
		}
		return apiError{errno: envelope.Errno, message: envelope.Error}
	}
	if result != nil && len(envelope.Result) > 0 {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return time.Minute
}

type realQueryRequest struct {
	DeviceID  string   `json:"deviceID"`
	Variables []string `json:"variables"`
}

type realQueryResult struct {
	Time   string `json:"time"`
	Values []struct {
		Variable string  `json:"variable"`
		Value    float64 `json:"value"`
	} `json:"values"`
}

const cloudTimeLayout = "2006-01-02 15:04:05"

var telemetryVariables = []string{"SoC", "pvPower", "loadsPower", "gridConsumptionPower", "feedinPower"}

func (c *Client) GetLatestTelemetry(ctx context.Context, deviceId string) (*domain.TelemetrySample, error) {
	var result realQueryResult
	err := c.call(ctx, "/c/v0/device/real/query", realQueryRequest{
		DeviceID:  deviceId,
		Variables: telemetryVariables,
	}, &result)
	if err != nil {
		return nil, err
	}

	// the cloud speaks local wall time, same frame we send in GetHistory
	ts, err := time.ParseInLocation(cloudTimeLayout, result.Time, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid telemetry timestamp %q: %w", result.Time, err)
	}
	sample := domain.TelemetrySample{Timestamp: ts}
	for _, v := range result.Values {
		switch v.Variable {
		case "SoC":
			sample.SoCPercent = v.Value
		case "pvPower":
			sample.PVPowerKW = v.Value
		case "loadsPower":
			sample.LoadPowerKW = v.Value
		case "gridConsumptionPower":
			sample.GridImportKW = v.Value
		case "feedinPower":
			sample.GridExportKW = v.Value
		}
	}
	return &sample, nil
}

type historyRequest struct {
	DeviceID  string   `json:"deviceID"`
	Variables []string `json:"variables"`
	Timespan  string   `json:"timespan"`
	BeginDate string   `json:"beginDate"`
	EndDate   string   `json:"endDate"`
}

type historyResult struct {
	Series []struct {
		Variable string `json:"variable"`
		Data     []struct {
			Time  string  `json:"time"`
			Value float64 `json:"value"`
		} `json:"data"`
	} `json:"series"`
}

func (c *Client) GetHistory(ctx context.Context, deviceId string, from, to time.Time) ([]domain.TelemetrySample, error) {
	var result historyResult
	err := c.call(ctx, "/c/v0/device/history/raw", historyRequest{
		DeviceID:  deviceId,
		Variables: telemetryVariables,
		Timespan:  "hour",
		BeginDate: from.Format(cloudTimeLayout),
		EndDate:   to.Format(cloudTimeLayout),
	}, &result)
	if err != nil {
		return nil, err
	}

	byTime := map[string]*domain.TelemetrySample{}
	var order []string
	for _, series := range result.Series {
		for _, point := range series.Data {
			sample, ok := byTime[point.Time]
			if !ok {
				ts, err := time.ParseInLocation(cloudTimeLayout, point.Time, time.Local)
				if err != nil {
					return nil, fmt.Errorf("invalid history timestamp %q: %w", point.Time, err)
				}
				sample = &domain.TelemetrySample{Timestamp: ts}
				byTime[point.Time] = sample
				order = append(order, point.Time)
			}
			switch series.Variable {
			case "SoC":
				sample.SoCPercent = point.Value
			case "pvPower":
				sample.PVPowerKW = point.Value
			case "loadsPower":
				sample.LoadPowerKW = point.Value
			case "gridConsumptionPower":
				sample.GridImportKW = point.Value
			case "feedinPower":
				sample.GridExportKW = point.Value
			}
		}
	}
	samples := make([]domain.TelemetrySample, 0, len(order))
	for _, key := range order {
		samples = append(samples, *byTime[key])
	}
	return samples, nil
}

type chargeTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type chargeTimeSlot struct {
	EnableGrid bool       `json:"enableGrid"`
	StartTime  chargeTime `json:"startTime"`
	EndTime    chargeTime `json:"endTime"`
}

type setChargeTimesRequest struct {
	DeviceSN string           `json:"sn"`
	Times    []chargeTimeSlot `json:"times"`
}

// SetChargeWindows writes the force charge schedule. The inverter
// exposes exactly two charge time slots; unused ones are disabled.
func (c *Client) SetChargeWindows(ctx context.Context, deviceId string, windows []domain.ChargeWindow) error {
	if len(windows) > 2 {
		return fmt.Errorf("inverter supports at most 2 charge windows, got %d", len(windows))
	}
	slots := make([]chargeTimeSlot, 2)
	for i, w := range windows {
		slots[i] = chargeTimeSlot{
			EnableGrid: true,
			StartTime:  chargeTime{Hour: w.Start.Hour(), Minute: w.Start.Minute()},
			EndTime:    chargeTime{Hour: w.End.Hour(), Minute: w.End.Minute()},
		}
	}
	return c.call(ctx, "/c/v0/device/battery/time/set", setChargeTimesRequest{
		DeviceSN: deviceId,
		Times:    slots,
	}, nil)
}
