package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Cloud    CloudConfig    `mapstructure:"cloud"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Tariff   TariffConfig   `mapstructure:"tariff"`
	Battery  BatteryConfig  `mapstructure:"battery"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Report   ReportConfig   `mapstructure:"report"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type CloudConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Username       string
	Password       string
	DeviceId       string `mapstructure:"device_id"`
	TimeoutSeconds uint32 `mapstructure:"timeout_seconds"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type TariffConfig struct {
	// Plan selects a preset period table ("octopus_flux", "octopus_cosy",
	// "octopus_go", "intelligent_octopus") or "custom" to use Periods.
	Plan             string               `mapstructure:"plan"`
	Periods          []TariffPeriodConfig `mapstructure:"periods"`
	ScanHorizonHours uint32               `mapstructure:"scan_horizon_hours"`
}

type TariffPeriodConfig struct {
	Name      string
	Days      []string
	Start     string
	End       string
	LowCost   bool    `mapstructure:"low_cost"`
	UnitPrice float64 `mapstructure:"unit_price"`
}

type BatteryConfig struct {
	UsableCapacityKwh   float64 `mapstructure:"usable_capacity_kwh"`
	MaxChargePowerKw    float64 `mapstructure:"max_charge_power_kw"`
	MaxDischargePowerKw float64 `mapstructure:"max_discharge_power_kw"`
	MinReservePercent   float64 `mapstructure:"min_reserve_percent"`
}

type ForecastConfig struct {
	SourceTimeoutSeconds uint32              `mapstructure:"source_timeout_seconds"`
	Solcast              SolcastConfig       `mapstructure:"solcast"`
	ForecastSolar        ForecastSolarConfig `mapstructure:"forecast_solar"`
}

type SolcastConfig struct {
	Enable      bool
	APIKey      string `mapstructure:"api_key"`
	ResourceId  string `mapstructure:"resource_id"`
	DailyQuota  int    `mapstructure:"daily_quota"`
	Calibration float64
}

type ForecastSolarConfig struct {
	Enable bool
	// Plane is the "lat/lon/declination/azimuth/kwp" path segment of the
	// forecast API.
	Plane       string
	Calibration float64
}

type EngineConfig struct {
	RunAfterHour           int     `mapstructure:"run_after_hour"`
	FreshnessBoundMinutes  uint32  `mapstructure:"freshness_bound_minutes"`
	ProceedOnStale         bool    `mapstructure:"proceed_on_stale"`
	ContingencyFactor      float64 `mapstructure:"contingency_factor"`
	ChargeEfficiency       float64 `mapstructure:"charge_efficiency"`
	DefaultLoadKw          float64 `mapstructure:"default_load_kw"`
	UseSeasonality         bool    `mapstructure:"use_seasonality"`
	AllowSplitWindows      bool    `mapstructure:"allow_split_windows"`
	MinChargeWindowMinutes uint32  `mapstructure:"min_charge_window_minutes"`
}

type ReportConfig struct {
	Enable              bool
	APIKey              string `mapstructure:"api_key"`
	SystemId            string `mapstructure:"system_id"`
	BaseURL             string `mapstructure:"base_url"`
	ZeroFillMissingDays bool   `mapstructure:"zero_fill_missing_days"`
	UploadDays          int    `mapstructure:"upload_days"`
}

type ScheduleConfig struct {
	ChargeCheckCron  string `mapstructure:"charge_check_cron"`
	ReportUploadCron string `mapstructure:"report_upload_cron"`
}

func (c BatteryConfig) ToProfile() domain.BatteryProfile {
	return domain.BatteryProfile{
		UsableCapacityKWh:   c.UsableCapacityKwh,
		MaxChargePowerKW:    c.MaxChargePowerKw,
		MaxDischargePowerKW: c.MaxDischargePowerKw,
		MinReservePercent:   c.MinReservePercent,
	}
}

func (c EngineConfig) FreshnessBound() time.Duration {
	return time.Duration(c.FreshnessBoundMinutes) * time.Minute
}

func (c EngineConfig) MinChargeWindow() time.Duration {
	return time.Duration(c.MinChargeWindowMinutes) * time.Minute
}

// Seasonality weights consumption by month. The twelve values sum to 12.
var Seasonality = [12]float64{1.1, 1.1, 1.0, 1.0, 0.9, 0.9, 0.9, 0.9, 1.0, 1.0, 1.1, 1.1}

// Periods resolves the tariff plan to a period table. Preset plans are a
// closed data set; "custom" reads the configured period list.
func (c TariffConfig) ToPeriods() ([]domain.TariffPeriod, error) {
	plan := strings.ToLower(strings.TrimSpace(c.Plan))
	if plan == "" || plan == "custom" {
		if len(c.Periods) == 0 {
			return nil, domain.ConfigError{Reason: "tariff plan is custom but no periods are defined"}
		}
		return parsePeriods(c.Periods)
	}
	preset, ok := presetTariffs[plan]
	if !ok {
		return nil, domain.ConfigError{Reason: fmt.Sprintf("unknown tariff plan %q", c.Plan)}
	}
	return preset, nil
}

func parsePeriods(configs []TariffPeriodConfig) ([]domain.TariffPeriod, error) {
	periods := make([]domain.TariffPeriod, 0, len(configs))
	for _, pc := range configs {
		start, err := parseTimeOfDay(pc.Start)
		if err != nil {
			return nil, domain.ConfigError{Reason: fmt.Sprintf("period %q: invalid start %q", pc.Name, pc.Start)}
		}
		end, err := parseTimeOfDay(pc.End)
		if err != nil {
			return nil, domain.ConfigError{Reason: fmt.Sprintf("period %q: invalid end %q", pc.Name, pc.End)}
		}
		days, err := parseDays(pc.Days)
		if err != nil {
			return nil, domain.ConfigError{Reason: fmt.Sprintf("period %q: %s", pc.Name, err)}
		}
		periods = append(periods, domain.TariffPeriod{
			Name:      pc.Name,
			Days:      days,
			StartMin:  start,
			EndMin:    end,
			LowCost:   pc.LowCost,
			UnitPrice: pc.UnitPrice,
		})
	}
	return periods, nil
}

// parseTimeOfDay converts "HH:MM" to minutes from midnight. "24:00" is
// allowed as an exclusive day end.
func parseTimeOfDay(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day out of range: %q", s)
	}
	return h*60 + m, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseDays(days []string) (domain.Weekdays, error) {
	if len(days) == 0 {
		return domain.AllWeekdays, nil
	}
	var mask domain.Weekdays
	for _, d := range days {
		name := strings.ToLower(strings.TrimSpace(d))
		if len(name) < 3 {
			return 0, fmt.Errorf("unknown weekday %q", d)
		}
		wd, ok := weekdayNames[name[:3]]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", d)
		}
		mask |= domain.WeekdaysOf(wd)
	}
	return mask, nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
