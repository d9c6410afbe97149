package util

import (
	"github.com/berfenger/chargepilot/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Cloud: config.CloudConfig{
			BaseURL:        "http://localhost:18080",
			Username:       "test",
			Password:       "test",
			DeviceId:       "ABC123",
			TimeoutSeconds: 5,
		},
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		Tariff: config.TariffConfig{
			Plan:             "octopus_flux",
			ScanHorizonHours: 48,
		},
		Battery: config.BatteryConfig{
			UsableCapacityKwh:   10,
			MaxChargePowerKw:    3.7,
			MaxDischargePowerKw: 3.7,
			MinReservePercent:   20,
		},
		Forecast: config.ForecastConfig{
			SourceTimeoutSeconds: 5,
		},
		Engine: config.EngineConfig{
			RunAfterHour:           22,
			FreshnessBoundMinutes:  15,
			ContingencyFactor:      1.25,
			ChargeEfficiency:       0.92,
			DefaultLoadKw:          0.5,
			MinChargeWindowMinutes: 15,
		},
		Report: config.ReportConfig{
			Enable:     false,
			UploadDays: 1,
		},
		Schedule: config.ScheduleConfig{
			ChargeCheckCron:  "0 0 22 * * *",
			ReportUploadCron: "0 30 9 * * *",
		},
		Port: 8080,
	}
}
