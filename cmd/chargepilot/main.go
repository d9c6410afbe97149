package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/chargepilot/internal/adapter/actor"
	"github.com/berfenger/chargepilot/internal/adapter/forecastsolar"
	"github.com/berfenger/chargepilot/internal/adapter/foxcloud"
	"github.com/berfenger/chargepilot/internal/adapter/pvoutput"
	"github.com/berfenger/chargepilot/internal/adapter/solcast"
	"github.com/berfenger/chargepilot/internal/config"
	"github.com/berfenger/chargepilot/internal/core/actor"
	"github.com/berfenger/chargepilot/internal/core/service"
	"github.com/berfenger/chargepilot/internal/scheduler"
	"github.com/berfenger/chargepilot/internal/server"
	"github.com/berfenger/chargepilot/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init Engine actor provider
	engineProv, err := engineActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, engineProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	// cron scheduler
	sched := scheduler.NewScheduler(cfg, ctx, pid, logger)
	if err := sched.Start(context.Background()); err != nil {
		panic(fmt.Sprintf("scheduler error: %s", err))
	}
	defer sched.Stop()

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => CHARGEPILOT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("CHARGEPILOT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("chargepilot")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Cloud.Username == "" || cfg.Cloud.Password == "" {
		return nil, errors.New("config params cloud.username and cloud.password are required")
	}
	if cfg.Cloud.DeviceId == "" {
		return nil, errors.New("config param cloud.device_id is required")
	}
	if cfg.Battery.UsableCapacityKwh <= 0 {
		return nil, errors.New("config param battery.usable_capacity_kwh should be > 0")
	}
	if cfg.Battery.MaxChargePowerKw <= 0 {
		return nil, errors.New("config param battery.max_charge_power_kw should be > 0")
	}
	if cfg.Battery.MinReservePercent < 0 || cfg.Battery.MinReservePercent > 100 {
		return nil, errors.New("config param battery.min_reserve_percent should be in [0, 100]")
	}
	if cfg.Engine.ContingencyFactor < 1 {
		return nil, errors.New("config param engine.contingency_factor should be >= 1")
	}
	if cfg.Engine.ChargeEfficiency <= 0 || cfg.Engine.ChargeEfficiency > 1 {
		return nil, errors.New("config param engine.charge_efficiency should be in (0, 1]")
	}
	if cfg.Engine.RunAfterHour < 0 || cfg.Engine.RunAfterHour > 23 {
		return nil, errors.New("config param engine.run_after_hour should be in [0, 23]")
	}
	if cfg.Report.Enable && (cfg.Report.APIKey == "" || cfg.Report.SystemId == "") {
		return nil, errors.New("config params report.api_key and report.system_id are required when report.enable is true")
	}

	return &cfg, nil
}

func engineActorProvider(cfg *config.Config, logger *zap.Logger) (actor.EngineActorProvider, error) {

	periods, err := cfg.Tariff.ToPeriods()
	if err != nil {
		return nil, err
	}
	horizon := time.Duration(cfg.Tariff.ScanHorizonHours) * time.Hour
	calendar, err := service.NewTariffCalendar(periods, horizon)
	if err != nil {
		return nil, err
	}

	cloud := foxcloud.NewClient(cfg.Cloud.BaseURL, cfg.Cloud.Username, cfg.Cloud.Password,
		time.Duration(cfg.Cloud.TimeoutSeconds)*time.Second, logger)

	profile := cfg.Battery.ToProfile()
	aggregator := service.NewForecastAggregator(forecastSources(cfg, logger),
		time.Duration(cfg.Forecast.SourceTimeoutSeconds)*time.Second, logger)
	tracker := service.NewBatteryTracker(profile, cfg.Engine.FreshnessBound())
	calculator := service.NewChargeNeedCalculator(calendar, profile, service.CalculatorParams{
		ContingencyFactor: cfg.Engine.ContingencyFactor,
		ChargeEfficiency:  cfg.Engine.ChargeEfficiency,
		DefaultLoadKw:     cfg.Engine.DefaultLoadKw,
		UseSeasonality:    cfg.Engine.UseSeasonality,
		AllowSplitWindows: cfg.Engine.AllowSplitWindows,
		MinWindow:         cfg.Engine.MinChargeWindow(),
		Seasonality:       config.Seasonality,
	})
	engine := service.NewDecisionEngine(calendar, aggregator, tracker, calculator, cloud,
		cfg.Cloud.DeviceId, cfg.Engine.RunAfterHour, cfg.Engine.ProceedOnStale, horizon, logger)

	var reporter *service.ReportRunner
	if cfg.Report.Enable {
		uploader := pvoutput.NewClient(cfg.Report.BaseURL, cfg.Report.APIKey, 30*time.Second, logger)
		formatter := service.NewReportFormatter(0, cfg.Report.ZeroFillMissingDays)
		reporter = service.NewReportRunner(cloud, uploader, formatter, cfg.Cloud.DeviceId, cfg.Report.SystemId, logger)
	}

	return func(es *eventstream.EventStream) *actor.EngineActor {
		return actor.NewEngineActor(engine, reporter, es, logger)
	}, nil
}

func forecastSources(cfg *config.Config, logger *zap.Logger) []service.SourceBinding {
	var sources []service.SourceBinding
	timeout := time.Duration(cfg.Forecast.SourceTimeoutSeconds) * time.Second
	if cfg.Forecast.Solcast.Enable {
		sources = append(sources, service.SourceBinding{
			Source: solcast.NewClient(viper.GetString("forecast.solcast.base_url"), cfg.Forecast.Solcast.APIKey,
				cfg.Forecast.Solcast.DailyQuota, timeout, logger),
			ResourceId:  cfg.Forecast.Solcast.ResourceId,
			Calibration: cfg.Forecast.Solcast.Calibration,
		})
	}
	if cfg.Forecast.ForecastSolar.Enable {
		sources = append(sources, service.SourceBinding{
			Source:      forecastsolar.NewClient(viper.GetString("forecast.forecast_solar.base_url"), timeout, logger),
			ResourceId:  cfg.Forecast.ForecastSolar.Plane,
			Calibration: cfg.Forecast.ForecastSolar.Calibration,
		})
	}
	return sources
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("cloud.base_url", "https://www.foxesscloud.com")
	viper.SetDefault("cloud.timeout_seconds", 30)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "chargepilot")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("tariff.plan", "octopus_flux")
	viper.SetDefault("tariff.scan_horizon_hours", 48)
	viper.SetDefault("forecast.source_timeout_seconds", 30)
	viper.SetDefault("forecast.solcast.base_url", "https://api.solcast.com.au")
	viper.SetDefault("forecast.solcast.daily_quota", 10)
	viper.SetDefault("forecast.forecast_solar.base_url", "https://api.forecast.solar")
	viper.SetDefault("engine.run_after_hour", 22)
	viper.SetDefault("engine.freshness_bound_minutes", 15)
	viper.SetDefault("engine.contingency_factor", 1.25)
	viper.SetDefault("engine.charge_efficiency", 0.92)
	viper.SetDefault("engine.default_load_kw", 0.5)
	viper.SetDefault("engine.use_seasonality", true)
	viper.SetDefault("engine.min_charge_window_minutes", 15)
	viper.SetDefault("report.base_url", "https://pvoutput.org")
	viper.SetDefault("report.upload_days", 1)
	viper.SetDefault("report.zero_fill_missing_days", true)
	viper.SetDefault("schedule.charge_check_cron", "0 0 22 * * *")
	viper.SetDefault("schedule.report_upload_cron", "0 30 9 * * *")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.Cloud.Username = "*redacted*"
	cfg.Cloud.Password = "*redacted*"
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Forecast.Solcast.APIKey = "*redacted*"
	cfg.Report.APIKey = "*redacted*"
	slog.Info("Using", "config", cfg)
}
