package actor

import (
	"context"
	"fmt"
	"testing"
	"time"

	adactor "github.com/berfenger/chargepilot/internal/adapter/actor"
	"github.com/berfenger/chargepilot/internal/config"
	"github.com/berfenger/chargepilot/internal/core/domain"
	"github.com/berfenger/chargepilot/internal/core/service"
	"github.com/berfenger/chargepilot/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCloudClient struct {
	windows []domain.ChargeWindow
}

func (c *stubCloudClient) GetLatestTelemetry(_ context.Context, _ string) (*domain.TelemetrySample, error) {
	return &domain.TelemetrySample{
		Timestamp:  time.Now(),
		SoCPercent: 50,
	}, nil
}

func (c *stubCloudClient) GetHistory(_ context.Context, _ string, _, _ time.Time) ([]domain.TelemetrySample, error) {
	return nil, nil
}

func (c *stubCloudClient) SetChargeWindows(_ context.Context, _ string, windows []domain.ChargeWindow) error {
	c.windows = windows
	return nil
}

func testEngineProvider(t *testing.T, cfg config.Config, cloud *stubCloudClient, logger *zap.Logger) EngineActorProvider {
	periods, err := cfg.Tariff.ToPeriods()
	require.NoError(t, err)
	horizon := time.Duration(cfg.Tariff.ScanHorizonHours) * time.Hour
	calendar, err := service.NewTariffCalendar(periods, horizon)
	require.NoError(t, err)

	profile := cfg.Battery.ToProfile()
	aggregator := service.NewForecastAggregator(nil, 5*time.Second, logger)
	tracker := service.NewBatteryTracker(profile, cfg.Engine.FreshnessBound())
	calculator := service.NewChargeNeedCalculator(calendar, profile, service.CalculatorParams{
		ContingencyFactor: cfg.Engine.ContingencyFactor,
		ChargeEfficiency:  cfg.Engine.ChargeEfficiency,
		DefaultLoadKw:     cfg.Engine.DefaultLoadKw,
		MinWindow:         cfg.Engine.MinChargeWindow(),
	})
	engine := service.NewDecisionEngine(calendar, aggregator, tracker, calculator, cloud,
		cfg.Cloud.DeviceId, cfg.Engine.RunAfterHour, cfg.Engine.ProceedOnStale, horizon, logger)

	return func(es *eventstream.EventStream) *EngineActor {
		return NewEngineActor(engine, nil, es, logger)
	}
}

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	cloud := &stubCloudClient{}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, testEngineProvider(t, cfg, cloud, logger), func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterActorForwardsChargeCheck(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	cloud := &stubCloudClient{}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, testEngineProvider(t, cfg, cloud, logger), func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	require.NoError(t, err)

	res, err := context.RequestFuture(pid, domain.RunChargeCheckRequest{Force: true}, 30*time.Second).Result()
	require.NoError(t, err)
	runResp, ok := res.(domain.RunChargeCheckResponse)
	require.True(t, ok)
	assert.NotEqual(t, domain.OutcomeFailed, runResp.Result.Outcome)
	assert.NotEqual(t, domain.OutcomeSkippedNotDue, runResp.Result.Outcome)

	res, err = context.RequestFuture(pid, domain.GetLastRunRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	lastResp, ok := res.(domain.GetLastRunResponse)
	require.True(t, ok)
	require.NotNil(t, lastResp.Result)
	assert.Equal(t, runResp.Result.Outcome, lastResp.Result.Outcome)

	context.Stop(pid)

	as.Shutdown()
}
