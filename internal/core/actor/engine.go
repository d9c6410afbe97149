package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
	"github.com/berfenger/chargepilot/internal/core/service"
	"github.com/berfenger/chargepilot/internal/events"
	"github.com/berfenger/chargepilot/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const runTimeout = 2 * time.Minute

// EngineActor serializes charge checks and report uploads: one run at
// a time, requests arriving mid-run are stashed. The blocking work
// happens on a background task so the mailbox stays responsive.
type EngineActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	engine      *service.DecisionEngine
	reporter    *service.ReportRunner
	eventStream *eventstream.EventStream
	lastRun     *domain.RunResult
	logger      *zap.Logger
}

type chargeCheckDone struct {
	result  domain.RunResult
	replyTo *actor.PID
}

type reportUploadDone struct {
	uploaded int
	failed   int
	err      error
	replyTo  *actor.PID
}

func NewEngineActor(engine *service.DecisionEngine, reporter *service.ReportRunner,
	eventStream *eventstream.EventStream, logger *zap.Logger) *EngineActor {
	act := &EngineActor{
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		engine:      engine,
		reporter:    reporter,
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_ENGINE, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *EngineActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *EngineActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("engine@default started")
	case domain.ActorHealthRequest:
		state.logger.Debug("engine@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ENGINE,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetLastRunRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.GetLastRunResponse{
			Result: state.lastRun,
		})
	case domain.RunChargeCheckRequest:
		state.logger.Info("engine@default charge check requested", zap.Bool("force", msg.Force))
		state.startChargeCheck(ctx, msg)
	case domain.RunReportUploadRequest:
		state.logger.Info("engine@default report upload requested",
			zap.Time("from", msg.From), zap.Time("to", msg.To))
		state.startReportUpload(ctx, msg)
	default:
		state.logger.Debug("engine@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *EngineActor) BusyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case chargeCheckDone:
		state.lastRun = &msg.result
		state.publishRunResult(msg.result)
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, domain.RunChargeCheckResponse{Result: msg.result})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case reportUploadDone:
		if msg.err != nil {
			state.logger.Error("engine@busy report upload failed", zap.Error(msg.err))
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, domain.RunReportUploadResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.err,
				},
				Uploaded: msg.uploaded,
				Failed:   msg.failed,
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ENGINE,
			Healthy: true,
			State:   "busy",
		})
	default:
		state.logger.Debug("engine@busy stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *EngineActor) startChargeCheck(ctx actor.Context, msg domain.RunChargeCheckRequest) {
	replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
	engine := state.engine
	force := msg.Force
	actorutil.NewBackgroundTaskNoError(ctx, func() *chargeCheckDone {
		runCtx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		result := engine.RunChargeCheck(runCtx, time.Now(), force)
		return &chargeCheckDone{result: result, replyTo: replyTo}
	}).WithTimeout(runTimeout + 10*time.Second).OnError(func(err error) {
		ctx.Send(ctx.Self(), chargeCheckDone{
			result: domain.RunResult{
				Outcome:   domain.OutcomeFailed,
				Error:     err.Error(),
				StartedAt: time.Now(),
			},
			replyTo: replyTo,
		})
	}).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.BusyReceive)
}

func (state *EngineActor) startReportUpload(ctx actor.Context, msg domain.RunReportUploadRequest) {
	replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
	if state.reporter == nil {
		if replyTo != nil {
			ctx.Send(replyTo, domain.RunReportUploadResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: domain.ConfigError{Reason: "report upload is not configured"},
				},
			})
		}
		return
	}
	reporter := state.reporter
	from, to := msg.From, msg.To
	actorutil.NewBackgroundTask(ctx, func() (*reportUploadDone, error) {
		runCtx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		uploaded, failed, err := reporter.UploadRange(runCtx, from, to)
		return &reportUploadDone{uploaded: uploaded, failed: failed, err: err, replyTo: replyTo}, nil
	}).WithTimeout(runTimeout + 10*time.Second).OnError(func(err error) {
		ctx.Send(ctx.Self(), reportUploadDone{err: err, replyTo: replyTo})
	}).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.BusyReceive)
}

// publishRunResult pushes the run figures to the event stream so the
// MQTT bridge can expose them as sensors.
func (state *EngineActor) publishRunResult(result domain.RunResult) {
	if state.eventStream == nil {
		return
	}
	state.eventStream.Publish(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: events.SENSOR_ID_LAST_RUN_OUTCOME},
		Value:                  string(result.Outcome),
	})
	state.eventStream.Publish(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: events.SENSOR_ID_REQUIRED_ENERGY},
		Value:                  result.RequiredEnergyKWh,
		Decimals:               2,
	})
	state.eventStream.Publish(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: events.SENSOR_ID_CHARGE_SCHEDULED},
		Value:                  result.Outcome == domain.OutcomeCharged,
	})
	if result.BatterySoCPercent != nil {
		state.eventStream.Publish(domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: events.SENSOR_ID_BATTERY_SOC},
			Value:                  *result.BatterySoCPercent,
			Decimals:               1,
		})
	}
	if result.NextLowCostStart != nil {
		state.eventStream.Publish(domain.TextSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: events.SENSOR_ID_NEXT_LOW_COST_START},
			Value:                  result.NextLowCostStart.Format(time.RFC3339),
		})
	}
}
