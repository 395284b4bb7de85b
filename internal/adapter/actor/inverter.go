package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/events"
	"github.com/berfenger/powermon/internal/metrics"
	"github.com/berfenger/powermon/internal/util/actorutil"
	"github.com/berfenger/powermon/pkg/huawei_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	INVERTER_STATE_DISCONNECTED = "disconnected"
	INVERTER_STATE_CONNECTING   = "connecting"
	INVERTER_STATE_SETTLING     = "settling"
	INVERTER_STATE_POLLING      = "polling"
	INVERTER_STATE_STOPPING     = "stopping"
)

// InverterActor polls the inverter registers on a fixed interval and hands
// every complete reading to the aggregator. Any connection or read error
// stops the actor; there is no reconnect.
type InverterActor struct {
	behavior     actor.Behavior
	scheduler    *scheduler.TimerScheduler
	cancelPoll   scheduler.CancelFunc
	reader       huawei_modbus.RegisterReader
	inverter     *huawei_modbus.InverterReader
	aggregator   *actor.PID
	pollInterval time.Duration
	state        string
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

type pollTick struct {
}

type pollResult struct {
	reading *huawei_modbus.InverterReading
	err     error
}

func NewInverterActor(reader huawei_modbus.RegisterReader, aggregator *actor.PID, pollInterval time.Duration,
	m *metrics.Metrics, logger *zap.Logger) *InverterActor {
	logger = actorutil.ActorLogger(domain.ACTOR_ID_INVERTER, logger)
	act := &InverterActor{
		behavior:     actor.NewBehavior(),
		reader:       reader,
		inverter:     huawei_modbus.NewInverterReader(reader, logger),
		aggregator:   aggregator,
		pollInterval: pollInterval,
		state:        INVERTER_STATE_DISCONNECTED,
		metrics:      m,
		logger:       logger,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *InverterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *InverterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("inverter@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		state.state = INVERTER_STATE_CONNECTING
		if err := state.reader.Connect(); err != nil {
			state.fail(ctx, "inverter@starting could not connect to inverter", err)
			return
		}
		state.state = INVERTER_STATE_SETTLING
		state.reader.Settle()

		state.state = INVERTER_STATE_POLLING
		state.behavior.Become(state.PollingReceive)
		ctx.Send(ctx.Self(), pollTick{})
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("inverter@starting default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *InverterActor) PollingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollTick:
		// a cycle runs to completion before any other message is handled;
		// each read is bounded by the transport timeout only
		actorutil.NewBackgroundTask(ctx, func() (*pollResult, error) {
			reading, err := state.inverter.ReadInverter()
			return &pollResult{reading: reading, err: err}, nil
		}).Recover(func(err error) pollResult {
			return pollResult{err: err}
		}).PipeTo(ctx.Self())
	case pollResult:
		state.metrics.PollCycle(msg.err)
		if msg.err != nil {
			state.fail(ctx, "inverter@polling could not read inverter registers", msg.err)
			return
		}
		rec := events.InverterReadingToRecord(msg.reading)
		state.logger.Debug("inverter@polling reading collected",
			zap.Float64("instant_prod", msg.reading.InstantProd), zap.Float64("daily_prod", msg.reading.DailyProd))
		if state.aggregator != nil {
			ctx.Send(state.aggregator, domain.SubmitReadingRequest{Record: rec})
		}
		state.cancelPoll = state.scheduler.SendOnce(state.pollInterval, ctx.Self(), pollTick{})
	case domain.ActorHealthRequest:
		state.logger.Debug("inverter@polling ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_INVERTER,
			Healthy: true,
			State:   state.state,
		})
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("inverter@polling default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *InverterActor) fail(ctx actor.Context, msg string, err error) {
	state.logger.Error(msg, zap.String("state", state.state), zap.Error(err))
	state.state = INVERTER_STATE_DISCONNECTED
	ctx.Stop(ctx.Self())
}

func (state *InverterActor) stop() {
	if state.cancelPoll != nil {
		state.cancelPoll()
	}
	if state.state == INVERTER_STATE_DISCONNECTED {
		_ = state.reader.Close()
		return
	}
	state.state = INVERTER_STATE_STOPPING
	state.logger.Debug("inverter: disconnect")
	if err := state.reader.Close(); err != nil {
		state.logger.Warn("inverter: close error", zap.Error(err))
	}
	state.state = INVERTER_STATE_DISCONNECTED
}
