package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/port"
	"github.com/berfenger/powermon/internal/metrics"
	. "github.com/berfenger/powermon/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// AggregatorActor owns the pending batch. Collectors submit readings, a
// repeating tick publishes the batch once every enabled source is present.
type AggregatorActor struct {
	behavior    actor.Behavior
	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	gate        port.BatchGateLogic
	eventStream *eventstream.EventStream
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      *zap.Logger
}

type flushTick struct {
}

func NewAggregatorActor(gate port.BatchGateLogic, eventStream *eventstream.EventStream, m *metrics.Metrics, logger *zap.Logger) *AggregatorActor {
	act := &AggregatorActor{
		behavior:    actor.NewBehavior(),
		gate:        gate,
		eventStream: eventStream,
		metrics:     m,
		now:         time.Now,
		logger:      ActorLogger(domain.ACTOR_ID_AGGREGATOR, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *AggregatorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *AggregatorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("aggregator@default started")
		if !state.gate.Enabled() {
			state.logger.Warn("aggregator@default forwarding disabled, readings will be dropped")
			return
		}
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		period := state.gate.FlushPeriod()
		state.cancelTick = state.scheduler.SendRepeatedly(period, period, ctx.Self(), flushTick{})
	case domain.SubmitReadingRequest:
		source := msg.Record.Source()
		ready := state.gate.Submit(msg.Record)
		state.metrics.Submit(source)
		state.logger.Debug("aggregator@default reading submitted", zap.String("source", string(source)), zap.Bool("ready", ready))
		ForRequest(msg).Respond(ctx, domain.SubmitReadingResponse{Ready: ready})
	case flushTick:
		state.flush()
	case domain.GetPendingBatchRequest:
		ForRequest(msg).Respond(ctx, domain.GetPendingBatchResponse{
			Enabled: state.gate.Enabled(),
			Ready:   state.gate.Ready(),
			Batch:   state.gate.Pending(),
		})
	case domain.ActorHealthRequest:
		state.logger.Debug("aggregator@default ActorHealthRequest")
		st := "collecting"
		if !state.gate.Enabled() {
			st = "disabled"
		} else if state.gate.Ready() {
			st = "ready"
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_AGGREGATOR,
			Healthy: true,
			State:   st,
		})
	case *actor.Stopping:
		if state.cancelTick != nil {
			state.cancelTick()
		}
	default:
		state.logger.Debug("aggregator@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *AggregatorActor) flush() {
	batch, ok := state.gate.Take()
	if !ok {
		state.metrics.Flush("not_ready")
		state.logger.Debug("aggregator@flush batch not ready", zap.Int("pending", len(state.gate.Pending())))
		return
	}
	state.metrics.Flush("flushed")
	state.logger.Info("aggregator@flush sending collected data", zap.Any("sources", batch.Sources()))
	state.eventStream.Publish(domain.BatchReadyEvent{
		Batch:     batch,
		FlushedAt: state.now(),
	})
}
