package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/port"
	"github.com/berfenger/powermon/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// JeedomActor forwards every flushed batch. Deliveries run outside the
// mailbox so a slow Jeedom never delays the next batch.
type JeedomActor struct {
	behavior       actor.Behavior
	forwarder      port.BatchForwarder
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	timeout        time.Duration
	cancel         context.CancelFunc
	ctx            context.Context
	inFlight       int
	delivered      int
	failed         int
	logger         *zap.Logger
}

type forwardResult struct {
	flushedAt time.Time
	errs      []error
}

func NewJeedomActor(forwarder port.BatchForwarder, eventStream *eventstream.EventStream, timeout time.Duration, logger *zap.Logger) *JeedomActor {
	act := &JeedomActor{
		behavior:    actor.NewBehavior(),
		forwarder:   forwarder,
		eventStream: eventStream,
		timeout:     timeout,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_JEEDOM, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *JeedomActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *JeedomActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("jeedom@default started")
		state.ctx, state.cancel = context.WithCancel(context.Background())
		send := actorutil.SendToSelf(ctx)
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.BatchReadyEvent); ok {
				send(ev)
			}
		})
	case domain.BatchReadyEvent:
		state.logger.Debug("jeedom@default BatchReadyEvent", zap.Strings("sources", sourceNames(msg.Batch)))
		state.forward(ctx, msg)
	case forwardResult:
		state.inFlight--
		if len(msg.errs) == 0 {
			state.delivered++
			state.logger.Info("jeedom@default batch delivered", zap.Time("flushed_at", msg.flushedAt))
			return
		}
		state.failed++
		for _, err := range msg.errs {
			state.logger.Error("jeedom@default delivery failed", zap.Error(err))
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("jeedom@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_JEEDOM,
			Healthy: true,
			State:   fmt.Sprintf("delivered=%d failed=%d in_flight=%d", state.delivered, state.failed, state.inFlight),
		})
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("jeedom@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *JeedomActor) forward(ctx actor.Context, ev domain.BatchReadyEvent) {
	state.inFlight++
	send := actorutil.SendToSelf(ctx)
	parent := state.ctx
	go func() {
		fctx, cancel := context.WithTimeout(parent, state.timeout)
		defer cancel()
		errs := state.forwarder.Forward(fctx, ev.Batch)
		send(forwardResult{flushedAt: ev.FlushedAt, errs: errs})
	}()
}

func (state *JeedomActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.cancel != nil {
		state.cancel()
	}
}

func sourceNames(batch domain.Batch) []string {
	var names []string
	for _, s := range batch.Sources() {
		names = append(names, string(s))
	}
	return names
}
