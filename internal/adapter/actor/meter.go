package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/events"
	"github.com/berfenger/powermon/internal/metrics"
	"github.com/berfenger/powermon/internal/util/actorutil"
	"github.com/berfenger/powermon/pkg/p1_serial"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// LineSource delivers the meter output line by line.
type LineSource interface {
	Open() error
	Run(ctx context.Context, onLine func(line string)) error
	Close() error
}

// MeterActor rebuilds meter frames from the serial line stream. Lines are
// delivered through the mailbox so parsing is single threaded.
type MeterActor struct {
	behavior   actor.Behavior
	source     LineSource
	parser     *p1_serial.FrameParser
	aggregator *actor.PID
	cancel     context.CancelFunc
	frames     int
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

type lineReceived struct {
	line string
}

type lineSourceClosed struct {
	err error
}

func NewMeterActor(source LineSource, aggregator *actor.PID, m *metrics.Metrics, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		behavior:   actor.NewBehavior(),
		source:     source,
		parser:     p1_serial.NewFrameParser(),
		aggregator: aggregator,
		metrics:    m,
		logger:     actorutil.ActorLogger(domain.ACTOR_ID_METER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter@starting started")
		if err := state.source.Open(); err != nil {
			state.logger.Error("meter@starting could not open serial port", zap.Error(err))
			ctx.Stop(ctx.Self())
			return
		}

		runCtx, cancel := context.WithCancel(context.Background())
		state.cancel = cancel
		send := actorutil.SendToSelf(ctx)
		go func() {
			err := state.source.Run(runCtx, func(line string) {
				send(lineReceived{line: line})
			})
			send(lineSourceClosed{err: err})
		}()

		state.behavior.Become(state.ReadingReceive)
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("meter@starting default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) ReadingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case lineReceived:
		state.handleLine(ctx, msg.line)
	case lineSourceClosed:
		if errors.Is(msg.err, context.Canceled) {
			return
		}
		state.logger.Error("meter@reading serial connection lost", zap.Error(msg.err))
		ctx.Stop(ctx.Self())
	case domain.ActorHealthRequest:
		state.logger.Debug("meter@reading ActorHealthRequest")
		st := "waiting_frame"
		if state.parser.FrameOpen() {
			st = "in_frame"
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER,
			Healthy: true,
			State:   st,
		})
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("meter@reading default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) handleLine(ctx actor.Context, line string) {
	frame, err := state.parser.Feed(line)
	if err != nil {
		var framingErr *p1_serial.FramingError
		var parseErr *p1_serial.ParseError
		switch {
		case errors.As(err, &framingErr):
			state.metrics.FrameError("framing")
			state.logger.Warn("meter@reading new frame while handling a previous one", zap.Int("dropped", framingErr.Dropped))
		case errors.As(err, &parseErr):
			state.metrics.FrameError("parse")
			state.logger.Warn("meter@reading could not parse line", zap.String("line", parseErr.Line))
		default:
			state.logger.Error("meter@reading", zap.Error(err))
		}
		return
	}
	if frame == nil {
		return
	}

	state.frames++
	state.metrics.Frame()
	state.logger.Debug("meter@reading frame complete", zap.Int("fields", len(frame.Values)))
	if state.aggregator != nil {
		ctx.Send(state.aggregator, domain.SubmitReadingRequest{Record: events.MeterFrameToRecord(frame)})
	}
}

func (state *MeterActor) stop() {
	state.logger.Debug("meter: close serial port")
	if state.cancel != nil {
		state.cancel()
	}
	if err := state.source.Close(); err != nil {
		state.logger.Warn("meter: close error", zap.Error(err))
	}
}
