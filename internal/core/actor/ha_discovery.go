package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/powermon/internal/config"
	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/events"
	"github.com/berfenger/powermon/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the bridge and the enabled devices once the
// MQTT actor is connected, then stops.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	stash     *actorutil.Stash
	mqttActor *actor.PID
	logger    *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// the MQTT actor stashes requests until connected
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 15*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		sensors := DiscoverySensors(state.config)
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.PublishDiscoveryRequest{Sensors: sensors}, 5*time.Second), func(err error) any {
			return domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.Become(state.WaitingPublishReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingPublishReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if err := msg.Err(); err != nil {
			panic(err)
		}
		state.logger.Info("hadiscovery@publish: discovery published")
		ctx.Stop(ctx.Self())
	default:
		state.logger.Debug("hadiscovery@publish: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// DiscoverySensors lists the bridge sensors plus the sensors of every enabled collector.
func DiscoverySensors(cfg *config.Config) []domain.GenericSensor {
	bridgeDevice := events.BridgeDevice(cfg.MQTT.BaseTopic)
	sensors := events.BridgeSensors(bridgeDevice)

	if cfg.IsEnabled(domain.SOURCE_INVERTER) {
		inverterDevice := events.InverterDevice(fmt.Sprintf("%s:%d", cfg.Huawei.DongleIp, cfg.Huawei.DonglePort))
		inverterDevice.ViaDevice = bridgeDevice.Id
		sensors = append(sensors, events.InverterSensors(inverterDevice)...)
	}
	if cfg.IsEnabled(domain.SOURCE_ENERGY_METER) {
		meterDevice := events.MeterDevice(cfg.Sagemcom.UsbPath)
		meterDevice.ViaDevice = bridgeDevice.Id
		sensors = append(sensors, events.MeterSensors(meterDevice)...)
	}
	return sensors
}
