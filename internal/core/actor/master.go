package actor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	adactor "github.com/berfenger/powermon/internal/adapter/actor"
	"github.com/berfenger/powermon/internal/config"
	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/service"
	"github.com/berfenger/powermon/internal/metrics"
	. "github.com/berfenger/powermon/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type InverterActorProvider func(aggregator *actor.PID) *adactor.InverterActor

type MeterActorProvider func(aggregator *actor.PID) *adactor.MeterActor

type JeedomActorProvider func(*eventstream.EventStream) *adactor.JeedomActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// Providers build the children of the master actor. A nil provider leaves
// the matching child out.
type Providers struct {
	Inverter InverterActorProvider
	Meter    MeterActorProvider
	Jeedom   JeedomActorProvider
	MQTT     MQTTActorProvider
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	aggregatorActor    *actor.PID
	children           map[string]*actor.PID
	failed             map[string]bool
	providers          Providers
	metrics            *metrics.Metrics
	rootLogger         *zap.Logger
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected       int
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, providers Providers, m *metrics.Metrics, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		rootLogger:  logger,
		logger:      ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream: &eventstream.EventStream{},
		children:    map[string]*actor.PID{},
		failed:      map[string]bool{},
		providers:   providers,
		metrics:     m,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// aggregator first, collectors need its PID
		aggregatorPID, err := state.startAggregatorActor(ctx)
		if err != nil {
			panic(err)
		}
		state.aggregatorActor = aggregatorPID

		if state.providers.Jeedom != nil && state.config.FlushInterval() > 0 {
			if _, err := state.startChild(ctx, domain.ACTOR_ID_JEEDOM, func() actor.Actor {
				return state.providers.Jeedom(state.eventStream)
			}); err != nil {
				panic(err)
			}
		}

		if state.providers.MQTT != nil && state.config.MQTT.Enable {
			mqttPID, err := state.startChild(ctx, domain.ACTOR_ID_MQTT, func() actor.Actor {
				return state.providers.MQTT(state.eventStream)
			})
			if err != nil {
				panic(err)
			}
			if state.config.MQTT.HADiscoveryEnable {
				if err := state.startHADiscoveryActor(ctx, mqttPID); err != nil {
					panic(err)
				}
			}
		}

		if state.config.IsEnabled(domain.SOURCE_INVERTER) && state.providers.Inverter != nil {
			if _, err := state.startChild(ctx, domain.ACTOR_ID_INVERTER, func() actor.Actor {
				return state.providers.Inverter(state.aggregatorActor)
			}); err != nil {
				panic(err)
			}
		}
		if state.config.IsEnabled(domain.SOURCE_ENERGY_METER) && state.providers.Meter != nil {
			if _, err := state.startChild(ctx, domain.ACTOR_ID_METER, func() actor.Actor {
				return state.providers.Meter(state.aggregatorActor)
			}); err != nil {
				panic(err)
			}
		}

		state.logger.Info("master@starting children started", zap.Strings("children", state.childIds()))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		probed := state.healthProbed()
		state.currentHealthCheck.reset(len(probed))
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range probed {
			childId := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      childId,
					Healthy: false,
				}
			})
		}
		if state.currentHealthCheck.allReceived() {
			state.respondHealth(ctx)
			return
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetPendingBatchRequest:
		ctx.Forward(state.aggregatorActor)
	case domain.ActorHealthResponse:
		// late answer of a timed out health check
	case *actor.Terminated:
		id := state.childId(msg.Who)
		if id == "" {
			return
		}
		delete(state.children, id)
		if id == domain.ACTOR_ID_DISCOVERY {
			state.logger.Debug("master@default discovery done")
			return
		}
		state.failed[id] = true
		state.logger.Error("master@default child stopped", zap.String("child", id))
	default:
		state.logger.Debug("master@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.respondHealth(ctx)
		ctx.CancelReceiveTimeout()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {

			state.respondHealth(ctx)

			ctx.CancelReceiveTimeout()
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	case *actor.Terminated:
		// handled once the health check is done
		state.stash.Stash(ctx, msg)
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startAggregatorActor(ctx actor.Context) (*actor.PID, error) {
	gate := service.NewBatchGate(state.config.EnabledSources(), state.config.FlushInterval())
	return state.startChild(ctx, domain.ACTOR_ID_AGGREGATOR, func() actor.Actor {
		return NewAggregatorActor(gate, state.eventStream, state.metrics, state.rootLogger)
	})
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context, mqttPID *actor.PID) error {
	_, err := state.startChild(ctx, domain.ACTOR_ID_DISCOVERY, func() actor.Actor {
		return NewHADiscoveryActor(&state.config, mqttPID, state.rootLogger)
	})
	return err
}

func (state *MasterOfPuppetsActor) startChild(ctx actor.Context, id string, producer actor.Producer) (*actor.PID, error) {
	props := actor.PropsFromProducer(producer)
	pid, err := ctx.SpawnNamed(props, id)
	if err != nil {
		return nil, err
	}
	state.children[id] = pid
	return pid, nil
}

func (state *MasterOfPuppetsActor) childId(pid *actor.PID) string {
	for id, child := range state.children {
		if child.Id == pid.Id {
			return id
		}
	}
	return ""
}

// healthProbed lists the long running children, discovery is one-shot.
func (state *MasterOfPuppetsActor) healthProbed() map[string]*actor.PID {
	probed := map[string]*actor.PID{}
	for id, pid := range state.children {
		if id != domain.ACTOR_ID_DISCOVERY {
			probed[id] = pid
		}
	}
	return probed
}

func (state *MasterOfPuppetsActor) childIds() []string {
	var ids []string
	for id := range state.children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// respondHealth reports healthy only when every live child answered healthy
// and no child has stopped.
func (state *MasterOfPuppetsActor) respondHealth(ctx actor.Context) {
	healthy := state.currentHealthCheck.allHealthy()
	var failed []string
	for id := range state.failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	if len(failed) > 0 {
		healthy = false
	}
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: healthy,
		State:   "running",
	}
	if len(failed) > 0 {
		resp.State = "stopped: " + strings.Join(failed, ",")
	}
	if state.currentHealthCheck.respondTo != nil {
		ctx.Send(state.currentHealthCheck.respondTo, resp)
	}
}

// MasterSupervisor stops failing collectors and the discovery actor, every
// other child is restarted with backoff. Set it on the master props.
func MasterSupervisor(logger *zap.Logger) actor.SupervisorStrategy {
	return &childStrategy{
		logger:   ActorLogger(domain.ACTOR_ID_MASTER, logger),
		stopped:  []string{domain.ACTOR_ID_INVERTER, domain.ACTOR_ID_METER, domain.ACTOR_ID_DISCOVERY},
		fallback: actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second),
	}
}

type childStrategy struct {
	stopped  []string
	fallback actor.SupervisorStrategy
	logger   *zap.Logger
}

func (s *childStrategy) HandleFailure(system *actor.ActorSystem, supervisor actor.Supervisor, child *actor.PID, rs *actor.RestartStatistics, reason interface{}, message interface{}) {
	for _, id := range s.stopped {
		if child.Id == id || strings.HasSuffix(child.Id, "/"+id) {
			s.logger.Error("master: child failed, stopping", zap.String("child", child.Id), zap.Any("reason", reason))
			supervisor.StopChildren(child)
			return
		}
	}
	s.fallback.HandleFailure(system, supervisor, child, rs, reason, message)
}

func (state *healthCheckResult) reset(expected int) {
	state.expected = expected
	state.healthy = map[string]bool{}
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	if len(state.healthy) < state.expected {
		return false
	}
	for _, ok := range state.healthy {
		if !ok {
			return false
		}
	}
	return true
}
