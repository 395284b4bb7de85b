package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/powermon/internal/adapter/actor"
	"github.com/berfenger/powermon/internal/config"
	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/util"
	"github.com/berfenger/powermon/internal/util/actorutil"
	"github.com/berfenger/powermon/pkg/huawei_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// frameLoop emits a meter frame every few milliseconds until cancelled.
type frameLoop struct{}

func (frameLoop) Open() error  { return nil }
func (frameLoop) Close() error { return nil }

func (frameLoop) Run(ctx context.Context, onLine func(string)) error {
	for {
		for _, l := range []string{`/FLU5\253769484_A`, `1-0:1.7.0(00.500*kW)`, `1-0:2.7.0(00.000*kW)`, `!7559`} {
			onLine(l)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

type batchRecorder struct {
	mu      sync.Mutex
	batches []domain.Batch
}

func (r *batchRecorder) Forward(_ context.Context, batch domain.Batch) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

func (r *batchRecorder) first() (domain.Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil, false
	}
	return r.batches[0], true
}

func spawnMaster(t *testing.T, cfg config.Config, reader *huawei_modbus.TestRegisterReader, fwd *batchRecorder) (*actor.ActorSystem, *actor.PID, *MasterOfPuppetsActor) {
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	providers := Providers{
		Inverter: func(aggregator *actor.PID) *adactor.InverterActor {
			return adactor.NewInverterActor(reader, aggregator, 50*time.Millisecond, nil, logger)
		},
		Meter: func(aggregator *actor.PID) *adactor.MeterActor {
			return adactor.NewMeterActor(frameLoop{}, aggregator, nil, logger)
		},
		Jeedom: func(es *eventstream.EventStream) *adactor.JeedomActor {
			return adactor.NewJeedomActor(fwd, es, time.Second, logger)
		},
		MQTT: func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		},
	}

	master := NewMasterOfPuppetsActor(cfg, providers, nil, logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return master
	}, actor.WithSupervisor(MasterSupervisor(logger)))
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	return as, pid, master
}

func masterHealth(t *testing.T, as *actor.ActorSystem, pid *actor.PID) domain.ActorHealthResponse {
	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	return healthResp
}

func TestMasterActor(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Jeedom.SendIntervalSecs = 1
	cfg.MQTT.Enable = true
	cfg.MQTT.HADiscoveryEnable = true

	fwd := &batchRecorder{}
	as, pid, _ := spawnMaster(t, cfg, huawei_modbus.CreateTestRegisterReader(), fwd)
	defer as.Shutdown()

	healthResp := masterHealth(t, as, pid)
	assert.True(healthResp.Healthy, "healthy is true")
	assert.Equal("running", healthResp.State)

	var batch domain.Batch
	require.Eventually(t, func() bool {
		var ok bool
		batch, ok = fwd.first()
		return ok
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal([]domain.Source{domain.SOURCE_ENERGY_METER, domain.SOURCE_INVERTER}, batch.Sources())
	v, _ := batch[domain.SOURCE_ENERGY_METER].Value(domain.FIELD_PULL_INSTANT)
	assert.Equal(0.5, v)

	res, err := as.Root.RequestFuture(pid, domain.GetPendingBatchRequest{}, time.Second).Result()
	require.NoError(t, err)
	pending, ok := res.(domain.GetPendingBatchResponse)
	require.True(t, ok)
	assert.True(pending.Enabled)

	as.Root.StopFuture(pid).Wait()
}

func TestMasterActorReportsStoppedCollector(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Collect = config.COLLECTOR_INVERTER

	reader := huawei_modbus.CreateTestRegisterReader()
	reader.ConnectErr = errors.New("connection refused")

	as, pid, _ := spawnMaster(t, cfg, reader, &batchRecorder{})
	defer as.Shutdown()

	var healthResp domain.ActorHealthResponse
	require.Eventually(t, func() bool {
		healthResp = masterHealth(t, as, pid)
		return !healthResp.Healthy
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal("stopped: "+domain.ACTOR_ID_INVERTER, healthResp.State)
}

type unknownMessage struct{}

func TestMasterActorDropsUnknownMessages(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.Collect = config.COLLECTOR_ENERGY_METER

	as, pid, master := spawnMaster(t, cfg, huawei_modbus.CreateTestRegisterReader(), &batchRecorder{})
	defer as.Shutdown()

	masterHealth(t, as, pid)
	as.Root.Send(pid, unknownMessage{})
	as.Root.Send(pid, unknownMessage{})
	healthResp := masterHealth(t, as, pid)

	assert.True(t, healthResp.Healthy)
	assert.Equal(t, 0, master.stash.Len())
}

func TestDiscoverySensors(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	sensors := DiscoverySensors(&cfg)
	assert.Len(sensors, 1+len(domain.InverterFields)+len(domain.MeterFields))

	cfg.Collect = config.COLLECTOR_ENERGY_METER
	sensors = DiscoverySensors(&cfg)
	assert.Len(sensors, 1+len(domain.MeterFields))
	for _, s := range sensors[1:] {
		assert.NotEmpty(s.Device.Id)
		assert.NotEmpty(s.UniqueId)
	}
}
