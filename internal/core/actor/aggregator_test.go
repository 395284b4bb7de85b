package actor

import (
	"testing"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/service"
	"github.com/berfenger/powermon/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func record(source domain.Source, field string, v float64) domain.ReadingRecord {
	return domain.NewReadingRecord(source, time.Now(), map[string]*float64{field: domain.Float(v)}, nil)
}

func spawnAggregator(t *testing.T, gate *service.BatchGate) (*actor.ActorSystem, *actor.PID, chan domain.BatchReadyEvent) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	es := &eventstream.EventStream{}

	events := make(chan domain.BatchReadyEvent, 10)
	es.Subscribe(func(evt any) {
		if ev, ok := evt.(domain.BatchReadyEvent); ok {
			events <- ev
		}
	})

	props := actor.PropsFromProducer(func() actor.Actor { return NewAggregatorActor(gate, es, nil, logger) })
	pid := as.Root.Spawn(props)
	return as, pid, events
}

func submit(t *testing.T, as *actor.ActorSystem, pid *actor.PID, rec domain.ReadingRecord) bool {
	res, err := as.Root.RequestFuture(pid, domain.SubmitReadingRequest{Record: rec}, time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.SubmitReadingResponse)
	require.True(t, ok)
	return resp.Ready
}

func TestAggregatorFlushesWhenEverySourceReported(t *testing.T) {

	assert := assert.New(t)

	gate := service.NewBatchGate([]domain.Source{domain.SOURCE_ENERGY_METER, domain.SOURCE_INVERTER}, time.Hour)
	as, pid, events := spawnAggregator(t, gate)
	defer as.Shutdown()

	assert.False(submit(t, as, pid, record(domain.SOURCE_ENERGY_METER, domain.FIELD_PULL_DAY, 1)))
	assert.False(submit(t, as, pid, record(domain.SOURCE_ENERGY_METER, domain.FIELD_PULL_DAY, 2)))

	// not ready: nothing published, nothing cleared
	as.Root.Send(pid, flushTick{})
	res, err := as.Root.RequestFuture(pid, domain.GetPendingBatchRequest{}, time.Second).Result()
	require.NoError(t, err)
	pending := res.(domain.GetPendingBatchResponse)
	assert.True(pending.Enabled)
	assert.False(pending.Ready)
	assert.Len(pending.Batch, 1)
	assert.Empty(events)

	assert.True(submit(t, as, pid, record(domain.SOURCE_INVERTER, domain.FIELD_INSTANT_PROD, 3)))
	as.Root.Send(pid, flushTick{})

	select {
	case ev := <-events:
		assert.Len(ev.Batch, 2)
		v, _ := ev.Batch[domain.SOURCE_ENERGY_METER].Value(domain.FIELD_PULL_DAY)
		assert.Equal(2.0, v, "latest reading wins")
	case <-time.After(2 * time.Second):
		t.Fatal("batch not published")
	}

	// second tick without new readings publishes nothing
	as.Root.Send(pid, flushTick{})
	res, err = as.Root.RequestFuture(pid, domain.GetPendingBatchRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.Empty(res.(domain.GetPendingBatchResponse).Batch)
	assert.Empty(events)
}

func TestAggregatorTimerFlush(t *testing.T) {

	gate := service.NewBatchGate([]domain.Source{domain.SOURCE_ENERGY_METER}, 100*time.Millisecond)
	as, pid, events := spawnAggregator(t, gate)
	defer as.Shutdown()

	submit(t, as, pid, record(domain.SOURCE_ENERGY_METER, domain.FIELD_PULL_DAY, 1))

	select {
	case ev := <-events:
		assert.Equal(t, []domain.Source{domain.SOURCE_ENERGY_METER}, ev.Batch.Sources())
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not flush")
	}
}

func TestAggregatorDisabled(t *testing.T) {

	assert := assert.New(t)

	gate := service.NewBatchGate([]domain.Source{domain.SOURCE_ENERGY_METER}, 0)
	as, pid, events := spawnAggregator(t, gate)
	defer as.Shutdown()

	assert.False(submit(t, as, pid, record(domain.SOURCE_ENERGY_METER, domain.FIELD_PULL_DAY, 1)))
	as.Root.Send(pid, flushTick{})

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal("disabled", health.State)
	assert.Empty(events)
}
