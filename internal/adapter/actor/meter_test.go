package actor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/util/actorutil"
	"github.com/berfenger/powermon/pkg/p1_serial"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error {
	return nil
}

// blockingSource delivers its lines and then waits for cancellation.
type blockingSource struct {
	lines   []string
	mu      sync.Mutex
	closed  bool
	openErr error
}

func (s *blockingSource) Open() error {
	return s.openErr
}

func (s *blockingSource) Run(ctx context.Context, onLine func(string)) error {
	for _, l := range s.lines {
		onLine(l)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *blockingSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestMeterActorSubmitsFrames(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	aggregator, submits := submitProbe(as)
	source := &blockingSource{lines: []string{
		`/FLU5\253769484_A`,
		`1-0:1.8.1(000661.701*kWh)`,
		`garbage inside frame`,
		`1-0:2.7.0(00.135*kW)`,
		`!7559`,
		`/FLU5\253769484_A`,
		`1-0:1.7.0(01.000*kW)`,
		`!0000`,
	}}

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(source, aggregator, nil, logger)
	}))

	var records []domain.ReadingRecord
	for i := 0; i < 2; i++ {
		select {
		case msg := <-submits:
			records = append(records, msg.Record)
		case <-time.After(2 * time.Second):
			t.Fatal("no frame submitted")
		}
	}

	assert.Equal(domain.SOURCE_ENERGY_METER, records[0].Source())
	v, _ := records[0].Value(domain.FIELD_PULL_DAY)
	assert.Equal(661.701, v)
	v, _ = records[0].Value(domain.FIELD_PUSH_INSTANT)
	assert.Equal(0.135, v)
	assert.False(records[0].Has(domain.FIELD_PULL_NIGHT))
	v, _ = records[1].Value(domain.FIELD_PULL_INSTANT)
	assert.Equal(1.0, v)

	as.Root.StopFuture(pid).Wait()
	assert.True(source.isClosed())
}

func TestMeterActorStopsWhenStreamEnds(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	aggregator, submits := submitProbe(as)
	lines := strings.Join([]string{`/FLU5\x`, `1-0:1.8.2(000776.784*kWh)`, `!1`}, "\r\n") + "\r\n"
	source := p1_serial.NewLineReaderFrom(nopCloser{strings.NewReader(lines)})

	terminated := supervise(as, func() actor.Actor {
		return NewMeterActor(source, aggregator, nil, logger)
	})

	select {
	case <-terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("meter actor did not stop")
	}
	select {
	case msg := <-submits:
		v, ok := msg.Record.Value(domain.FIELD_PULL_NIGHT)
		assert.True(t, ok)
		assert.Equal(t, 776.784, v)
	case <-time.After(2 * time.Second):
		t.Fatal("frame read before the stream ended was not submitted")
	}
}

func TestMeterActorKeepsReadingAfterNoiseLine(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	aggregator, submits := submitProbe(as)
	pr, pw := io.Pipe()
	defer pw.Close()
	source := p1_serial.NewLineReaderFrom(pr)

	terminated := supervise(as, func() actor.Actor {
		return NewMeterActor(source, aggregator, nil, logger)
	})

	go func() {
		lines := []string{`/FLU5\x`, strings.Repeat("Z", 70*1024), `1-0:1.8.2(000776.784*kWh)`, `!1`}
		_, _ = pw.Write([]byte(strings.Join(lines, "\r\n") + "\r\n"))
	}()

	select {
	case msg := <-submits:
		v, ok := msg.Record.Value(domain.FIELD_PULL_NIGHT)
		assert.True(t, ok)
		assert.Equal(t, 776.784, v)
	case <-terminated:
		t.Fatal("meter actor stopped on a noise line")
	case <-time.After(2 * time.Second):
		t.Fatal("frame after the noise line was not submitted")
	}
	assert.Empty(t, terminated)
}

func TestMeterActorStopsWhenPortCannotOpen(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	aggregator, _ := submitProbe(as)
	source := &blockingSource{openErr: errors.New("no such device")}

	terminated := supervise(as, func() actor.Actor {
		return NewMeterActor(source, aggregator, nil, logger)
	})

	select {
	case <-terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("meter actor did not stop")
	}
}
