package service

import (
	"slices"
	"sync"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/port"
)

// BatchGate keeps the latest reading per source and releases them together
// once every enabled source has reported.
type BatchGate struct {
	mu          sync.Mutex
	enabled     []domain.Source
	flushPeriod time.Duration
	batch       domain.Batch
}

func NewBatchGate(enabled []domain.Source, flushPeriod time.Duration) *BatchGate {
	sources := slices.Clone(enabled)
	slices.Sort(sources)
	return &BatchGate{
		enabled:     slices.Compact(sources),
		flushPeriod: flushPeriod,
		batch:       domain.Batch{},
	}
}

// Enabled is false when there is nothing to gate or no flush period.
func (g *BatchGate) Enabled() bool {
	return len(g.enabled) > 0 && g.flushPeriod > 0
}

func (g *BatchGate) FlushPeriod() time.Duration {
	return g.flushPeriod
}

func (g *BatchGate) Sources() []domain.Source {
	return slices.Clone(g.enabled)
}

// Submit stores the record, replacing any previous record of the same
// source. Records of sources that are not enabled are ignored.
func (g *BatchGate) Submit(record domain.ReadingRecord) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.Enabled() || !slices.Contains(g.enabled, record.Source()) {
		return false
	}
	g.batch[record.Source()] = record
	return g.ready()
}

func (g *BatchGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready()
}

func (g *BatchGate) ready() bool {
	if !g.Enabled() {
		return false
	}
	for _, s := range g.enabled {
		if _, ok := g.batch[s]; !ok {
			return false
		}
	}
	return true
}

// Take returns and clears the batch when ready. A batch that is not ready
// is left untouched.
func (g *BatchGate) Take() (domain.Batch, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready() {
		return nil, false
	}
	batch := g.batch
	g.batch = domain.Batch{}
	return batch, true
}

func (g *BatchGate) Pending() domain.Batch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.batch.Clone()
}

var _ port.BatchGateLogic = (*BatchGate)(nil)
