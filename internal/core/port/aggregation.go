package port

import (
	"context"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
)

type BatchGateLogic interface {
	Submit(record domain.ReadingRecord) bool
	Ready() bool
	Take() (domain.Batch, bool)
	Pending() domain.Batch
	Enabled() bool
	FlushPeriod() time.Duration
}

// BatchForwarder delivers every field of a batch. Failures are returned per
// field and never stop the remaining deliveries.
type BatchForwarder interface {
	Forward(ctx context.Context, batch domain.Batch) []error
}
