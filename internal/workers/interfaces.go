// Package workers runs the background maintenance jobs of the sync server:
// reverting mutations stuck in processing, probing the store for the health
// service and evicting the dedup cache.
package workers

import (
	"context"
	"time"
)

// Worker is a background job. Run blocks until ctx is done and returns nil
// on a clean stop.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc adapts a function to [Worker].
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Maintenance is the subset of the maintenance service the jobs use.
type Maintenance interface {
	ReapProcessing(ctx context.Context, staleAfter time.Duration) (int64, error)
	ProbeStore(ctx context.Context) error
}

// HealthReporter receives the result of every store probe.
type HealthReporter interface {
	SetHealthy(healthy bool)
}
