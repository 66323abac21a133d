package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// BoundedPool bounds concurrent job execution to n at a time using a
// weighted semaphore, standing in for "wraps an external work-stealing
// pool" (spec.md §4.3's shared-rayon variant): Spawn starts a goroutine
// that waits until a permit is free, runs job, and releases the permit on
// completion. Unlike SharedQueuePool it has no fixed worker
// goroutines to restart, so a panicking job simply releases its permit
// via defer on its way down - there is nothing steady-state to repair.
type BoundedPool struct {
	sem     *semaphore.Weighted
	metrics *poolMetrics
}

var _ Pool = (*BoundedPool)(nil)

// NewBoundedPool constructs a pool that runs at most n jobs concurrently.
func NewBoundedPool(n int) (*BoundedPool, error) {
	return &BoundedPool{
		sem:     semaphore.NewWeighted(int64(n)),
		metrics: newPoolMetrics("bounded"),
	}, nil
}

// Spawn implements Pool. It returns immediately; job's goroutine waits
// for a permit before running it.
func (p *BoundedPool) Spawn(job func()) {
	p.metrics.submitted.Inc()
	go func() {
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		p.metrics.inFlight.Inc()
		defer p.metrics.inFlight.Dec()
		job()
		p.metrics.completed.Inc()
	}()
}
