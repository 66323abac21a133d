package pool

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// SharedQueuePool runs exactly n workers sharing one unbounded job queue.
// If a worker's job panics, that worker goroutine exits but the pool
// immediately relaunches a replacement bound to the same queue, so the
// steady-state worker count is preserved. Orderly shutdown happens via
// Close: workers drain whatever is left in the queue, then return.
//
// This is the Go shape of thread_pool/shared_queue.rs's
// TaskReceiver/Drop idiom: Rust recreates the worker thread from a Drop
// impl that fires during an unwinding panic, Go has no destructors so the
// recreation is done with an explicit defer/recover wrapper around each
// worker's run loop instead. The invariant - steady-state worker count
// survives panics - is the same. The queue itself is a mutex/cond-guarded
// slice rather than a Go channel, since a channel's buffer is fixed at
// creation and a job sent to a full unbuffered channel blocks the
// sender - the opposite of the "unbounded multi-producer, multi-consumer
// queue" crossbeam's unbounded() gives the Rust source: Spawn must never
// block the caller regardless of how many jobs are already queued.
type SharedQueuePool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []func()
	closed bool

	logger  log.Logger
	metrics *poolMetrics
}

var _ Pool = (*SharedQueuePool)(nil)

// NewSharedQueuePool starts n workers sharing an unbounded job queue.
func NewSharedQueuePool(n int, logger log.Logger) (*SharedQueuePool, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	p := &SharedQueuePool{
		logger:  logger,
		metrics: newPoolMetrics("shared_queue"),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.startWorker()
	}
	return p, nil
}

// Spawn implements Pool. It appends job to the queue and returns
// immediately; the queue has no capacity limit, so Spawn never blocks on
// the queue being full.
func (p *SharedQueuePool) Spawn(job func()) {
	p.metrics.submitted.Inc()
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()
	p.cond.Signal()
}

// Close stops accepting new jobs and lets every worker drain whatever is
// still queued before returning, the orderly-shutdown path spec.md §4.3
// describes for "all senders are dropped".
func (p *SharedQueuePool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *SharedQueuePool) startWorker() {
	go p.runWorker()
}

func (p *SharedQueuePool) runWorker() {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.panicked.Inc()
			level.Error(p.logger).Log("msg", "worker panicked, respawning", "panic", r)
			p.startWorker()
			return
		}
	}()

	for {
		job, ok := p.nextJob()
		if !ok {
			return
		}
		p.runJob(job)
	}
}

// nextJob blocks until a job is available or the pool is closed with an
// empty queue, in which case it returns (nil, false).
func (p *SharedQueuePool) nextJob() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.jobs) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.jobs) == 0 {
		return nil, false
	}
	job := p.jobs[0]
	p.jobs = p.jobs[1:]
	return job, true
}

// runJob executes one job without letting a panic escape runWorker's
// loop mid-dequeue; the recover in runWorker still catches a panic
// raised here because it unwinds through this frame.
func (p *SharedQueuePool) runJob(job func()) {
	p.metrics.inFlight.Inc()
	defer p.metrics.inFlight.Dec()
	job()
	p.metrics.completed.Inc()
}
