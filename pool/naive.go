package pool

// NaivePool starts a new goroutine for every job, with no bound on
// concurrency. It is provided for baseline testing, grounded on
// thread_pool/naive.rs's NaiveThreadPool which does the same with
// thread::spawn.
type NaivePool struct {
	metrics *poolMetrics
}

var _ Pool = (*NaivePool)(nil)

// NewNaivePool constructs a NaivePool. n is accepted for interface parity
// with the other pools but otherwise ignored: every job gets its own
// goroutine regardless of n.
func NewNaivePool(n int) (*NaivePool, error) {
	return &NaivePool{metrics: newPoolMetrics("naive")}, nil
}

// Spawn implements Pool.
func (p *NaivePool) Spawn(job func()) {
	p.metrics.submitted.Inc()
	go func() {
		p.metrics.inFlight.Inc()
		defer p.metrics.inFlight.Dec()
		job()
		p.metrics.completed.Inc()
	}()
}
