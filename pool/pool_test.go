package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func poolsUnderTest(t *testing.T) map[string]Pool {
	naive, err := NewNaivePool(4)
	require.NoError(t, err)

	shared, err := NewSharedQueuePool(4, nil)
	require.NoError(t, err)
	t.Cleanup(shared.Close)

	bounded, err := NewBoundedPool(4)
	require.NoError(t, err)

	return map[string]Pool{
		"naive":       naive,
		"sharedQueue": shared,
		"bounded":     bounded,
	}
}

func TestPoolsRunAllSubmittedJobs(t *testing.T) {
	for name, p := range poolsUnderTest(t) {
		p := p
		t.Run(name, func(t *testing.T) {
			const n = 500
			var completed int64
			var wg sync.WaitGroup
			wg.Add(n)
			for i := 0; i < n; i++ {
				p.Spawn(func() {
					atomic.AddInt64(&completed, 1)
					wg.Done()
				})
			}

			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for jobs to complete")
			}
			require.EqualValues(t, n, atomic.LoadInt64(&completed))
		})
	}
}

// TestSharedQueuePoolSurvivesPanic asserts the steady-state worker count is
// preserved across a panicking job: after a panic, the pool keeps
// delivering and completing later jobs.
func TestSharedQueuePoolSurvivesPanic(t *testing.T) {
	p, err := NewSharedQueuePool(2, nil)
	require.NoError(t, err)
	defer p.Close()

	panicked := make(chan struct{})
	p.Spawn(func() {
		defer close(panicked)
		panic("boom")
	})
	<-panicked

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.Spawn(func() { wg.Done() })
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool stopped making progress after a panicking job")
	}

	// These two jobs can only finish while both run at the same time,
	// which needs both workers: it fails if the panicked one was not
	// replaced.
	var arrived sync.WaitGroup
	arrived.Add(2)
	for i := 0; i < 2; i++ {
		p.Spawn(func() {
			arrived.Done()
			arrived.Wait()
		})
	}
	met := make(chan struct{})
	go func() { arrived.Wait(); close(met) }()
	select {
	case <-met:
	case <-time.After(5 * time.Second):
		t.Fatal("panicked worker was not replaced")
	}
}

// TestBoundedPoolLimitsConcurrency checks BoundedPool never runs more than
// n jobs at once.
func TestBoundedPoolLimitsConcurrency(t *testing.T) {
	const limit = 3
	p, err := NewBoundedPool(limit)
	require.NoError(t, err)

	var current int64
	var max int64
	var mu sync.Mutex
	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		p.Spawn(func() {
			defer wg.Done()
			c := atomic.AddInt64(&current, 1)
			mu.Lock()
			if c > max {
				max = c
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		})
	}
	wg.Wait()

	require.LessOrEqual(t, max, int64(limit))
}
