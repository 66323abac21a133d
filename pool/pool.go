// Package pool provides the worker pool abstraction the server dispatches
// connection jobs through: construct with a target parallelism, Spawn a
// nullary job for execution. Three implementations are provided, grounded
// on the three thread_pool variants of the system this module descends
// from: a naive one-goroutine-per-job pool, a bounded shared-queue pool
// with panic-tolerant workers, and a bounded pool backed by a weighted
// semaphore standing in for an external work-stealing pool.
package pool

// Pool is the worker pool contract. Spawn enqueues job for asynchronous
// execution; it must not block the caller beyond handing the job off.
type Pool interface {
	// Spawn enqueues job for execution by the pool. It returns
	// immediately; job runs concurrently with the caller.
	Spawn(job func())
}
