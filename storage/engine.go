// Package storage implements the embedded storage engines: the
// log-structured KVStore (the hard core of this module) and a thin
// adapter over a third-party embedded store.
package storage

// Engine is the abstract storage contract. Both KVStore and BoltEngine
// satisfy it. An Engine handle is expected to be cheap to share across
// goroutines; each implementation documents its own sharing story.
type Engine interface {
	// Set writes the mapping from key to value, overwriting any prior
	// value. It returns once the write is durable per the implementation's
	// durability contract.
	Set(key, value string) error

	// Get returns the current value for key, or ("", false) if key has
	// no live value. It never returns an error for a missing key.
	Get(key string) (string, bool, error)

	// Remove deletes the mapping for key. It fails with a key-not-found
	// error if key is absent at call time.
	Remove(key string) error

	// Close releases any resources held open by the engine.
	Close() error
}
