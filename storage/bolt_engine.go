package storage

import (
	"unicode/utf8"

	bolt "go.etcd.io/bbolt"

	"github.com/dreamsxin/kvs"
)

// boltBucket is the single bucket every key/value pair lives in. Per
// spec.md §1 this adapter is an external collaborator wrapping a
// third-party embedded store and carries no interesting design of its
// own: every operation is one bbolt transaction.
var boltBucket = []byte("kvs")

// BoltEngine adapts go.etcd.io/bbolt to the Engine contract (spec.md
// §4.2, the "sled" alternative named in §6). Values are stored as their
// raw UTF-8 bytes; Get reports ErrUtf8 if bytes fetched back are not
// valid UTF-8.
type BoltEngine struct {
	db *bolt.DB
}

var _ Engine = (*BoltEngine)(nil)

// NewBoltEngine opens (creating if necessary) a bbolt database at path
// and ensures the single bucket it stores keys in exists.
func NewBoltEngine(path string) (*BoltEngine, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, kvs.WrapEngineBackend(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, kvs.WrapEngineBackend(err)
	}
	return &BoltEngine{db: db}, nil
}

// Close releases the underlying bbolt database.
func (e *BoltEngine) Close() error {
	if err := e.db.Close(); err != nil {
		return kvs.WrapEngineBackend(err)
	}
	return nil
}

// Set implements Engine. bbolt's Update commits (and fsyncs) the
// transaction before returning, which is this adapter's durability
// contract.
func (e *BoltEngine) Set(key, value string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return kvs.WrapEngineBackend(err)
	}
	return nil
}

// Get implements Engine.
func (e *BoltEngine) Get(key string) (string, bool, error) {
	var value []byte
	found := false
	err := e.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get([]byte(key)); v != nil {
			found = true
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", false, kvs.WrapEngineBackend(err)
	}
	if !found {
		return "", false, nil
	}
	if !utf8.Valid(value) {
		return "", false, kvs.ErrUtf8
	}
	return string(value), true, nil
}

// Remove implements Engine.
func (e *BoltEngine) Remove(key string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b.Get([]byte(key)) == nil {
			return kvs.ErrKeyNotFound
		}
		return b.Delete([]byte(key))
	})
	if err == kvs.ErrKeyNotFound {
		return err
	}
	if err != nil {
		return kvs.WrapEngineBackend(err)
	}
	return nil
}
