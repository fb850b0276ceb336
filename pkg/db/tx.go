package db

import (
	"sync"

	"github.com/hatn-go/hatn/pkg/logctx"
	bolt "go.etcd.io/bbolt"
)

// Tx is the write batch handed to a transaction handler (spec.md §4.4).
type Tx struct {
	bolt *bolt.Tx
	s    *Store
}

type txHandler func(tx *Tx) error

// activeTx tracks, per goroutine, the outermost open write transaction —
// the same goroutine-local binding mechanism pkg/logctx uses for its
// "current Task Context" (pkg/logctx/goroutine.go), reused here so
// "bound to the current thread" (spec.md §4.4) has a concrete meaning in a
// language without real thread-locals.
var (
	activeTxMu sync.Mutex
	activeTx   = map[uint64]*Tx{}
)

// Transaction runs handler(tx) with a write batch bound to the calling
// goroutine; on success the batch commits, on error it is discarded.
// A nested Transaction call (while one is already open on this goroutine)
// reuses the outermost batch instead of opening a new one (spec.md §4.4
// "Nested transactions share the outermost batch").
func (s *Store) Transaction(handler txHandler) error {
	gid := logctx.GoroutineID()

	activeTxMu.Lock()
	if existing, ok := activeTx[gid]; ok {
		activeTxMu.Unlock()
		return handler(existing)
	}
	activeTxMu.Unlock()

	return s.db.Update(func(boltTx *bolt.Tx) error {
		tx := &Tx{bolt: boltTx, s: s}

		activeTxMu.Lock()
		activeTx[gid] = tx
		activeTxMu.Unlock()

		defer func() {
			activeTxMu.Lock()
			delete(activeTx, gid)
			activeTxMu.Unlock()
		}()

		return handler(tx)
	})
}

// View runs a read-only handler; it never participates in the write-batch
// binding above since bbolt read and write transactions are distinct.
func (s *Store) View(handler func(tx *bolt.Tx) error) error {
	return s.db.View(handler)
}
