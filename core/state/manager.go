package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"vsachain/storage"
)

var errTxClosed = errors.New("state: transaction already closed")

// kv is the raw key/value surface shared by committed state and transaction
// overlays. Every typed accessor is written once against it.
type kv interface {
	getRaw(key []byte) ([]byte, bool, error)
	putRaw(key, value []byte) error
	deleteRaw(key []byte) error
	iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// View exposes the typed state accessors (accounts, auctions, bids,
// collections) on top of a kv backend.
type View struct {
	kv kv
}

// KVPut RLP-encodes value and stores it under key.
func (v *View) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return v.kv.putRaw(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (v *View) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := v.kv.getRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func decode(data []byte, out interface{}) error {
	return rlp.DecodeBytes(data, out)
}

// KVDelete removes key.
func (v *View) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return v.kv.deleteRaw(key)
}

// Manager owns committed state on top of a storage backend. Mutations made
// directly through the manager are written immediately; multi-step
// transitions should use Begin so they land atomically.
type Manager struct {
	View
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	m := &Manager{db: db}
	m.View = View{kv: dbKV{db: db}}
	return m
}

// Database exposes the backing store.
func (m *Manager) Database() storage.Database { return m.db }

// Begin opens a transaction overlay on top of committed state.
func (m *Manager) Begin() *Tx {
	tx := &Tx{
		base:    m.db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
	tx.View = View{kv: tx}
	return tx
}

type dbKV struct {
	db storage.Database
}

func (d dbKV) getRaw(key []byte) ([]byte, bool, error) {
	value, err := d.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (d dbKV) putRaw(key, value []byte) error { return d.db.Put(key, value) }

func (d dbKV) deleteRaw(key []byte) error { return d.db.Delete(key) }

func (d dbKV) iterate(prefix []byte, fn func(key, value []byte) bool) error {
	return d.db.Iterate(prefix, fn)
}

// Tx buffers writes in memory until Commit flushes them with one storage
// batch. Discarding the transaction leaves committed state untouched.
type Tx struct {
	View

	mu      sync.Mutex
	base    storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

func (tx *Tx) getRaw(key []byte) ([]byte, bool, error) {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return nil, false, errTxClosed
	}
	k := string(key)
	if value, ok := tx.writes[k]; ok {
		tx.mu.Unlock()
		return append([]byte(nil), value...), true, nil
	}
	if _, ok := tx.deletes[k]; ok {
		tx.mu.Unlock()
		return nil, false, nil
	}
	tx.mu.Unlock()
	return dbKV{db: tx.base}.getRaw(key)
}

func (tx *Tx) putRaw(key, value []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return errTxClosed
	}
	k := string(key)
	delete(tx.deletes, k)
	tx.writes[k] = append([]byte(nil), value...)
	return nil
}

func (tx *Tx) deleteRaw(key []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return errTxClosed
	}
	k := string(key)
	delete(tx.writes, k)
	tx.deletes[k] = struct{}{}
	return nil
}

// iterate merges committed entries with the overlay so callers observe their
// own uncommitted writes.
func (tx *Tx) iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	if err := tx.base.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	}); err != nil {
		return err
	}
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return errTxClosed
	}
	for k := range tx.deletes {
		delete(merged, k)
	}
	for k, v := range tx.writes {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = append([]byte(nil), v...)
		}
	}
	tx.mu.Unlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), merged[k]) {
			break
		}
	}
	return nil
}

// Pending reports the number of buffered mutations.
func (tx *Tx) Pending() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.writes) + len(tx.deletes)
}

// Commit writes every buffered mutation in a single batch and closes the
// transaction.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return errTxClosed
	}
	batch := storage.NewBatch()
	for k := range tx.deletes {
		batch.Delete([]byte(k))
	}
	for k, v := range tx.writes {
		batch.Put([]byte(k), v)
	}
	if err := tx.base.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	tx.closed = true
	tx.writes = nil
	tx.deletes = nil
	return nil
}

// Discard drops the overlay. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.closed = true
	tx.writes = nil
	tx.deletes = nil
}
