// Package diskstore is a reference implementation of a refcounted,
// content-addressed disk store that consumes a MemTrieUpdate session's
// TrieChanges: every hash gets an 8-byte big-endian refcount plus its
// serialized payload, and applying a batch of insertions/deletions is one
// atomic write.
//
// The mutation engine itself never touches a disk store directly —
// persistence is an external collaborator it only hands a change set to —
// so this package exists to give tests something real to apply TrieChanges
// against.
//
// Grounded on turbotrie's internal/storage/storage.go (Collection: a
// prefixed view over an ethdb.Database, Store/LoadNode), adapted from a
// path+version key shape to a hash+refcount one, and on vechain-thor's and
// wyf-ACCEPT-eth2030's shared dependency on github.com/syndtr/goleveldb.
package diskstore

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/wgyt/memtrie"
)

// Key prefixes separate the refcount keyspace from the payload keyspace so a
// single hash occupies two distinguishable keys.
const (
	refcountPrefix byte = 'r'
	payloadPrefix  byte = 'p'
)

// Store is a refcounted, content-addressed key/value store over goleveldb.
type Store struct {
	db *leveldb.DB
}

// Open returns a Store backed by an in-memory goleveldb instance. A real
// deployment would pass a disk-backed storage.Storage instead; the
// reference store only needs to exercise Apply/Refcount in tests.
func Open() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("diskstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func refcountKey(h common.Hash) []byte {
	return append([]byte{refcountPrefix}, h.Bytes()...)
}

func payloadKey(h common.Hash) []byte {
	return append([]byte{payloadPrefix}, h.Bytes()...)
}

// Refcount returns a hash's current reference count, 0 if never seen.
func (s *Store) Refcount(h common.Hash) (int64, error) {
	raw, err := s.db.Get(refcountKey(h), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("diskstore: refcount %s: %w", h, err)
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// Payload returns a hash's stored bytes, if any.
func (s *Store) Payload(h common.Hash) ([]byte, bool, error) {
	raw, err := s.db.Get(payloadKey(h), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("diskstore: payload %s: %w", h, err)
	}
	return raw, true, nil
}

// Apply commits one session's TrieChanges atomically: every Insertion bumps
// its hash's refcount up (writing the payload the first time a hash is
// seen), every Deletion bumps it down, and a refcount reaching zero drops
// both keys. A refcount going negative indicates the caller replayed
// changes out of order or against the wrong base, and is refused rather
// than silently corrupting the store.
func (s *Store) Apply(changes *memtrie.TrieChanges) error {
	batch := new(leveldb.Batch)

	deltas := make(map[common.Hash]int64, len(changes.Insertions)+len(changes.Deletions))
	payloads := make(map[common.Hash][]byte, len(changes.Insertions))
	for _, ins := range changes.Insertions {
		deltas[ins.Hash] += ins.Count
		if ins.Payload != nil {
			payloads[ins.Hash] = ins.Payload
		}
	}
	for _, del := range changes.Deletions {
		deltas[del.Hash] -= del.Count
	}

	for hash, delta := range deltas {
		current, err := s.Refcount(hash)
		if err != nil {
			return err
		}
		next := current + delta
		if next < 0 {
			return fmt.Errorf("diskstore: refcount underflow for %s: %d + %d < 0", hash, current, delta)
		}

		if next == 0 {
			batch.Delete(refcountKey(hash))
			batch.Delete(payloadKey(hash))
			continue
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(next))
		batch.Put(refcountKey(hash), buf)

		if current == 0 {
			payload, ok := payloads[hash]
			if !ok {
				return fmt.Errorf("diskstore: new hash %s has no payload to store", hash)
			}
			batch.Put(payloadKey(hash), payload)
		}
	}

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("diskstore: apply: %w", err)
	}
	return nil
}

// Len reports how many distinct hashes currently hold a positive refcount,
// for test assertions.
func (s *Store) Len() int {
	it := s.db.NewIterator(util.BytesPrefix([]byte{refcountPrefix}), nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n
}
