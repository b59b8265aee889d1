package memtrie

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/wgyt/memtrie/internal/triearena"
)

// NodeHash pairs an update-buffer slot index with its finalized content
// hash, in post-order.
type NodeHash struct {
	Slot int
	Hash common.Hash
}

// ChildRef mirrors the engine's internal node.Ref in the public API: either
// Old(ArenaHandle) or Updated(SlotIndex). The finalizer emits these
// symbolically, since it runs before any replay-target arena exists and has
// no concrete handle to give an Updated(_) child yet; replay.go is what
// resolves Updated(_) into concrete arena handles as it allocates.
type ChildRef struct {
	Updated bool
	Old     triearena.Handle
	Slot    int
}

// NodeValue is the finalized wire form of a ValueRef.
type NodeValue struct {
	Inline []byte
	Hash   common.Hash
	Length uint64
}

// FinalizedKind mirrors the four trie node variants in their finalized,
// replay-ready form.
type FinalizedKind uint8

const (
	FinalizedEmpty FinalizedKind = iota
	FinalizedLeaf
	FinalizedExtension
	FinalizedBranch
)

// UpdatedNodeRecord is one finalized update-buffer slot: everything a
// replayer needs to allocate it into a fresh arena, expressed symbolically
// so that Updated(_) children can be translated via the replayer's own
// slot-to-handle map.
type UpdatedNodeRecord struct {
	Slot         int
	Kind         FinalizedKind
	Extension    []byte // compact-encoded
	Value        NodeValue
	HasValue     bool
	Children     [16]ChildRef
	ChildPresent [16]bool
	ExtChild     ChildRef
	HasExtChild  bool
	MemoryUsage  uint64
	Bytes        []byte
}

// MemTrieChanges is enough to replay a mutation into a fresh arena.
type MemTrieChanges struct {
	NodeIDsWithHashes []NodeHash
	UpdatedNodes      []UpdatedNodeRecord
}

// Insertion is a newly (or still-)referenced node or value, carrying the
// payload a disk store needs to persist it.
type Insertion struct {
	Hash    common.Hash
	Payload []byte
	Count   int64
}

// Deletion is a content-addressed node or value whose refcount dropped.
type Deletion struct {
	Hash  common.Hash
	Count int64
}

// TrieChanges is the full per-batch output: the root hash transition, the
// refcount deltas a disk store needs to apply, and the underlying
// MemTrieChanges needed to replay the mutation in memory.
type TrieChanges struct {
	OldRoot        common.Hash
	NewRoot        common.Hash
	Insertions     []Insertion
	Deletions      []Deletion
	MemTrieChanges MemTrieChanges
}

// TrieAccesses records every old node and old/removed value observed during
// the session.
type TrieAccesses struct {
	Nodes  map[common.Hash][]byte
	Values map[common.Hash][]byte
}
