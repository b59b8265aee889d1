// Package memtrie implements the core in-memory trie mutation engine for a
// blockchain state storage layer: an update session converts an existing
// immutable hexadecimal (16-ary) Merkle Patricia trie into a mutable
// overlay, applies batches of key/value insertions and deletions while
// preserving canonical form, and emits change sets that can be replayed
// against a fresh arena and applied to a content-addressed disk store.
//
// Grounded throughout on Matthalp-go-ethereum/turbotrie (node model, post-
// order finalizer, storage-key shape) and on nearcore's
// core/store/src/trie/mem/updating.rs (the exact insert/delete/squash
// control flow) — see DESIGN.md for the full grounding ledger.
package memtrie

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/wgyt/memtrie/internal/node"
	"github.com/wgyt/memtrie/internal/triearena"
	"github.com/wgyt/memtrie/internal/wirenode"
)

// MemTrieUpdate is a single-threaded mutation session against an
// arena-backed trie rooted at a known hash. It is not safe for concurrent
// use; callers must serialize access to a session themselves.
type MemTrieUpdate struct {
	arena   triearena.Arena
	costs   Costs
	buf     *buffer
	tracker *changeTracker
	oldRoot common.Hash
	log     log.Logger

	// memChanges caches ToMemTrieChanges' result so finalization only runs
	// once per session even if both ToMemTrieChanges and ToTrieChanges are
	// called.
	memChanges *MemTrieChanges
}

// New opens an update session against the trie rooted at oldRoot. rootHandle
// is nil when the trie is empty: slot 0 always holds either Empty or the
// (possibly rewritten) root node, never anything in between.
func New(arena triearena.Arena, oldRoot common.Hash, rootHandle *triearena.Handle, costs Costs) (*MemTrieUpdate, error) {
	tracker := newChangeTracker()
	buf := newBuffer(arena, tracker)

	if rootHandle != nil {
		slot, err := buf.ensureUpdated(node.OldRef(*rootHandle))
		if err != nil {
			return nil, err
		}
		if slot != 0 {
			programmerError("root did not land in slot 0 (got %d)", slot)
		}
	} else if idx := buf.newSlot(node.Empty()); idx != 0 {
		programmerError("empty root did not land in slot 0 (got %d)", idx)
	}

	return &MemTrieUpdate{
		arena:   arena,
		costs:   costs,
		buf:     buf,
		tracker: tracker,
		oldRoot: oldRoot,
		log:     log.New("pkg", "memtrie"),
	}, nil
}

// newValueRef builds a ValueRef for a value being written, inlining it when
// it is at most inlineValueThreshold bytes long and otherwise addressing it
// by content hash.
func (m *MemTrieUpdate) newValueRef(value []byte) node.ValueRef {
	if uint64(len(value)) <= inlineValueThreshold {
		return node.ValueRef{Inline: append([]byte(nil), value...)}
	}
	return node.ValueRef{Hash: wirenode.Hash(value), Length: uint64(len(value))}
}

func (m *MemTrieUpdate) leafMemoryUsage(ext []byte, v node.ValueRef) uint64 {
	usage := m.costs.NodeCost + uint64(len(ext)/2+1)*m.costs.ByteOfKey
	usage += v.Len()*m.costs.ByteOfValue + m.costs.NodeCost
	return usage
}

// saturatingSub returns a-b, floored at zero instead of wrapping.
func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func (m *MemTrieUpdate) extensionMemoryUsage(ext []byte, childMemoryUsage uint64) uint64 {
	return m.costs.NodeCost + uint64(len(ext)/2+1)*m.costs.ByteOfKey + childMemoryUsage
}

// branchMemoryUsage sums the eagerly-known contributions of n's children
// and value. Old(_) children not yet touched contribute zero until
// finalize.go resolves them against the arena (see DESIGN.md).
func (m *MemTrieUpdate) branchMemoryUsage(n *node.Updated) uint64 {
	usage := m.costs.NodeCost
	if n.BranchValue != nil {
		usage += n.BranchValue.Len()*m.costs.ByteOfValue + m.costs.NodeCost
	}
	for _, c := range n.Children {
		if c != nil && c.IsUpdated() {
			usage += m.buf.peekRaw(c.Slot()).MemoryUsage
		}
	}
	return usage
}
