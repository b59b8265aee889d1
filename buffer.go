package memtrie

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/wgyt/memtrie/internal/node"
	"github.com/wgyt/memtrie/internal/triearena"
	"github.com/wgyt/memtrie/internal/wirenode"
)

// slotState distinguishes a populated slot from a transiently taken "hole":
// take() empties a slot so its node can be mutated and reinserted, and place()
// is the only way back to slotPresent.
type slotState uint8

const (
	slotPresent slotState = iota
	slotHole
)

type bufferSlot struct {
	state slotState
	node  *node.Updated
}

// buffer is the session's vector of slots; slot 0 is always the working
// root.
type buffer struct {
	arena   triearena.Arena
	slots   []bufferSlot
	tracker *changeTracker
}

func newBuffer(arena triearena.Arena, tracker *changeTracker) *buffer {
	return &buffer{arena: arena, tracker: tracker}
}

// newSlot appends n as a fresh, present slot and returns its index.
func (b *buffer) newSlot(n *node.Updated) int {
	idx := len(b.slots)
	b.slots = append(b.slots, bufferSlot{state: slotPresent, node: n})
	return idx
}

// take removes the node from slot i, leaving a hole. Taking a hole twice is
// a programmer error: every caller is expected to place back what it took
// before control returns to the mutator loop.
func (b *buffer) take(i int) *node.Updated {
	s := &b.slots[i]
	if s.state == slotHole {
		programmerError("double take of slot %d", i)
	}
	n := s.node
	s.node = nil
	s.state = slotHole
	return n
}

// place restores slot i. Placing over a non-hole is a programmer error.
func (b *buffer) place(i int, n *node.Updated) {
	s := &b.slots[i]
	if s.state != slotHole {
		programmerError("place over non-hole slot %d", i)
	}
	s.node = n
	s.state = slotPresent
}

// get returns a read-only clone of slot i's node.
func (b *buffer) get(i int) *node.Updated {
	s := &b.slots[i]
	if s.state == slotHole {
		programmerError("get of hole slot %d", i)
	}
	return s.node.Clone()
}

// peekRaw returns the live node without cloning, for internal callers (e.g.
// finalize) that only read and never retain it past the current step.
func (b *buffer) peekRaw(i int) *node.Updated {
	s := &b.slots[i]
	if s.state == slotHole {
		programmerError("peek of hole slot %d", i)
	}
	return s.node
}

func (b *buffer) len() int { return len(b.slots) }

// ensureUpdated resolves ref to a slot index, materializing a fresh slot
// from the arena if ref is Old(_).
func (b *buffer) ensureUpdated(ref node.Ref) (int, error) {
	if ref.IsUpdated() {
		return ref.Slot(), nil
	}
	view, err := b.arena.View(ref.Old())
	if err != nil {
		return 0, &StorageError{Handle: ref.Old(), Err: err}
	}
	if b.tracker != nil && view.Variant() != triearena.VariantEmpty {
		b.tracker.recordNodeAccessAndRelease(view)
	}
	return b.newSlot(viewToUpdated(view)), nil
}

// changeTracker is the buffer's side channel for the bookkeeping a mutation
// session accumulates alongside its node edits: net refcount deltas per
// hash, and every old node/value the session actually read.
type changeTracker struct {
	refcountChanges map[common.Hash]*refDelta
	accessedNodes   map[common.Hash][]byte
	accessedValues  map[common.Hash][]byte
}

type refDelta struct {
	count   int64
	payload []byte // meaningful only once the delta nets positive
}

func newChangeTracker() *changeTracker {
	return &changeTracker{
		refcountChanges: make(map[common.Hash]*refDelta),
		accessedNodes:   make(map[common.Hash][]byte),
		accessedValues:  make(map[common.Hash][]byte),
	}
}

func (t *changeTracker) bump(hash common.Hash, delta int64, payload []byte) {
	d, ok := t.refcountChanges[hash]
	if !ok {
		d = &refDelta{}
		t.refcountChanges[hash] = d
	}
	d.count += delta
	if payload != nil {
		d.payload = payload
	}
}

// recordNodeAccessAndRelease runs whenever ensureUpdated pulls an Old(_) node
// into the buffer for editing: the old subtree root's refcount drops by one
// (it is about to be superseded), and its serialized bytes are recorded as
// accessed so a caller replaying only the diff can still answer "what did
// this hash used to contain".
func (t *changeTracker) recordNodeAccessAndRelease(view triearena.NodeView) {
	t.accessedNodes[view.Hash()] = view.SerializedBytes()
	t.bump(view.Hash(), -1, nil)
}

// recordValueWrite bumps a written value's refcount by one. Inline values
// are part of their owning node's bytes and are not separately
// content-addressed, so only hash-referenced values get a refcount entry.
func (t *changeTracker) recordValueWrite(v node.ValueRef, payload []byte) {
	if v.IsInline() {
		return
	}
	t.bump(v.Hash, +1, payload)
}

// recordValueRelease drops a replaced or deleted value's refcount by one and
// records it as accessed. An inline value has no refcount entry of its own
// (see recordValueWrite), so it is only recorded as accessed, under the hash
// of its bytes and with those bytes as payload; a hash-referenced value's
// bytes live in an external value store this engine doesn't own, so it is
// recorded with a nil payload.
func (t *changeTracker) recordValueRelease(v node.ValueRef) {
	if v.IsInline() {
		t.accessedValues[wirenode.Hash(v.Inline)] = v.Inline
		return
	}
	t.accessedValues[v.Hash] = nil
	t.bump(v.Hash, -1, nil)
}
