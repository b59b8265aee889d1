package memtrie

import (
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wgyt/memtrie/internal/nibble"
	"github.com/wgyt/memtrie/internal/node"
	"github.com/wgyt/memtrie/internal/wirenode"
)

// finalizedSlot is a post-order traversal entry's computed output: the
// content hash and cost-model total an update-buffer slot finalizes to.
type finalizedSlot struct {
	hash        common.Hash
	memoryUsage uint64
	bytes       []byte
}

// ToMemTrieChanges performs a post-order traversal of the update buffer from
// slot 0, computing each touched slot's canonical wire bytes, content hash,
// and authoritative memory usage. The result is cached: calling this (or
// ToTrieChanges) more than once returns the same answer without re-running
// the traversal or double-counting refcounts.
func (m *MemTrieUpdate) ToMemTrieChanges() (MemTrieChanges, error) {
	if m.memChanges != nil {
		return *m.memChanges, nil
	}

	order, err := m.postOrder()
	if err != nil {
		return MemTrieChanges{}, err
	}

	finalized := make(map[int]finalizedSlot, len(order))
	hashes := make([]NodeHash, 0, len(order))
	records := make([]UpdatedNodeRecord, 0, len(order))

	for _, slotID := range order {
		fs, rec, err := m.finalizeSlot(slotID, finalized)
		if err != nil {
			return MemTrieChanges{}, err
		}
		finalized[slotID] = fs
		hashes = append(hashes, NodeHash{Slot: slotID, Hash: fs.hash})
		records = append(records, rec)

		// Every slot still holding a node after finalization becomes a new
		// persistent node: its refcount goes up by one. An Empty slot has no
		// wire bytes and is never itself a stored node — it is the
		// canonical "no root" sentinel — so it is excluded.
		if rec.Kind != FinalizedEmpty {
			m.tracker.bump(fs.hash, +1, fs.bytes)
		}
	}

	out := MemTrieChanges{NodeIDsWithHashes: hashes, UpdatedNodes: records}
	m.memChanges = &out
	return out, nil
}

// ToTrieChanges runs the finalizer (if not already run) and packages its
// result together with the net refcount deltas accumulated over the whole
// session into the full per-batch output.
func (m *MemTrieUpdate) ToTrieChanges() (TrieChanges, error) {
	memChanges, err := m.ToMemTrieChanges()
	if err != nil {
		return TrieChanges{}, err
	}

	newRoot := wirenode.EmptyRootHash
	if len(memChanges.NodeIDsWithHashes) > 0 {
		newRoot = memChanges.NodeIDsWithHashes[len(memChanges.NodeIDsWithHashes)-1].Hash
	}

	var insertions []Insertion
	var deletions []Deletion
	for hash, delta := range m.tracker.refcountChanges {
		switch {
		case delta.count > 0:
			insertions = append(insertions, Insertion{Hash: hash, Payload: delta.payload, Count: delta.count})
		case delta.count < 0:
			deletions = append(deletions, Deletion{Hash: hash, Count: -delta.count})
		}
	}

	return TrieChanges{
		OldRoot:        m.oldRoot,
		NewRoot:        newRoot,
		Insertions:     insertions,
		Deletions:      deletions,
		MemTrieChanges: memChanges,
	}, nil
}

// Accesses returns every old node and old/removed value this session
// observed, for callers that need to answer "what did the old trie contain"
// without re-reading the arena themselves.
func (m *MemTrieUpdate) Accesses() TrieAccesses {
	return TrieAccesses{Nodes: m.tracker.accessedNodes, Values: m.tracker.accessedValues}
}

// postOrder walks the update buffer from slot 0, visiting an Updated child
// before its parent and never visiting an Old(_) child or an orphaned hole:
// an Old(_) child already has a hash sitting in the arena and needs no work,
// and an orphaned hole (left behind by extendChild's absorption) is
// unreachable from slot 0 by construction.
func (m *MemTrieUpdate) postOrder() ([]int, error) {
	var order []int
	visited := make(map[int]bool)

	var visit func(slotID int)
	visit = func(slotID int) {
		if visited[slotID] {
			return
		}
		visited[slotID] = true

		n := m.buf.peekRaw(slotID)
		if n.Kind == node.KindEmpty && slotID != 0 {
			programmerError("finalize: post-order traversal reached Empty at non-root slot %d", slotID)
		}
		switch n.Kind {
		case node.KindBranch:
			for _, c := range n.Children {
				if c != nil && c.IsUpdated() {
					visit(c.Slot())
				}
			}
		case node.KindExtension:
			if n.Child.IsUpdated() {
				visit(n.Child.Slot())
			}
		}
		order = append(order, slotID)
	}
	visit(0)
	return order, nil
}

// resolveChild reads a NodeRef's hash and memory usage, either from an
// already-finalized sibling (Updated) or straight from the arena (Old).
func (m *MemTrieUpdate) resolveChild(ref node.Ref, finalized map[int]finalizedSlot) (common.Hash, uint64, error) {
	if ref.IsUpdated() {
		fs, ok := finalized[ref.Slot()]
		if !ok {
			programmerError("finalize: child slot %d visited out of post-order", ref.Slot())
		}
		return fs.hash, fs.memoryUsage, nil
	}
	view, err := m.arena.View(ref.Old())
	if err != nil {
		return common.Hash{}, 0, &StorageError{Handle: ref.Old(), Err: err}
	}
	return view.Hash(), view.MemoryUsage(), nil
}

func toChildRef(ref node.Ref) ChildRef {
	if ref.IsUpdated() {
		return ChildRef{Updated: true, Slot: ref.Slot()}
	}
	return ChildRef{Old: ref.Old()}
}

// finalizeSlot computes slotID's wire bytes, hash, and record. Every
// Updated(_) child referenced here must already be present in finalized:
// the caller drives this from postOrder's ordering.
func (m *MemTrieUpdate) finalizeSlot(slotID int, finalized map[int]finalizedSlot) (finalizedSlot, UpdatedNodeRecord, error) {
	n := m.buf.peekRaw(slotID)

	switch n.Kind {
	case node.KindEmpty:
		rec := UpdatedNodeRecord{Slot: slotID, Kind: FinalizedEmpty}
		return finalizedSlot{hash: wirenode.EmptyRootHash}, rec, nil

	case node.KindLeaf:
		compactExt := nibble.Encode(nibble.Nibbles(n.Extension), true)
		wireVal := toWireValue(n.Value)
		bytes, err := wirenode.EncodeLeaf(compactExt, wireVal, n.MemoryUsage)
		if err != nil {
			return finalizedSlot{}, UpdatedNodeRecord{}, err
		}
		hash := wirenode.Hash(bytes)
		rec := UpdatedNodeRecord{
			Slot:        slotID,
			Kind:        FinalizedLeaf,
			Extension:   compactExt,
			Value:       NodeValue(wireVal),
			HasValue:    true,
			MemoryUsage: n.MemoryUsage,
			Bytes:       bytes,
		}
		return finalizedSlot{hash: hash, memoryUsage: n.MemoryUsage, bytes: bytes}, rec, nil

	case node.KindExtension:
		compactExt := nibble.Encode(nibble.Nibbles(n.Extension), false)
		childHash, childMem, err := m.resolveChild(n.Child, finalized)
		if err != nil {
			return finalizedSlot{}, UpdatedNodeRecord{}, err
		}
		memUsage := m.extensionMemoryUsage(n.Extension, childMem)
		bytes, err := wirenode.EncodeExtension(compactExt, childHash, memUsage)
		if err != nil {
			return finalizedSlot{}, UpdatedNodeRecord{}, err
		}
		hash := wirenode.Hash(bytes)
		rec := UpdatedNodeRecord{
			Slot:        slotID,
			Kind:        FinalizedExtension,
			Extension:   compactExt,
			ExtChild:    toChildRef(n.Child),
			HasExtChild: true,
			MemoryUsage: memUsage,
			Bytes:       bytes,
		}
		return finalizedSlot{hash: hash, memoryUsage: memUsage, bytes: bytes}, rec, nil

	case node.KindBranch:
		var mask uint16
		var childHashes []common.Hash
		var childRefs [16]ChildRef
		var present [16]bool
		memUsage := m.costs.NodeCost

		for i, c := range n.Children {
			if c == nil {
				continue
			}
			h, mem, err := m.resolveChild(*c, finalized)
			if err != nil {
				return finalizedSlot{}, UpdatedNodeRecord{}, err
			}
			mask |= 1 << uint(i)
			childHashes = append(childHashes, h)
			childRefs[i] = toChildRef(*c)
			present[i] = true
			memUsage += mem
		}
		childCount := bits.OnesCount16(mask)
		hasValue := n.BranchValue != nil
		// Canonical branches need either >=2 children, or exactly 1 child
		// plus a value: squash turns a childless branch into Empty or a
		// leaf and a valueless single-child branch into an extension or a
		// longer leaf, so anything less than that here means squash failed
		// to run somewhere along the deletion path.
		if childCount == 0 || (childCount == 1 && !hasValue) {
			programmerError("finalize: degenerate branch at slot %d (%d children, has_value=%v)", slotID, childCount, hasValue)
		}

		var wireVal *wirenode.Value
		var nodeVal NodeValue
		if hasValue {
			v := toWireValue(*n.BranchValue)
			wireVal = &v
			nodeVal = NodeValue(v)
			memUsage += n.BranchValue.Len()*m.costs.ByteOfValue + m.costs.NodeCost
		}

		bytes, err := wirenode.EncodeBranch(mask, childHashes, wireVal, memUsage)
		if err != nil {
			return finalizedSlot{}, UpdatedNodeRecord{}, err
		}
		hash := wirenode.Hash(bytes)
		rec := UpdatedNodeRecord{
			Slot:         slotID,
			Kind:         FinalizedBranch,
			Value:        nodeVal,
			HasValue:     hasValue,
			Children:     childRefs,
			ChildPresent: present,
			MemoryUsage:  memUsage,
			Bytes:        bytes,
		}
		return finalizedSlot{hash: hash, memoryUsage: memUsage, bytes: bytes}, rec, nil

	default:
		programmerError("finalize: unknown node kind %d", n.Kind)
		return finalizedSlot{}, UpdatedNodeRecord{}, nil
	}
}
