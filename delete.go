package memtrie

import (
	"github.com/wgyt/memtrie/internal/nibble"
	"github.com/wgyt/memtrie/internal/node"
)

// Delete removes key if present. Deleting a key that isn't there is not an
// error: it is a no-op, and running it twice in a row must leave the root
// hash unchanged both times.
func (m *MemTrieUpdate) Delete(key []byte) error {
	partial := nibble.FromBytes(key)
	path := []int{0}
	slotID := 0

	for {
		n := m.buf.take(slotID)

		switch n.Kind {
		case node.KindEmpty:
			// Key absent: nothing to remove, nothing to restore.
			m.buf.place(slotID, n)
			return nil

		case node.KindLeaf:
			ext := nibble.Nibbles(n.Extension)
			if ext.Len() == partial.Len() && nibble.CommonPrefixLen(ext, partial) == ext.Len() {
				m.tracker.recordValueRelease(n.Value)
				m.buf.place(slotID, node.Empty())
				return m.squashPath(path)
			}
			// Key absent (no matching leaf along this path): no squash.
			m.buf.place(slotID, n)
			return nil

		case node.KindBranch:
			if partial.Len() == 0 {
				if n.BranchValue == nil {
					m.buf.place(slotID, n)
					return nil
				}
				m.tracker.recordValueRelease(*n.BranchValue)
				n.BranchValue = nil
				n.MemoryUsage = m.branchMemoryUsage(n)
				m.buf.place(slotID, n)
				return m.squashPath(path)
			}

			i := partial.At(0)
			if n.Children[i] == nil {
				m.buf.place(slotID, n)
				return nil
			}

			childID, err := m.buf.ensureUpdated(*n.Children[i])
			if err != nil {
				m.buf.place(slotID, n)
				return err
			}
			ref := node.UpdatedRef(childID)
			n.Children[i] = &ref
			m.buf.place(slotID, n)

			path = append(path, childID)
			slotID = childID
			partial = partial.Mid(1)
			continue

		case node.KindExtension:
			ext := nibble.Nibbles(n.Extension)
			if ext.Len() > partial.Len() || nibble.CommonPrefixLen(ext, partial) != ext.Len() {
				m.buf.place(slotID, n)
				return nil
			}

			childID, err := m.buf.ensureUpdated(n.Child)
			if err != nil {
				m.buf.place(slotID, n)
				return err
			}
			n.Child = node.UpdatedRef(childID)
			m.buf.place(slotID, n)

			path = append(path, childID)
			slotID = childID
			partial = partial.Mid(ext.Len())
			continue

		default:
			programmerError("delete: unknown node kind %d", n.Kind)
			return nil
		}
	}
}

// squashPath restores canonical form along path, child-first: a deletion can
// leave any ancestor on the path degenerate (a branch down to one child, or
// down to none), and each fixup can in turn make its own parent degenerate,
// so the walk must run from the leaf end back toward the root.
func (m *MemTrieUpdate) squashPath(path []int) error {
	for i := len(path) - 1; i >= 0; i-- {
		m.squash(path[i])
	}
	return nil
}

// squash restores canonical form for a single slot whose subtree may just
// have lost a leaf.
func (m *MemTrieUpdate) squash(slotID int) {
	n := m.buf.take(slotID)

	switch n.Kind {
	case node.KindEmpty:
		m.buf.place(slotID, n)

	case node.KindBranch:
		for i, c := range n.Children {
			if c != nil && c.IsUpdated() {
				if m.buf.peekRaw(c.Slot()).Kind == node.KindEmpty {
					n.Children[i] = nil
				}
			}
		}

		count, onlyIndex := n.LivingChildren()
		switch {
		case count == 0 && n.BranchValue == nil:
			m.buf.place(slotID, node.Empty())

		case count == 0 && n.BranchValue != nil:
			v := *n.BranchValue
			m.buf.place(slotID, node.Leaf(nil, v, m.leafMemoryUsage(nil, v)))

		case count == 1 && n.BranchValue == nil:
			m.log.Trace("squash: collapsing branch to its sole child", "slot", slotID, "index", onlyIndex)
			child := *n.Children[onlyIndex]
			m.buf.place(slotID, node.Empty()) // hole filled transiently; extendChild re-takes it
			m.extendChild(slotID, nibble.Nibbles{byte(onlyIndex)}, child)

		default:
			n.MemoryUsage = m.branchMemoryUsage(n)
			m.buf.place(slotID, n)
		}

	case node.KindExtension:
		ext := nibble.Nibbles(n.Extension).Clone()
		child := n.Child
		m.buf.place(slotID, node.Empty())
		m.extendChild(slotID, ext, child)

	case node.KindLeaf:
		programmerError("squash: unreachable leaf at slot %d", slotID)

	default:
		programmerError("squash: unknown node kind %d", n.Kind)
	}
}

// extendChild merges slot's prefix ext with childRef's node. slot must
// currently hold a placeholder (Empty) that this function immediately
// re-takes and overwrites.
func (m *MemTrieUpdate) extendChild(slotID int, ext nibble.Nibbles, childRef node.Ref) {
	childID, err := m.buf.ensureUpdated(childRef)
	if err != nil {
		// squash has no recoverable error path: a storage fault here means
		// the arena lost a node this session already holds a handle to,
		// which is unrecoverable for this session.
		programmerError("extend_child: storage fault resolving child: %v", err)
	}
	child := m.buf.take(childID)
	_ = m.buf.take(slotID) // placeholder Empty; discarded, slot becomes the merged node below

	switch child.Kind {
	case node.KindEmpty:
		m.buf.place(slotID, node.Empty())
		m.buf.place(childID, node.Empty())

	case node.KindLeaf:
		merged := nibble.Concat(ext, nibble.Nibbles(child.Extension))
		m.buf.place(slotID, node.Leaf(merged, child.Value, m.leafMemoryUsage(merged, child.Value)))
		// child slot becomes an unreferenced hole: nothing in the buffer
		// points at childID any more, and finalize's post-order traversal
		// starts at slot 0, so it is never visited.

	case node.KindBranch:
		m.buf.place(childID, child)
		extNode := node.Extension(ext, node.UpdatedRef(childID), m.extensionMemoryUsage(ext, child.MemoryUsage))
		m.buf.place(slotID, extNode)

	case node.KindExtension:
		m.log.Trace("extend_child: merging adjacent extensions", "slot", slotID, "child_slot", childID)
		merged := nibble.Concat(ext, nibble.Nibbles(child.Extension))
		// child.MemoryUsage already counts child's own node cost and key
		// bytes; strip that back out before folding it under the merged
		// extension, or the merge double-counts one node's overhead.
		childDirectCost := m.costs.NodeCost + uint64(len(child.Extension)/2+1)*m.costs.ByteOfKey
		grandchildUsage := saturatingSub(child.MemoryUsage, childDirectCost)
		m.buf.place(slotID, node.Extension(merged, child.Child, m.extensionMemoryUsage(merged, grandchildUsage)))
		// child slot left as an unreferenced hole, as above.

	default:
		programmerError("extend_child: unknown node kind %d", child.Kind)
	}
}
