package memtrie

import (
	"github.com/wgyt/memtrie/internal/nibble"
	"github.com/wgyt/memtrie/internal/node"
)

// Insert writes key/value into the trie. Unlike Delete, it never needs to
// restore canonical form afterward: growing a path can split a leaf or
// extension into a branch, but it never produces a degenerate node that
// squash would have to clean up.
func (m *MemTrieUpdate) Insert(key, value []byte) error {
	valueRef := m.newValueRef(value)
	m.tracker.recordValueWrite(valueRef, value)

	partial := nibble.FromBytes(key)
	slotID := 0

	for {
		n := m.buf.take(slotID)

		switch n.Kind {
		case node.KindEmpty:
			leaf := node.Leaf(partial.Clone(), valueRef, m.leafMemoryUsage(partial, valueRef))
			m.buf.place(slotID, leaf)
			return nil

		case node.KindBranch:
			if partial.Len() == 0 {
				if n.BranchValue != nil {
					m.tracker.recordValueRelease(*n.BranchValue)
				}
				n.BranchValue = &valueRef
				n.MemoryUsage = m.branchMemoryUsage(n)
				m.buf.place(slotID, n)
				return nil
			}

			i := partial.At(0)
			var childID int
			var err error
			if n.Children[i] != nil {
				childID, err = m.buf.ensureUpdated(*n.Children[i])
				if err != nil {
					m.buf.place(slotID, n)
					return err
				}
			} else {
				childID = m.buf.newSlot(node.Empty())
			}
			ref := node.UpdatedRef(childID)
			n.Children[i] = &ref
			m.buf.place(slotID, n)

			slotID = childID
			partial = partial.Mid(1)
			continue

		case node.KindLeaf:
			ext := nibble.Nibbles(n.Extension)
			common := nibble.CommonPrefixLen(partial, ext)

			switch {
			case common == ext.Len() && common == partial.Len():
				m.tracker.recordValueRelease(n.Value)
				n.Value = valueRef
				n.MemoryUsage = m.leafMemoryUsage(ext, valueRef)
				m.buf.place(slotID, n)
				return nil

			case common == 0:
				m.log.Trace("insert: splitting leaf into branch", "slot", slotID)
				var children [16]*node.Ref
				var branchValue *node.ValueRef
				if ext.Len() == 0 {
					v := n.Value
					branchValue = &v
				} else {
					childExt := ext.Mid(1).Clone()
					childSlot := m.buf.newSlot(node.Leaf(childExt, n.Value, m.leafMemoryUsage(childExt, n.Value)))
					ref := node.UpdatedRef(childSlot)
					children[ext.At(0)] = &ref
				}
				branch := node.Branch(children, branchValue, 0)
				branch.MemoryUsage = m.branchMemoryUsage(branch)
				m.buf.place(slotID, branch)
				continue // re-iterate on the same slot, partial unchanged

			default:
				leafExt := ext.Mid(common).Clone()
				leafSlot := m.buf.newSlot(node.Leaf(leafExt, n.Value, m.leafMemoryUsage(leafExt, n.Value)))
				extExt := partial[:common].Clone()
				ext2 := node.Extension(extExt, node.UpdatedRef(leafSlot), m.extensionMemoryUsage(extExt, m.buf.peekRaw(leafSlot).MemoryUsage))
				m.buf.place(slotID, ext2)

				slotID = leafSlot
				partial = partial.Mid(common)
				continue
			}

		case node.KindExtension:
			ext := nibble.Nibbles(n.Extension)
			common := nibble.CommonPrefixLen(partial, ext)

			switch {
			case common == 0:
				var children [16]*node.Ref
				if ext.Len() == 1 {
					children[ext.At(0)] = &n.Child
				} else {
					childExt := ext.Mid(1).Clone()
					childSlot := m.buf.newSlot(node.Extension(childExt, n.Child, m.extensionMemoryUsage(childExt, 0)))
					ref := node.UpdatedRef(childSlot)
					children[ext.At(0)] = &ref
				}
				branch := node.Branch(children, nil, 0)
				branch.MemoryUsage = m.branchMemoryUsage(branch)
				m.buf.place(slotID, branch)
				continue

			case common == ext.Len():
				childID, err := m.buf.ensureUpdated(n.Child)
				if err != nil {
					m.buf.place(slotID, n)
					return err
				}
				n.Child = node.UpdatedRef(childID)
				m.buf.place(slotID, n)

				slotID = childID
				partial = partial.Mid(common)
				continue

			default:
				remExt := ext.Mid(common).Clone()
				newExtSlot := m.buf.newSlot(node.Extension(remExt, n.Child, m.extensionMemoryUsage(remExt, 0)))
				extExt := partial[:common].Clone()
				rewritten := node.Extension(extExt, node.UpdatedRef(newExtSlot), m.extensionMemoryUsage(extExt, m.buf.peekRaw(newExtSlot).MemoryUsage))
				m.buf.place(slotID, rewritten)

				slotID = newExtSlot
				partial = partial.Mid(common)
				continue
			}

		default:
			programmerError("insert: unknown node kind %d", n.Kind)
			return nil
		}
	}
}
