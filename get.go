package memtrie

import (
	"github.com/wgyt/memtrie/internal/nibble"
	"github.com/wgyt/memtrie/internal/triearena"
)

// Get performs a read-only descent of the immutable trie rooted at root,
// returning the value stored at key and whether it was found. It never
// touches an update buffer and has no session-lifetime effects; it exists
// so callers and tests can confirm a round trip through Insert/finalize/
// replay reproduces the written value.
//
// Grounded on turbotrie's TurboTrie.get descent, generalized off the
// fixed-length account-key assumption.
func Get(arena triearena.Arena, root *triearena.Handle, key []byte) ([]byte, bool, error) {
	if root == nil {
		return nil, false, nil
	}

	partial := nibble.FromBytes(key)
	handle := *root

	for {
		view, err := arena.View(handle)
		if err != nil {
			return nil, false, &StorageError{Handle: handle, Err: err}
		}

		switch view.Variant() {
		case triearena.VariantEmpty:
			return nil, false, nil

		case triearena.VariantLeaf:
			ext, _ := nibble.Decode(view.Extension())
			if nibble.Nibbles(ext).Len() != partial.Len() {
				return nil, false, nil
			}
			if nibble.CommonPrefixLen(nibble.Nibbles(ext), partial) != partial.Len() {
				return nil, false, nil
			}
			v, _ := view.Value()
			return resolveValueBytes(v), true, nil

		case triearena.VariantExtension:
			ext, _ := nibble.Decode(view.Extension())
			extN := nibble.Nibbles(ext)
			if partial.Len() < extN.Len() || nibble.CommonPrefixLen(extN, partial) != extN.Len() {
				return nil, false, nil
			}
			child, ok := view.ExtensionChild()
			if !ok {
				programmerError("get: extension node missing child at handle %d", handle)
			}
			handle = child
			partial = partial.Mid(extN.Len())
			continue

		case triearena.VariantBranch:
			if partial.Len() == 0 {
				v, ok := view.Value()
				if !ok {
					return nil, false, nil
				}
				return resolveValueBytes(v), true, nil
			}
			child, ok := view.Child(int(partial.At(0)))
			if !ok {
				return nil, false, nil
			}
			handle = child
			partial = partial.Mid(1)
			continue

		default:
			programmerError("get: unknown arena variant %d at handle %d", view.Variant(), handle)
			return nil, false, nil
		}
	}
}

// resolveValueBytes returns a value's bytes when carried inline. Hash-
// referenced values live in an external value store this package doesn't
// own; callers needing those bytes resolve v.Hash themselves.
func resolveValueBytes(v triearena.Value) []byte {
	if v.Inline != nil {
		return v.Inline
	}
	return nil
}
