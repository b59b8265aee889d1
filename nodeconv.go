package memtrie

import (
	"github.com/wgyt/memtrie/internal/nibble"
	"github.com/wgyt/memtrie/internal/node"
	"github.com/wgyt/memtrie/internal/triearena"
	"github.com/wgyt/memtrie/internal/wirenode"
)

// viewToUpdated converts an arena's read-only view of an old node into a
// fresh Updated scratch node. The conversion is non-recursive: children
// remain Old(_) until a later step separately pulls them into the buffer.
func viewToUpdated(view triearena.NodeView) *node.Updated {
	switch view.Variant() {
	case triearena.VariantEmpty:
		return node.Empty()

	case triearena.VariantLeaf:
		ext, _ := nibble.Decode(view.Extension())
		v, _ := view.Value()
		return node.Leaf(ext, toNodeValue(v), view.MemoryUsage())

	case triearena.VariantExtension:
		ext, _ := nibble.Decode(view.Extension())
		child, _ := view.ExtensionChild()
		return node.Extension(ext, node.OldRef(child), view.MemoryUsage())

	case triearena.VariantBranch:
		var children [16]*node.Ref
		for i := 0; i < 16; i++ {
			if h, ok := view.Child(i); ok {
				r := node.OldRef(h)
				children[i] = &r
			}
		}
		var branchValue *node.ValueRef
		if v, ok := view.Value(); ok {
			nv := toNodeValue(v)
			branchValue = &nv
		}
		return node.Branch(children, branchValue, view.MemoryUsage())

	default:
		programmerError("unknown arena variant %d", view.Variant())
		return nil
	}
}

func toNodeValue(v triearena.Value) node.ValueRef {
	return node.ValueRef{Inline: v.Inline, Hash: v.Hash, Length: v.Length}
}

func toWireValue(v node.ValueRef) wirenode.Value {
	return wirenode.Value{Inline: v.Inline, Hash: v.Hash, Length: v.Length}
}
