// Package node describes trie nodes in their two forms: a Ref pointing
// either into the immutable arena or into the session's update buffer, and
// Updated, the scratch node a slot in the update buffer holds while the
// session is in flight.
//
// Grounded on turbotrie's internal/node/node.go (VersionedNode: Nil, Leaf,
// Full), generalized from a version-number-carrying node set to a plain
// Old(ArenaHandle)/Updated(SlotIndex) duality.
package node

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/wgyt/memtrie/internal/triearena"
)

// Ref is a NodeRef: either Old(ArenaHandle) or Updated(SlotIndex).
type Ref struct {
	updated bool
	old     triearena.Handle
	slot    int
}

// OldRef builds a reference into the immutable arena.
func OldRef(h triearena.Handle) Ref { return Ref{old: h} }

// UpdatedRef builds a reference into the session's update buffer.
func UpdatedRef(slot int) Ref { return Ref{updated: true, slot: slot} }

// IsUpdated reports whether the reference points into the update buffer.
func (r Ref) IsUpdated() bool { return r.updated }

// Slot returns the update-buffer slot index. Only meaningful if IsUpdated.
func (r Ref) Slot() int { return r.slot }

// Old returns the arena handle. Only meaningful if !IsUpdated.
func (r Ref) Old() triearena.Handle { return r.old }

// ValueRef is either an inline small value, or a pointer to a value stored
// elsewhere, identified by content hash and byte length.
type ValueRef struct {
	Inline []byte
	Hash   common.Hash
	Length uint64
}

// IsInline reports whether the value's bytes are carried directly.
func (v ValueRef) IsInline() bool { return v.Inline != nil }

// Len returns the value's byte length regardless of representation.
func (v ValueRef) Len() uint64 {
	if v.IsInline() {
		return uint64(len(v.Inline))
	}
	return v.Length
}

// Kind enumerates the four trie node variants.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindLeaf
	KindExtension
	KindBranch
)

// Updated is the node a single update-buffer slot holds while a session is
// open. Only the fields relevant to Kind are meaningful; the others are
// zero.
type Updated struct {
	Kind Kind

	// Leaf, Extension: raw (non-compact-encoded) nibbles.
	Extension []byte

	// Leaf.
	Value ValueRef

	// Extension.
	Child Ref

	// Branch.
	Children    [16]*Ref
	BranchValue *ValueRef

	// Eagerly-maintained running estimate of the memory-usage cost model,
	// set whenever a mutation rewrites this node; it is not refreshed when
	// a descendant changes afterwards. Contributions from not-yet-touched
	// Old(_) children are counted as zero. finalize.go recomputes the
	// authoritative value for extensions and branches against the arena
	// (see DESIGN.md's Open Question resolution).
	MemoryUsage uint64
}

// Empty returns a fresh Empty node.
func Empty() *Updated { return &Updated{Kind: KindEmpty} }

// Leaf returns a fresh Leaf node.
func Leaf(ext []byte, v ValueRef, memoryUsage uint64) *Updated {
	return &Updated{Kind: KindLeaf, Extension: ext, Value: v, MemoryUsage: memoryUsage}
}

// Extension returns a fresh Extension node.
func Extension(ext []byte, child Ref, memoryUsage uint64) *Updated {
	return &Updated{Kind: KindExtension, Extension: ext, Child: child, MemoryUsage: memoryUsage}
}

// Branch returns a fresh Branch node.
func Branch(children [16]*Ref, value *ValueRef, memoryUsage uint64) *Updated {
	return &Updated{Kind: KindBranch, Children: children, BranchValue: value, MemoryUsage: memoryUsage}
}

// Clone returns a deep-enough copy that mutating the copy's top-level
// fields (children slots, branch value) cannot alias the original.
func (u *Updated) Clone() *Updated {
	c := *u
	if u.Extension != nil {
		c.Extension = append([]byte(nil), u.Extension...)
	}
	if u.Kind == KindBranch {
		for i, ch := range u.Children {
			if ch != nil {
				r := *ch
				c.Children[i] = &r
			}
		}
		if u.BranchValue != nil {
			v := *u.BranchValue
			c.BranchValue = &v
		}
	}
	return &c
}

// LivingChildren reports the number of present children and, if exactly
// one, its index.
func (u *Updated) LivingChildren() (count int, onlyIndex int) {
	onlyIndex = -1
	for i, c := range u.Children {
		if c != nil {
			count++
			onlyIndex = i
		}
	}
	return
}
