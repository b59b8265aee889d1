// Package triearena defines the interface to the immutable-node store the
// mutation engine reads old nodes from and a replayer writes finalized
// nodes into. This package is the contract only; internal/triearena/memarena
// supplies a concrete reference implementation used by tests.
package triearena

import "github.com/ethereum/go-ethereum/common"

// Handle identifies an immutable node already committed to the arena.
type Handle uint64

// Variant enumerates the four trie node shapes as seen from the arena.
type Variant uint8

const (
	VariantEmpty Variant = iota
	VariantLeaf
	VariantExtension
	VariantBranch
)

// Value is the arena's view of a ValueRef.
type Value struct {
	Inline []byte
	Hash   common.Hash
	Length uint64
}

// NodeView is a read-only view onto an immutable node.
type NodeView interface {
	Variant() Variant
	// Extension returns the compact-encoded nibble extension; empty for
	// Empty and Branch nodes.
	Extension() []byte
	// Value returns the node's value, if any (Leaf always has one; Branch
	// may).
	Value() (Value, bool)
	// Child returns branch child i's handle, if present.
	Child(i int) (Handle, bool)
	// ExtensionChild returns an Extension node's single child.
	ExtensionChild() (Handle, bool)
	Hash() common.Hash
	MemoryUsage() uint64
	SerializedBytes() []byte
}

// InputNode describes a node to be allocated into the arena, supplied by a
// replayer once its hash has already been computed by the finalizer.
type InputNode struct {
	Variant      Variant
	Extension    []byte
	Value        Value
	HasValue     bool
	Children     [16]Handle
	ChildPresent [16]bool
	ExtChild     Handle
	HasExtChild  bool
	MemoryUsage  uint64
	Bytes        []byte
}

// Arena is the external collaborator responsible for immutable node
// storage. View resolves Old(_) references during mutation; Allocate is
// used only by the replayer to materialize finalized nodes.
type Arena interface {
	View(h Handle) (NodeView, error)
	Allocate(n InputNode, hash common.Hash) (Handle, error)
}
