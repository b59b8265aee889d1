// Package wirenode implements the canonical, deterministic byte encoding of
// trie nodes that gets hashed to produce the Merkle root.
//
// Grounded on turbotrie's internal/integrity (integritynode.go) and
// internal/storage/finalizer.go's canonicalFullNodeIntegrityNodeAndRLP,
// which establish the "tag byte + RLP body" shape this package generalizes.
// Uses github.com/ethereum/go-ethereum/rlp for the deterministic encoder and
// golang.org/x/crypto/blake2b for the hash function.
package wirenode

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/blake2b"
)

// Tag bytes identify the wire node kind and are always the first logical
// field of the serialized record.
const (
	TagLeaf        byte = 0
	TagExtension   byte = 1
	TagBranch      byte = 2
	TagBranchValue byte = 3
)

// Value is the canonical wire encoding of a node.ValueRef.
type Value struct {
	Inline []byte
	Hash   common.Hash
	Length uint64
}

type leafBody struct {
	Extension []byte
	Value     Value
}

type extensionBody struct {
	Extension []byte
	Child     common.Hash
}

type branchBody struct {
	Mask     uint16
	Children []common.Hash
}

type branchValueBody struct {
	Mask     uint16
	Children []common.Hash
	Value    Value
}

type record struct {
	Tag         byte
	Body        []byte
	MemoryUsage uint64
}

func encodeRecord(tag byte, body interface{}, memoryUsage uint64) ([]byte, error) {
	bodyBytes, err := rlp.EncodeToBytes(body)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(&record{Tag: tag, Body: bodyBytes, MemoryUsage: memoryUsage})
}

// EncodeLeaf returns the canonical (wire_node, memory_usage) bytes for a
// leaf node.
func EncodeLeaf(extension []byte, value Value, memoryUsage uint64) ([]byte, error) {
	return encodeRecord(TagLeaf, &leafBody{Extension: extension, Value: value}, memoryUsage)
}

// EncodeExtension returns the canonical bytes for an extension node.
func EncodeExtension(extension []byte, child common.Hash, memoryUsage uint64) ([]byte, error) {
	return encodeRecord(TagExtension, &extensionBody{Extension: extension, Child: child}, memoryUsage)
}

// EncodeBranch returns the canonical bytes for a branch node. children must
// be given in ascending index order; mask records which of the 16 indices
// they correspond to.
func EncodeBranch(mask uint16, children []common.Hash, value *Value, memoryUsage uint64) ([]byte, error) {
	if value == nil {
		return encodeRecord(TagBranch, &branchBody{Mask: mask, Children: children}, memoryUsage)
	}
	return encodeRecord(TagBranchValue, &branchValueBody{Mask: mask, Children: children, Value: *value}, memoryUsage)
}

// Hash computes the canonical content hash of serialized wire bytes.
func Hash(bytes []byte) common.Hash {
	return common.Hash(blake2b.Sum256(bytes))
}

// EmptyRootHash is the root hash of a trie with no keys: the zero hash,
// never a value any real node can hash to.
var EmptyRootHash = common.Hash{}
