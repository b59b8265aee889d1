// Package memarena is a reference, in-memory implementation of
// triearena.Arena. The engine treats the arena as an external collaborator
// it never implements itself; this package exists to exercise the engine
// end to end in tests.
//
// Grounded on jaiminpan-mt-trie's trie_db.go (TrieDB: a growable store of
// committed nodes plus a bounded cache), using
// github.com/hashicorp/golang-lru for the cache exactly as vechain-thor
// depends on the same package.
package memarena

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"

	"github.com/wgyt/memtrie/internal/triearena"
)

type storedNode struct {
	input triearena.InputNode
	hash  common.Hash
}

// Arena is a simple, non-persistent reference implementation of
// triearena.Arena.
type Arena struct {
	nodes []storedNode
	cache *lru.Cache
}

// New returns an Arena backed by a bounded LRU of decoded views, sized
// cacheSize.
func New(cacheSize int) *Arena {
	cache, err := lru.New(cacheSize)
	if err != nil {
		panic(fmt.Sprintf("memarena: invalid cache size %d: %v", cacheSize, err))
	}
	return &Arena{cache: cache}
}

// View implements triearena.Arena.
func (a *Arena) View(h triearena.Handle) (triearena.NodeView, error) {
	if cached, ok := a.cache.Get(h); ok {
		return cached.(*view), nil
	}
	idx := int(h)
	if idx < 0 || idx >= len(a.nodes) {
		return nil, fmt.Errorf("memarena: handle %d out of range (have %d nodes)", h, len(a.nodes))
	}
	v := &view{a.nodes[idx]}
	a.cache.Add(h, v)
	return v, nil
}

// Allocate implements triearena.Arena.
func (a *Arena) Allocate(n triearena.InputNode, hash common.Hash) (triearena.Handle, error) {
	h := triearena.Handle(len(a.nodes))
	a.nodes = append(a.nodes, storedNode{input: n, hash: hash})
	return h, nil
}

// Len reports how many nodes have been allocated, for test assertions.
func (a *Arena) Len() int { return len(a.nodes) }

type view struct {
	sn storedNode
}

func (v *view) Variant() triearena.Variant { return v.sn.input.Variant }
func (v *view) Extension() []byte          { return v.sn.input.Extension }

func (v *view) Value() (triearena.Value, bool) {
	return v.sn.input.Value, v.sn.input.HasValue
}

func (v *view) Child(i int) (triearena.Handle, bool) {
	return v.sn.input.Children[i], v.sn.input.ChildPresent[i]
}

func (v *view) ExtensionChild() (triearena.Handle, bool) {
	return v.sn.input.ExtChild, v.sn.input.HasExtChild
}

func (v *view) Hash() common.Hash       { return v.sn.hash }
func (v *view) MemoryUsage() uint64     { return v.sn.input.MemoryUsage }
func (v *view) SerializedBytes() []byte { return v.sn.input.Bytes }
