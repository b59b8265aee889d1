package memtrie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wgyt/memtrie/internal/triearena"
)

// ConstructRootFromChanges takes the MemTrieChanges a finalize pass produced
// against one arena, allocates the equivalent nodes into a (possibly
// different) target arena, and returns the new root handle — nil if the
// trie is now empty.
//
// UpdatedNodes is consumed in order, which postOrder already guarantees is
// child-before-parent, so every Updated(_) child a record references has
// already been allocated and is present in the slot→handle map by the time
// its parent is reached.
func ConstructRootFromChanges(arena triearena.Arena, changes MemTrieChanges) (*triearena.Handle, error) {
	if len(changes.UpdatedNodes) == 0 {
		return nil, nil
	}

	slotToHandle := make(map[int]triearena.Handle, len(changes.UpdatedNodes))

	resolve := func(ref ChildRef) (triearena.Handle, error) {
		if ref.Updated {
			h, ok := slotToHandle[ref.Slot]
			if !ok {
				return 0, fmt.Errorf("memtrie: replay: slot %d referenced before allocation", ref.Slot)
			}
			return h, nil
		}
		return ref.Old, nil
	}

	hashBySlot := make(map[int]common.Hash, len(changes.NodeIDsWithHashes))
	for _, nh := range changes.NodeIDsWithHashes {
		hashBySlot[nh.Slot] = nh.Hash
	}

	var lastHandle triearena.Handle
	var sawAny bool

	for _, rec := range changes.UpdatedNodes {
		hash, ok := hashBySlot[rec.Slot]
		if !ok {
			return nil, fmt.Errorf("memtrie: replay: slot %d has no recorded hash", rec.Slot)
		}

		if rec.Kind == FinalizedEmpty {
			// An Empty slot never gets an arena allocation; references to
			// it are simply absent.
			continue
		}

		input := triearena.InputNode{
			Extension:   rec.Extension,
			HasValue:    rec.HasValue,
			MemoryUsage: rec.MemoryUsage,
			Bytes:       rec.Bytes,
		}
		if rec.HasValue {
			input.Value = triearena.Value{Inline: rec.Value.Inline, Hash: rec.Value.Hash, Length: rec.Value.Length}
		}

		switch rec.Kind {
		case FinalizedLeaf:
			input.Variant = triearena.VariantLeaf

		case FinalizedExtension:
			input.Variant = triearena.VariantExtension
			h, err := resolve(rec.ExtChild)
			if err != nil {
				return nil, err
			}
			input.ExtChild = h
			input.HasExtChild = true

		case FinalizedBranch:
			input.Variant = triearena.VariantBranch
			for i := 0; i < 16; i++ {
				if !rec.ChildPresent[i] {
					continue
				}
				h, err := resolve(rec.Children[i])
				if err != nil {
					return nil, err
				}
				input.Children[i] = h
				input.ChildPresent[i] = true
			}

		default:
			return nil, fmt.Errorf("memtrie: replay: unknown finalized kind %d at slot %d", rec.Kind, rec.Slot)
		}

		handle, err := arena.Allocate(input, hash)
		if err != nil {
			return nil, &StorageError{Err: err}
		}
		slotToHandle[rec.Slot] = handle
		lastHandle = handle
		sawAny = true
	}

	if !sawAny {
		return nil, nil
	}
	return &lastHandle, nil
}
