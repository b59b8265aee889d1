package diskstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wgyt/memtrie"
	"github.com/wgyt/memtrie/internal/triearena/memarena"
)

// TestApplyTracksRefcounts inserts a handful of keys, applies the resulting
// TrieChanges to a fresh Store, and confirms every newly-hashed node landed
// with a positive refcount and a retrievable payload.
func TestApplyTracksRefcounts(t *testing.T) {
	arena := memarena.New(64)
	m, err := memtrie.New(arena, [32]byte{}, nil, memtrie.DefaultCosts)
	require.NoError(t, err)

	require.NoError(t, m.Insert([]byte{0x01}, []byte("one")))
	require.NoError(t, m.Insert([]byte{0x02}, []byte("two")))

	changes, err := m.ToTrieChanges()
	require.NoError(t, err)
	require.NotEmpty(t, changes.Insertions)
	require.Empty(t, changes.Deletions)

	store, err := Open()
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Apply(&changes))

	for _, ins := range changes.Insertions {
		count, err := store.Refcount(ins.Hash)
		require.NoError(t, err)
		require.Equal(t, ins.Count, count)

		payload, ok, err := store.Payload(ins.Hash)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, ins.Payload, payload)
	}
}

// TestApplyDeletionDropsRefcountToZero confirms a node's keys disappear from
// the store once its refcount reaches zero.
func TestApplyDeletionDropsRefcountToZero(t *testing.T) {
	arena := memarena.New(64)
	m, err := memtrie.New(arena, [32]byte{}, nil, memtrie.DefaultCosts)
	require.NoError(t, err)
	require.NoError(t, m.Insert([]byte{0x01}, []byte("one")))

	changes, err := m.ToTrieChanges()
	require.NoError(t, err)

	store, err := Open()
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Apply(&changes))

	root, err := memtrie.ConstructRootFromChanges(arena, changes.MemTrieChanges)
	require.NoError(t, err)
	require.NotNil(t, root)

	m2, err := memtrie.New(arena, changes.NewRoot, root, memtrie.DefaultCosts)
	require.NoError(t, err)
	require.NoError(t, m2.Delete([]byte{0x01}))

	changes2, err := m2.ToTrieChanges()
	require.NoError(t, err)
	require.NotEmpty(t, changes2.Deletions)

	require.NoError(t, store.Apply(&changes2))

	for _, del := range changes2.Deletions {
		count, err := store.Refcount(del.Hash)
		require.NoError(t, err)
		require.Zero(t, count)
	}
	require.Zero(t, store.Len())
}
