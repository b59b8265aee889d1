package memtrie

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wgyt/memtrie/internal/triearena"
	"github.com/wgyt/memtrie/internal/triearena/memarena"
	"github.com/wgyt/memtrie/internal/wirenode"
)

// openEmpty returns a session against a fresh, empty trie backed by a
// reference in-memory arena.
func openEmpty(t *testing.T) (*MemTrieUpdate, *memarena.Arena) {
	t.Helper()
	arena := memarena.New(64)
	m, err := New(arena, [32]byte{}, nil, DefaultCosts)
	require.NoError(t, err)
	return m, arena
}

// rootHandle replays a session's changes into arena and returns the new
// root handle (nil if now empty).
func rootHandle(t *testing.T, arena *memarena.Arena, m *MemTrieUpdate) (*triearena.Handle, TrieChanges) {
	t.Helper()
	changes, err := m.ToTrieChanges()
	require.NoError(t, err)
	h, err := ConstructRootFromChanges(arena, changes.MemTrieChanges)
	require.NoError(t, err)
	return h, changes
}

func TestInsertSingleKeyProducesLeaf(t *testing.T) {
	m, arena := openEmpty(t)
	require.NoError(t, m.Insert([]byte("alpha"), []byte("1")))

	h, changes := rootHandle(t, arena, m)
	require.NotNil(t, h)
	require.NotEqual(t, wirenode.EmptyRootHash, changes.NewRoot)

	got, ok, err := Get(arena, h, []byte("alpha"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), got)
}

// TestThreeWayBranchInsert inserts three keys that share no nibble prefix,
// forcing slot 0 to become a Branch with three leaf children.
func TestThreeWayBranchInsert(t *testing.T) {
	m, arena := openEmpty(t)
	keys := [][]byte{{0x10}, {0x20}, {0x30}}
	for i, k := range keys {
		require.NoError(t, m.Insert(k, []byte{byte(i)}))
	}

	h, _ := rootHandle(t, arena, m)
	require.NotNil(t, h)

	for i, k := range keys {
		got, ok, err := Get(arena, h, k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte{byte(i)}, got)
	}
}

// TestLeafSplitIntoBranchWithValue covers the case where the new key is a
// strict prefix of the existing leaf's key: the leaf splits into an
// extension over the shared nibbles, the remainder leaf splits into a
// Branch, and the new value lands on that Branch directly.
func TestLeafSplitIntoBranchWithValue(t *testing.T) {
	m, arena := openEmpty(t)
	require.NoError(t, m.Insert([]byte{0x12, 0x34}, []byte("long")))
	require.NoError(t, m.Insert([]byte{0x12}, []byte("short")))

	h, _ := rootHandle(t, arena, m)
	require.NotNil(t, h)

	got, ok, err := Get(arena, h, []byte{0x12})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("short"), got)

	got, ok, err = Get(arena, h, []byte{0x12, 0x34})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("long"), got)
}

// TestStressDeletionMaintainsCanonicality inserts many keys, deletes most of
// them, and checks every survivor is still reachable and every deleted key
// is truly gone.
func TestStressDeletionMaintainsCanonicality(t *testing.T) {
	m, arena := openEmpty(t)

	keys := make([][]byte, 0, 64)
	for i := 0; i < 64; i++ {
		keys = append(keys, []byte{byte(i), byte(i * 7), byte(i * 13)})
	}
	for i, k := range keys {
		require.NoError(t, m.Insert(k, []byte{byte(i)}))
	}

	h, _ := rootHandle(t, arena, m)
	require.NotNil(t, h)

	// Open a second session against the committed root and delete every
	// other key.
	m2, err := New(arena, [32]byte{}, h, DefaultCosts)
	require.NoError(t, err)

	var deleted, kept [][]byte
	for i, k := range keys {
		if i%2 == 0 {
			require.NoError(t, m2.Delete(k))
			deleted = append(deleted, k)
		} else {
			kept = append(kept, k)
		}
	}

	h2, _ := rootHandle(t, arena, m2)
	require.NotNil(t, h2)

	for _, k := range deleted {
		_, ok, err := Get(arena, h2, k)
		require.NoError(t, err)
		require.False(t, ok, "key %x should have been deleted", k)
	}
	for i, k := range kept {
		got, ok, err := Get(arena, h2, k)
		require.NoError(t, err)
		require.True(t, ok, "key %x should still be present", k)
		// kept[i] corresponds to the original odd-indexed key keys[2*i+1],
		// which was written with value byte(2*i+1).
		require.Equal(t, []byte{byte(2*i + 1)}, got)
	}
}

// TestBranchCollapseViaExtendChild covers the squash case where deleting a
// leaf leaves a Branch with exactly one surviving child and no value,
// forcing extend_child to merge the branch index back into its child.
func TestBranchCollapseViaExtendChild(t *testing.T) {
	m, arena := openEmpty(t)
	require.NoError(t, m.Insert([]byte{0x10}, []byte("a")))
	require.NoError(t, m.Insert([]byte{0x20}, []byte("b")))

	h, _ := rootHandle(t, arena, m)
	m2, err := New(arena, [32]byte{}, h, DefaultCosts)
	require.NoError(t, err)
	require.NoError(t, m2.Delete([]byte{0x20}))

	h2, _ := rootHandle(t, arena, m2)
	require.NotNil(t, h2)

	got, ok, err := Get(arena, h2, []byte{0x10})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("a"), got)

	_, ok, err = Get(arena, h2, []byte{0x20})
	require.NoError(t, err)
	require.False(t, ok)
}

// TestExtensionMergeAndIdempotentDelete covers the extension-merge squash
// case, and confirms deleting an already-absent key leaves the root hash
// unchanged.
func TestExtensionMergeAndIdempotentDelete(t *testing.T) {
	m, arena := openEmpty(t)
	require.NoError(t, m.Insert([]byte{0x11, 0x11}, []byte("a")))
	require.NoError(t, m.Insert([]byte{0x11, 0x22}, []byte("b")))
	require.NoError(t, m.Insert([]byte{0x22, 0x00}, []byte("c")))

	h, _ := rootHandle(t, arena, m)

	m2, err := New(arena, [32]byte{}, h, DefaultCosts)
	require.NoError(t, err)
	require.NoError(t, m2.Delete([]byte{0x22, 0x00}))
	h2, changes2 := rootHandle(t, arena, m2)
	require.NotNil(t, h2)

	m3, err := New(arena, changes2.NewRoot, h2, DefaultCosts)
	require.NoError(t, err)
	require.NoError(t, m3.Delete([]byte{0x99, 0x99})) // absent key
	h3, changes3 := rootHandle(t, arena, m3)

	require.Equal(t, changes2.NewRoot, changes3.NewRoot, "deleting an absent key must not change the root hash")
	require.NotNil(t, h3)

	got, ok, err := Get(arena, h3, []byte{0x11, 0x11})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("a"), got)
}

// TestInsertThenDeleteAllReturnsToEmptyRoot round-trips twenty random-ish
// keys through insert, then deletes them all, confirming the trie returns
// exactly to the empty root hash.
func TestInsertThenDeleteAllReturnsToEmptyRoot(t *testing.T) {
	m, arena := openEmpty(t)

	keys := make([][]byte, 0, 20)
	for i := 0; i < 20; i++ {
		keys = append(keys, []byte{byte(i * 37), byte(i * 11), byte(i)})
	}
	for i, k := range keys {
		require.NoError(t, m.Insert(k, []byte{byte(i), byte(i + 1)}))
	}

	h, _ := rootHandle(t, arena, m)
	require.NotNil(t, h)

	m2, err := New(arena, [32]byte{}, h, DefaultCosts)
	require.NoError(t, err)
	for _, k := range keys {
		require.NoError(t, m2.Delete(k))
	}

	h2, changes2 := rootHandle(t, arena, m2)
	require.Nil(t, h2)
	require.Equal(t, wirenode.EmptyRootHash, changes2.NewRoot)
}

// TestGetOnEmptyTrie confirms Get against a nil root reports "not found"
// rather than erroring.
func TestGetOnEmptyTrie(t *testing.T) {
	_, arena := openEmpty(t)
	_, ok, err := Get(arena, nil, []byte("anything"))
	require.NoError(t, err)
	require.False(t, ok)
}
