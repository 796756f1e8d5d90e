package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"klubstake/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("key"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	require.True(t, tr.Dirty())
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)
	require.False(t, tr.Dirty())

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieRollbackDiscardsUncommitted(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	committed := crypto.Keccak256Hash([]byte("committed"))
	require.NoError(t, tr.Update(committed.Bytes(), []byte("kept")))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	speculative := crypto.Keccak256Hash([]byte("speculative"))
	require.NoError(t, tr.Update(speculative.Bytes(), []byte("dropped")))
	require.NoError(t, tr.Update(committed.Bytes(), []byte("overwritten")))
	require.True(t, tr.Dirty())

	require.NoError(t, tr.Rollback())
	require.False(t, tr.Dirty())
	require.Equal(t, root, tr.Root())

	got, err := tr.Get(speculative.Bytes())
	require.NoError(t, err)
	require.Empty(t, got)
	got, err = tr.Get(committed.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), got)
}
