package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBPutGet(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("head"), []byte{0x01, 0x02}))
	got, err := db.Get([]byte("head"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, got)

	ok, err := db.Has([]byte("head"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, db.TrieDB())
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	_, err = db1.Get([]byte("head"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, db1.Put([]byte("head"), []byte("root")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()
	got, err := db2.Get([]byte("head"))
	require.NoError(t, err)
	require.Equal(t, []byte("root"), got)
}

func TestCloseIsIdempotent(t *testing.T) {
	db := NewMemDB()
	db.Close()
	require.NotPanics(t, db.Close)
}
