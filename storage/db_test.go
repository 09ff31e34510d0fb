package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()

	level, err := NewLevelDB(filepath.Join(dir, "level"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = level.Close() })

	bolt, err := NewBoltDB(filepath.Join(dir, "state.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": level,
		"bolt":    bolt,
	}
}

func TestDatabaseBasicOperations(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put([]byte("a"), []byte("1")))
			value, err := db.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("1"), value)

			ok, err := db.Has([]byte("a"))
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, db.Delete([]byte("a")))
			ok, err = db.Has([]byte("a"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDatabaseBatchAndIterate(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("bid/stale"), []byte("x")))

			batch := NewBatch()
			batch.Put([]byte("bid/b"), []byte("2"))
			batch.Put([]byte("bid/a"), []byte("1"))
			batch.Put([]byte("other/z"), []byte("9"))
			batch.Delete([]byte("bid/stale"))
			require.Equal(t, 4, batch.Len())
			require.NoError(t, db.Write(batch))

			var keys []string
			require.NoError(t, db.Iterate([]byte("bid/"), func(key, value []byte) bool {
				keys = append(keys, string(key))
				return true
			}))
			require.Equal(t, []string{"bid/a", "bid/b"}, keys)

			var first []string
			require.NoError(t, db.Iterate([]byte("bid/"), func(key, value []byte) bool {
				first = append(first, string(key))
				return false
			}))
			require.Len(t, first, 1)
		})
	}
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	require.NoError(t, db1.Close())

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestBoltPersistsAcrossClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bolt")
	db, err := NewBoltDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	reopened, err := NewBoltDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}
