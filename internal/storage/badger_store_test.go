package storage

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntity struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (e *testEntity) GetID() string { return e.ID }

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStore(db, "thing")
	other := NewBadgerStore(db, "other")

	t.Run("Create", func(t *testing.T) {
		require.NoError(t, store.Create(&testEntity{ID: "a", Value: "1"}))

		err := store.Create(&testEntity{ID: "a", Value: "2"})
		assert.ErrorIs(t, err, ErrExists)

		assert.Error(t, store.Create(&testEntity{}))
	})

	t.Run("Get", func(t *testing.T) {
		var got testEntity
		require.NoError(t, store.Get("a", &got))
		assert.Equal(t, "1", got.Value)

		err := store.Get("missing", &got)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutAndUpdate", func(t *testing.T) {
		require.NoError(t, store.Put(&testEntity{ID: "b", Value: "x"}))
		require.NoError(t, store.Put(&testEntity{ID: "b", Value: "y"}))
		require.NoError(t, store.Update(&testEntity{ID: "b", Value: "z"}))

		var got testEntity
		require.NoError(t, store.Get("b", &got))
		assert.Equal(t, "z", got.Value)

		assert.ErrorIs(t, store.Update(&testEntity{ID: "nope"}), ErrNotFound)
	})

	t.Run("PrefixIsolation", func(t *testing.T) {
		require.NoError(t, other.Put(&testEntity{ID: "a", Value: "other"}))

		ids, err := store.IDs()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)

		var all []testEntity
		require.NoError(t, store.List(&all))
		assert.Len(t, all, 2)

		ok, err := other.Exists("a")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = other.Exists("b")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Match", func(t *testing.T) {
		require.NoError(t, store.Put(&testEntity{ID: "abc1", Value: "m"}))
		require.NoError(t, store.Put(&testEntity{ID: "abd2", Value: "m"}))

		ids, err := store.Match("ab")
		require.NoError(t, err)
		assert.Equal(t, []string{"abc1", "abd2"}, ids)

		ids, err = store.Match("abc")
		require.NoError(t, err)
		assert.Equal(t, []string{"abc1"}, ids)

		ids, err = store.Match("zz")
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, store.Delete("abc1"))
		require.NoError(t, store.Delete("abd2"))
	})

	t.Run("TxnRollback", func(t *testing.T) {
		err := db.Update(func(txn *badger.Txn) error {
			require.NoError(t, store.PutTxn(txn, &testEntity{ID: "c", Value: "tx"}))
			require.NoError(t, other.DeleteTxn(txn, "a"))
			return ErrNotFound // abort
		})
		require.Error(t, err)

		ok, err := store.Exists("c")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = other.Exists("a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete("a"))
		assert.ErrorIs(t, store.Delete("a"), ErrNotFound)
	})

	t.Run("EmptyList", func(t *testing.T) {
		var none []testEntity
		require.NoError(t, NewBadgerStore(db, "empty").List(&none))
		assert.Empty(t, none)
	})
}
