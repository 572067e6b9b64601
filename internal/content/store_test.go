package content

import (
	"os"
	"path/filepath"
	"testing"

	"folio/shared/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "objects")
	store, err := NewFileStore(root)
	require.NoError(t, err)

	var _ Store = store

	t.Run("PutGet", func(t *testing.T) {
		hash, err := store.Put([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, utils.HashContent([]byte("hello")), hash)
		assert.True(t, store.Exists(hash))

		_, err = os.Stat(filepath.Join(root, hash[:2], hash[2:]))
		require.NoError(t, err)

		got, err := store.Get(hash)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		hash, err := store.Put(nil)
		require.NoError(t, err)
		got, err := store.Get(hash)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ReadFromDiskWithoutCache", func(t *testing.T) {
		hash, err := store.Put([]byte("persisted"))
		require.NoError(t, err)

		reopened, err := NewFileStore(root)
		require.NoError(t, err)
		got, err := reopened.Get(hash)
		require.NoError(t, err)
		assert.Equal(t, "persisted", string(got))
	})

	t.Run("Missing", func(t *testing.T) {
		missing := utils.HashContent([]byte("never stored"))
		assert.False(t, store.Exists(missing))
		_, err := store.Get(missing)
		assert.ErrorIs(t, err, ErrContentNotFound)

		_, err = store.Get("not-a-hash")
		assert.Error(t, err)
		assert.False(t, store.Exists("not-a-hash"))
	})
}
