package safe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"folio/internal/content"
	"folio/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSafe(t *testing.T, compress bool) (*Safe, string) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)

	root := filepath.Join(t.TempDir(), "objects")
	s, err := New(db, Options{Root: root, CacheSize: 16, Compress: compress})
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return s, root
}

func TestSafe(t *testing.T) {
	s, root := setupTestSafe(t, false)
	var _ content.Store = s

	t.Run("PutGet", func(t *testing.T) {
		hash, err := s.Put([]byte("hello world"))
		require.NoError(t, err)
		assert.Equal(t, utils.HashContent([]byte("hello world")), hash)
		assert.True(t, s.Exists(hash))

		_, err = os.Stat(filepath.Join(root, hash[:2], hash[2:]))
		require.NoError(t, err)

		got, err := s.Get(hash)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(got))
	})

	t.Run("RefCounting", func(t *testing.T) {
		hash, err := s.Put([]byte("shared"))
		require.NoError(t, err)
		_, err = s.Put([]byte("shared"))
		require.NoError(t, err)

		meta, err := s.Meta(hash)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), meta.RefCount)

		require.NoError(t, s.Delete(hash))
		assert.True(t, s.Exists(hash))

		require.NoError(t, s.Delete(hash))
		assert.False(t, s.Exists(hash))
		_, err = s.Get(hash)
		assert.ErrorIs(t, err, ErrContentNotFound)
	})

	t.Run("InvalidHash", func(t *testing.T) {
		_, err := s.Get("nope")
		assert.ErrorIs(t, err, ErrInvalidHash)
		assert.False(t, s.Exists("nope"))
		assert.ErrorIs(t, s.Delete("nope"), ErrInvalidHash)
	})

	t.Run("Verify", func(t *testing.T) {
		hash, err := s.Put([]byte("verify me"))
		require.NoError(t, err)
		require.NoError(t, s.Verify(hash))

		// Corrupt the blob on disk
		require.NoError(t, os.WriteFile(filepath.Join(root, hash[:2], hash[2:]), []byte("tampered"), 0644))
		assert.Error(t, s.Verify(hash))
	})

	t.Run("Batch", func(t *testing.T) {
		hashes, err := s.PutBatch([][]byte{[]byte("one"), []byte("two")})
		require.NoError(t, err)
		require.Len(t, hashes, 2)

		blobs, err := s.GetBatch(hashes)
		require.NoError(t, err)
		assert.Equal(t, "one", string(blobs[0]))
		assert.Equal(t, "two", string(blobs[1]))
	})
}

func TestSafeCompression(t *testing.T) {
	s, _ := setupTestSafe(t, true)

	large := bytes.Repeat([]byte("compressible line of text\n"), 500)
	hash, err := s.Put(large)
	require.NoError(t, err)

	meta, err := s.Meta(hash)
	require.NoError(t, err)
	assert.True(t, meta.Compressed)
	assert.Less(t, meta.StoredSize, meta.Size)

	// Bypass the cache so the blob is decoded from disk
	s.cache.Purge()
	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, large, got)

	small, err := s.Put([]byte("tiny"))
	require.NoError(t, err)
	meta, err = s.Meta(small)
	require.NoError(t, err)
	assert.False(t, meta.Compressed)
}

func TestShouldCompress(t *testing.T) {
	cm, err := newCompressionManager(DefaultCompressionOptions())
	require.NoError(t, err)
	defer cm.close()

	assert.False(t, cm.shouldCompress([]byte("short")))
	assert.True(t, cm.shouldCompress(bytes.Repeat([]byte("a"), 2048)))

	png := append([]byte{0x89, 0x50, 0x4E, 0x47}, bytes.Repeat([]byte{0}, 2048)...)
	assert.False(t, cm.shouldCompress(png))
}
