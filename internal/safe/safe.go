// internal/safe/safe.go
package safe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"folio/internal/content"
	"folio/shared/utils"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrContentNotFound = content.ErrContentNotFound
	ErrInvalidHash     = errors.New("invalid content hash")
)

const metaPrefix = "content:"

// ContentMeta stores metadata about stored content
type ContentMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	RefCount   uint32    `json:"ref_count"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

// Safe provides deduplicated content storage: blobs on disk, metadata in
// badger, hot blobs in an LRU cache.
type Safe struct {
	root        string                     // Root directory for content files
	db          *badger.DB                 // Metadata database
	cache       *lru.Cache[string, []byte] // Content cache
	mu          sync.Mutex                 // Serializes writers (ref counts)
	compression *compressionManager
	compress    bool // Compress new blobs; reads always decode
}

// Options configures Safe behavior
type Options struct {
	Root        string // Root directory path
	CacheSize   int    // Number of items to cache
	Compress    bool   // Compress blobs with zstd
	Compression CompressionOptions
}

// New creates a new Safe instance
func New(db *badger.DB, opts Options) (*Safe, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if db == nil {
		return nil, fmt.Errorf("metadata database is required")
	}

	// Create content directory if it doesn't exist
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	// Use reasonable defaults
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	if opts.Compression.Level == 0 {
		opts.Compression = DefaultCompressionOptions()
	}
	cm, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compression manager: %w", err)
	}

	return &Safe{
		root:        opts.Root,
		db:          db,
		cache:       cache,
		compression: cm,
		compress:    opts.Compress,
	}, nil
}

// Put saves content and returns its hash
func (s *Safe) Put(data []byte) (string, error) {
	if data == nil {
		data = []byte{} // Convert nil to empty slice
	}

	hash := utils.HashContent(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.getMeta(hash)
	switch {
	case err == nil:
		// Already stored: increment reference count
		meta.RefCount++
		if err := s.storeMeta(meta); err != nil {
			return "", fmt.Errorf("incrementing ref count: %w", err)
		}
		return hash, nil
	case !errors.Is(err, ErrContentNotFound):
		return "", fmt.Errorf("checking existence: %w", err)
	}

	stored := data
	compressed := false
	if s.compress && s.compression.shouldCompress(data) {
		out, err := s.compression.compress(data)
		if err != nil {
			return "", fmt.Errorf("compressing content: %w", err)
		}
		if len(out) < len(data) {
			stored, compressed = out, true
		}
	}

	contentPath := s.contentPath(hash)
	if err := os.MkdirAll(filepath.Dir(contentPath), 0755); err != nil {
		return "", fmt.Errorf("creating content directory: %w", err)
	}
	if err := os.WriteFile(contentPath, stored, 0644); err != nil {
		return "", fmt.Errorf("writing content file: %w", err)
	}

	now := time.Now()
	meta = ContentMeta{
		Hash:       hash,
		Size:       int64(len(data)),
		StoredSize: int64(len(stored)),
		RefCount:   1,
		Compressed: compressed,
		CreatedAt:  now,
		AccessedAt: now,
	}

	if err := s.storeMeta(meta); err != nil {
		// Cleanup on failure
		os.Remove(contentPath)
		return "", fmt.Errorf("storing metadata: %w", err)
	}

	s.cache.Add(hash, data)

	return hash, nil
}

// Get retrieves content by hash
func (s *Safe) Get(hash string) ([]byte, error) {
	if !utils.IsHash(hash) {
		return nil, ErrInvalidHash
	}

	// Check cache first
	if data, ok := s.cache.Get(hash); ok {
		return data, nil
	}

	meta, err := s.getMeta(hash)
	if err != nil {
		return nil, fmt.Errorf("getting metadata: %w", err)
	}

	data, err := os.ReadFile(s.contentPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}

	if meta.Compressed {
		data, err = s.compression.decompress(data)
		if err != nil {
			return nil, fmt.Errorf("decompressing content: %w", err)
		}
	}

	if utils.HashContent(data) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}

	s.cache.Add(hash, data)
	return data, nil
}

// Delete decrements the reference count and removes the blob at zero
func (s *Safe) Delete(hash string) error {
	if !utils.IsHash(hash) {
		return ErrInvalidHash
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.getMeta(hash)
	if err != nil {
		return fmt.Errorf("getting metadata: %w", err)
	}

	meta.RefCount--
	if meta.RefCount > 0 {
		if err := s.storeMeta(meta); err != nil {
			return fmt.Errorf("updating metadata: %w", err)
		}
		return nil
	}

	if err := os.Remove(s.contentPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing content file: %w", err)
	}
	if err := s.deleteMeta(hash); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	s.cache.Remove(hash)
	return nil
}

// Exists checks if content exists
func (s *Safe) Exists(hash string) bool {
	if !utils.IsHash(hash) {
		return false
	}
	if s.cache.Contains(hash) {
		return true
	}
	_, err := s.getMeta(hash)
	return err == nil
}

// Meta returns the stored metadata for hash
func (s *Safe) Meta(hash string) (ContentMeta, error) {
	if !utils.IsHash(hash) {
		return ContentMeta{}, ErrInvalidHash
	}
	return s.getMeta(hash)
}

// Verify re-reads content from disk and checks its hash
func (s *Safe) Verify(hash string) error {
	s.cache.Remove(hash)
	_, err := s.Get(hash)
	return err
}

// PutBatch stores multiple blobs, undoing the ones it stored if any fails
func (s *Safe) PutBatch(blobs [][]byte) ([]string, error) {
	hashes := make([]string, len(blobs))
	for i, blob := range blobs {
		hash, err := s.Put(blob)
		if err != nil {
			for j := 0; j < i; j++ {
				s.Delete(hashes[j])
			}
			return nil, fmt.Errorf("storing content %d: %w", i, err)
		}
		hashes[i] = hash
	}
	return hashes, nil
}

// GetBatch retrieves multiple content items
func (s *Safe) GetBatch(hashes []string) ([][]byte, error) {
	blobs := make([][]byte, len(hashes))
	for i, hash := range hashes {
		data, err := s.Get(hash)
		if err != nil {
			return nil, fmt.Errorf("getting content %s: %w", hash, err)
		}
		blobs[i] = data
	}
	return blobs, nil
}

// Close releases pooled encoders
func (s *Safe) Close() {
	s.compression.close()
}

// Internal helper functions

func (s *Safe) contentPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func (s *Safe) storeMeta(meta ContentMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaPrefix+meta.Hash), data)
	})
}

func (s *Safe) getMeta(hash string) (ContentMeta, error) {
	var meta ContentMeta

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + hash))
		if err == badger.ErrKeyNotFound {
			return ErrContentNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})

	return meta, err
}

func (s *Safe) deleteMeta(hash string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(metaPrefix + hash))
	})
}
