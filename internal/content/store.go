// internal/content/store.go
package content

import (
	"fmt"
	"os"
	"path/filepath"

	"folio/shared/utils"
)

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating content store directory: %w", err)
	}

	return &FileStore{
		root:  root,
		cache: make(map[string][]byte),
	}, nil
}

// Put stores content and returns its hash
func (s *FileStore) Put(content []byte) (string, error) {
	// Allow empty content (empty files are valid)
	if content == nil {
		content = []byte{}
	}

	hash := utils.HashContent(content)

	path := s.path(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating content directory: %w", err)
	}

	// Write content if it doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, content, 0644); err != nil {
			return "", fmt.Errorf("writing content: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return "", fmt.Errorf("writing content: %w", err)
		}
	}

	s.mu.Lock()
	s.cache[hash] = content
	s.mu.Unlock()

	return hash, nil
}

func (s *FileStore) Get(hash string) ([]byte, error) {
	if !utils.IsHash(hash) {
		return nil, fmt.Errorf("invalid content hash %q", hash)
	}

	s.mu.RLock()
	cached, ok := s.cache[hash]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	contentBytes, err := os.ReadFile(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if utils.HashContent(contentBytes) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}
	return contentBytes, nil
}

// Exists checks if content exists
func (s *FileStore) Exists(hash string) bool {
	if !utils.IsHash(hash) {
		return false
	}

	// Check cache first
	s.mu.RLock()
	_, ok := s.cache[hash]
	s.mu.RUnlock()
	if ok {
		return true
	}

	_, err := os.Stat(s.path(hash))
	return err == nil
}

func (s *FileStore) path(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}
