package content

import (
	"errors"
	"sync"
)

var ErrContentNotFound = errors.New("content not found")

// Store is the content-addressable blob store the repository core writes
// file contents to. Hashes are lower-case hex SHA-256 of the raw bytes.
type Store interface {
	Put(content []byte) (string, error)
	Get(hash string) ([]byte, error)
	Exists(hash string) bool
}

// FileStore keeps blobs as plain files fanned out by hash prefix. It has no
// metadata database, which makes it the store of choice for throwaway
// repositories.
type FileStore struct {
	root  string
	cache map[string][]byte
	mu    sync.RWMutex // Protects cache
}
