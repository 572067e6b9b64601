// internal/commit/storage/store.go
package storage

import (
	"errors"
	"fmt"
	"slices"

	"folio/internal/commit"
	"folio/internal/storage"
	"folio/shared/utils"

	"github.com/dgraph-io/badger/v4"
)

// MinPrefixLength is the shortest abbreviated hash Resolve accepts
const MinPrefixLength = 4

var ErrAmbiguous = errors.New("ambiguous commit prefix")

// Store handles commit and tree storage operations
type Store struct {
	commits *storage.BadgerStore
	trees   *storage.BadgerStore
}

var _ commit.Box = (*Store)(nil)

// NewStore creates a new commit store
func NewStore(db *badger.DB) *Store {
	return &Store{
		commits: storage.NewBadgerStore(db, "commit"),
		trees:   storage.NewBadgerStore(db, "tree"),
	}
}

// commitEntity wraps commit.Commit to implement storage.Entity
type commitEntity struct {
	*commit.Commit
}

func (c *commitEntity) GetID() string {
	return c.Hash
}

type treeEntity struct {
	*commit.Tree
}

func (t *treeEntity) GetID() string {
	return t.Hash
}

func validate(c *commit.Commit) error {
	if c.Hash == "" {
		return fmt.Errorf("hash is required")
	}
	if c.Tree == "" {
		return fmt.Errorf("tree is required")
	}
	if !c.Verify() {
		return fmt.Errorf("hash %s does not match content", c.Hash)
	}
	return nil
}

// Get retrieves a commit by full hash
func (s *Store) Get(hash string) (*commit.Commit, error) {
	entity := commitEntity{Commit: &commit.Commit{}}
	if err := s.commits.Get(hash, &entity); err != nil {
		return nil, fmt.Errorf("getting commit: %w", err)
	}
	return entity.Commit, nil
}

func (s *Store) GetTxn(txn *badger.Txn, hash string) (*commit.Commit, error) {
	entity := commitEntity{Commit: &commit.Commit{}}
	if err := s.commits.GetTxn(txn, hash, &entity); err != nil {
		return nil, fmt.Errorf("getting commit: %w", err)
	}
	return entity.Commit, nil
}

// Put stores a sealed commit. Storing the same commit twice is harmless.
func (s *Store) Put(c *commit.Commit) error {
	return s.commits.DB().Update(func(txn *badger.Txn) error {
		return s.PutTxn(txn, c)
	})
}

func (s *Store) PutTxn(txn *badger.Txn, c *commit.Commit) error {
	if err := validate(c); err != nil {
		return fmt.Errorf("invalid commit: %w", err)
	}
	return s.commits.PutTxn(txn, &commitEntity{Commit: c})
}

// GetTree retrieves a tree by hash
func (s *Store) GetTree(hash string) (*commit.Tree, error) {
	entity := treeEntity{Tree: &commit.Tree{}}
	if err := s.trees.Get(hash, &entity); err != nil {
		return nil, fmt.Errorf("getting tree: %w", err)
	}
	if entity.Entries == nil {
		entity.Entries = map[string]string{}
	}
	return entity.Tree, nil
}

func (s *Store) PutTree(t *commit.Tree) error {
	return s.trees.DB().Update(func(txn *badger.Txn) error {
		return s.PutTreeTxn(txn, t)
	})
}

func (s *Store) PutTreeTxn(txn *badger.Txn, t *commit.Tree) error {
	if t.Hash != commit.TreeHash(t.Entries) {
		return fmt.Errorf("invalid tree: hash %s does not match entries", t.Hash)
	}
	return s.trees.PutTxn(txn, &treeEntity{Tree: t})
}

// TreeOf returns the tree of the commit at hash. An empty hash stands for
// the unborn state and yields an empty tree.
func (s *Store) TreeOf(hash string) (*commit.Tree, error) {
	if hash == "" {
		return commit.NewTree(nil), nil
	}
	c, err := s.Get(hash)
	if err != nil {
		return nil, err
	}
	return s.GetTree(c.Tree)
}

// Resolve expands a full hash or a unique prefix of at least
// MinPrefixLength characters. Unknown revisions wrap storage.ErrNotFound.
func (s *Store) Resolve(rev string) (string, error) {
	if utils.IsHash(rev) {
		ok, err := s.commits.Exists(rev)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: %s", storage.ErrNotFound, rev)
		}
		return rev, nil
	}

	if len(rev) < MinPrefixLength || len(rev) > 64 || !isHex(rev) {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, rev)
	}
	matches, err := s.commits.Match(rev)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, rev)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %d commits", ErrAmbiguous, rev, len(matches))
	}
}

func isHex(s string) bool {
	for _, r := range s {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'f') {
			return false
		}
	}
	return true
}

// Log walks history from the given commit, newest first, following every
// parent. A limit <= 0 means no limit.
func (s *Store) Log(from string, limit int) ([]*commit.Commit, error) {
	return s.walk(from, limit, nil)
}

// History is Log restricted to commits that touched one of paths. A path
// matches itself and everything under it when it names a directory.
func (s *Store) History(from string, paths []string, limit int) ([]*commit.Commit, error) {
	if len(paths) == 0 {
		return s.Log(from, limit)
	}
	return s.walk(from, limit, func(c *commit.Commit) bool {
		return c.Touches(paths...)
	})
}

// walk visits history newest first and collects commits accepted by keep
func (s *Store) walk(from string, limit int, keep func(*commit.Commit) bool) ([]*commit.Commit, error) {
	if from == "" {
		return nil, nil
	}

	var out []*commit.Commit
	seen := map[string]bool{from: true}
	var frontier []*commit.Commit

	start, err := s.Get(from)
	if err != nil {
		return nil, err
	}
	frontier = append(frontier, start)

	for len(frontier) > 0 && (limit <= 0 || len(out) < limit) {
		// pop the newest commit; ties fall back to hash order for stability
		idx := 0
		for i, c := range frontier[1:] {
			if newer(c, frontier[idx]) {
				idx = i + 1
			}
		}
		next := frontier[idx]
		frontier = slices.Delete(frontier, idx, idx+1)
		if keep == nil || keep(next) {
			out = append(out, next)
		}

		for _, p := range next.Parents {
			if seen[p] {
				continue
			}
			seen[p] = true
			pc, err := s.Get(p)
			if err != nil {
				return nil, err
			}
			frontier = append(frontier, pc)
		}
	}
	return out, nil
}

func newer(a, b *commit.Commit) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.Hash < b.Hash
}

// Ancestors returns hash and every commit reachable from it
func (s *Store) Ancestors(hash string) (map[string]bool, error) {
	seen := make(map[string]bool)
	if hash == "" {
		return seen, nil
	}

	stack := []string{hash}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true

		c, err := s.Get(h)
		if err != nil {
			return nil, err
		}
		stack = append(stack, c.Parents...)
	}
	return seen, nil
}

// AheadBehind counts the commits reachable from local but not upstream, and
// the reverse.
func (s *Store) AheadBehind(local, upstream string) (ahead, behind int, err error) {
	if local == upstream {
		return 0, 0, nil
	}
	mine, err := s.Ancestors(local)
	if err != nil {
		return 0, 0, err
	}
	theirs, err := s.Ancestors(upstream)
	if err != nil {
		return 0, 0, err
	}

	for h := range mine {
		if !theirs[h] {
			ahead++
		}
	}
	for h := range theirs {
		if !mine[h] {
			behind++
		}
	}
	return ahead, behind, nil
}
