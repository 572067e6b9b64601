// internal/branch/storage/store.go
package storage

import (
	"fmt"
	"sort"
	"time"

	"folio/internal/branch"
	"folio/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

const headID = "HEAD"

// Store handles branch, remote ref and HEAD storage operations
type Store struct {
	branches *storage.BadgerStore
	remotes  *storage.BadgerStore
	meta     *storage.BadgerStore
	now      func() time.Time
}

var _ branch.Box = (*Store)(nil)

// NewStore creates a new branch store
func NewStore(db *badger.DB) *Store {
	return &Store{
		branches: storage.NewBadgerStore(db, "branch"),
		remotes:  storage.NewBadgerStore(db, "remote"),
		meta:     storage.NewBadgerStore(db, "meta"),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

type branchEntity struct {
	*branch.Branch
}

func (b *branchEntity) GetID() string {
	return b.Name
}

type remoteEntity struct {
	*branch.RemoteRef
}

func (r *remoteEntity) GetID() string {
	return r.Name
}

type headEntity struct {
	ID string `json:"id"`
	branch.Head
}

func (h *headEntity) GetID() string {
	return h.ID
}

func validate(b *branch.Branch) error {
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// stamp fills timestamps and drops fields that are only computed on read
func (s *Store) stamp(b *branch.Branch) *branch.Branch {
	stored := *b
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Current = false
	stored.Ahead, stored.Behind = 0, 0
	return &stored
}

// Create stores a new branch, failing with storage.ErrExists on a duplicate
func (s *Store) Create(b *branch.Branch) error {
	return s.branches.DB().Update(func(txn *badger.Txn) error {
		return s.CreateTxn(txn, b)
	})
}

func (s *Store) CreateTxn(txn *badger.Txn, b *branch.Branch) error {
	if err := validate(b); err != nil {
		return fmt.Errorf("invalid branch: %w", err)
	}
	return s.branches.CreateTxn(txn, &branchEntity{Branch: s.stamp(b)})
}

// Get retrieves a branch by name
func (s *Store) Get(name string) (*branch.Branch, error) {
	entity := branchEntity{Branch: &branch.Branch{}}
	if err := s.branches.Get(name, &entity); err != nil {
		return nil, fmt.Errorf("getting branch: %w", err)
	}
	return entity.Branch, nil
}

func (s *Store) GetTxn(txn *badger.Txn, name string) (*branch.Branch, error) {
	entity := branchEntity{Branch: &branch.Branch{}}
	if err := s.branches.GetTxn(txn, name, &entity); err != nil {
		return nil, fmt.Errorf("getting branch: %w", err)
	}
	return entity.Branch, nil
}

// Put inserts or replaces a branch
func (s *Store) Put(b *branch.Branch) error {
	return s.branches.DB().Update(func(txn *badger.Txn) error {
		return s.PutTxn(txn, b)
	})
}

func (s *Store) PutTxn(txn *badger.Txn, b *branch.Branch) error {
	if err := validate(b); err != nil {
		return fmt.Errorf("invalid branch: %w", err)
	}
	return s.branches.PutTxn(txn, &branchEntity{Branch: s.stamp(b)})
}

// Delete removes a branch by name
func (s *Store) Delete(name string) error {
	return s.branches.Delete(name)
}

// List returns all branches sorted by name
func (s *Store) List() ([]*branch.Branch, error) {
	var entities []branch.Branch
	if err := s.branches.List(&entities); err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	branches := make([]*branch.Branch, len(entities))
	for i := range entities {
		branches[i] = &entities[i]
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// GetHead returns the stored HEAD. A repository always has one once
// initialized; storage.ErrNotFound otherwise.
func (s *Store) GetHead() (branch.Head, error) {
	var entity headEntity
	if err := s.meta.Get(headID, &entity); err != nil {
		return branch.Head{}, fmt.Errorf("getting HEAD: %w", err)
	}
	return entity.Head, nil
}

func (s *Store) GetHeadTxn(txn *badger.Txn) (branch.Head, error) {
	var entity headEntity
	if err := s.meta.GetTxn(txn, headID, &entity); err != nil {
		return branch.Head{}, fmt.Errorf("getting HEAD: %w", err)
	}
	return entity.Head, nil
}

func (s *Store) SetHead(h branch.Head) error {
	return s.meta.DB().Update(func(txn *badger.Txn) error {
		return s.SetHeadTxn(txn, h)
	})
}

func (s *Store) SetHeadTxn(txn *badger.Txn, h branch.Head) error {
	if h.Branch == "" && h.Detached == "" {
		return fmt.Errorf("HEAD needs a branch or a commit")
	}
	return s.meta.PutTxn(txn, &headEntity{ID: headID, Head: h})
}

// PutRemote records a remote-tracking ref
func (s *Store) PutRemote(r *branch.RemoteRef) error {
	return s.remotes.DB().Update(func(txn *badger.Txn) error {
		return s.PutRemoteTxn(txn, r)
	})
}

func (s *Store) PutRemoteTxn(txn *badger.Txn, r *branch.RemoteRef) error {
	if r.Name == "" {
		return fmt.Errorf("invalid remote ref: name is required")
	}
	if r.FetchedAt.IsZero() {
		r.FetchedAt = s.now()
	}
	return s.remotes.PutTxn(txn, &remoteEntity{RemoteRef: r})
}

func (s *Store) GetRemote(name string) (*branch.RemoteRef, error) {
	entity := remoteEntity{RemoteRef: &branch.RemoteRef{}}
	if err := s.remotes.Get(name, &entity); err != nil {
		return nil, fmt.Errorf("getting remote ref: %w", err)
	}
	return entity.RemoteRef, nil
}

// ListRemotes returns all remote-tracking refs sorted by name
func (s *Store) ListRemotes() ([]*branch.RemoteRef, error) {
	var entities []branch.RemoteRef
	if err := s.remotes.List(&entities); err != nil {
		return nil, fmt.Errorf("listing remote refs: %w", err)
	}

	refs := make([]*branch.RemoteRef, len(entities))
	for i := range entities {
		refs[i] = &entities[i]
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}
