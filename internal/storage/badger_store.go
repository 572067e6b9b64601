// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// BadgerStore provides generic JSON storage for one key prefix
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

// DB exposes the underlying database so callers can group writes from
// several stores into one transaction.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), fmt.Sprintf("%s:", s.prefix))
}

func (s *BadgerStore) Create(entity Entity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.CreateTxn(txn, entity)
	})
}

// CreateTxn inserts entity inside txn, failing if the ID is taken
func (s *BadgerStore) CreateTxn(txn *badger.Txn, entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	key := s.makeKey(entity.GetID())
	_, err := txn.Get(key)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExists, entity.GetID())
	} else if err != badger.ErrKeyNotFound {
		return err
	}

	return s.setTxn(txn, key, entity)
}

// Put inserts or replaces entity
func (s *BadgerStore) Put(entity Entity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.PutTxn(txn, entity)
	})
}

func (s *BadgerStore) PutTxn(txn *badger.Txn, entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}
	return s.setTxn(txn, s.makeKey(entity.GetID()), entity)
}

func (s *BadgerStore) setTxn(txn *badger.Txn, key []byte, entity Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}
	return txn.Set(key, data)
}

func (s *BadgerStore) Get(id string, entity Entity) error {
	return s.db.View(func(txn *badger.Txn) error {
		return s.GetTxn(txn, id, entity)
	})
}

func (s *BadgerStore) GetTxn(txn *badger.Txn, id string, entity Entity) error {
	item, err := txn.Get(s.makeKey(id))
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, entity)
	})
}

func (s *BadgerStore) Exists(id string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.makeKey(id))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) Update(entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	key := s.makeKey(entity.GetID())
	return s.db.Update(func(txn *badger.Txn) error {
		// Check if exists
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, entity.GetID())
		} else if err != nil {
			return err
		}

		return s.setTxn(txn, key, entity)
	})
}

func (s *BadgerStore) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.DeleteTxn(txn, id)
	})
}

func (s *BadgerStore) DeleteTxn(txn *badger.Txn, id string) error {
	key := s.makeKey(id)

	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return err
	}

	return txn.Delete(key)
}

// IDs returns every ID stored under the prefix, in key order
func (s *BadgerStore) IDs() ([]string, error) {
	return s.Match("")
}

// Match returns the IDs that start with idPrefix, in key order
func (s *BadgerStore) Match(idPrefix string) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(s.prefix + ":" + idPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, s.stripPrefix(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	return ids, nil
}

// List decodes every entity under the prefix into results, which must be a
// pointer to a slice.
func (s *BadgerStore) List(results interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(s.prefix + ":")
		values := []json.RawMessage{}

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				values = append(values, append([]byte(nil), val...))
				return nil
			})
			if err != nil {
				return err
			}
		}

		// Marshal collected values into final result
		data, err := json.Marshal(values)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, results)
	})

	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return nil
}
