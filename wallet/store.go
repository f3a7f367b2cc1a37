package wallet

import (
	"context"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
)

type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, id string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[id] = append([]byte(nil), key...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[id]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), k...), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

const keyPrefix = "did/"

// BadgerStore keeps keys in a badger database directory.
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create wallet directory")
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open wallet at %s", dir)
	}

	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Put(_ context.Context, id string, key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id), key)
	})
}

func (s *BadgerStore) Get(_ context.Context, id string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}

	return value, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
