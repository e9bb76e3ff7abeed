package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// Config is decoded from the store.badger section of the configuration.
type Config struct {
	// Path is the directory where BadgerDB keeps its files.
	Path string `mapstructure:"path"`

	// InMemory keeps everything in memory, nothing survives Close. Used by tests.
	InMemory bool `mapstructure:"in_memory"`

	// MemTableSize and ValueThreshold override the badger defaults when set.
	// The memtable size also bounds how many writes fit in one transaction.
	MemTableSize   int64 `mapstructure:"mem_table_size"`
	ValueThreshold int64 `mapstructure:"value_threshold"`
}

// badgerStore is the registry store backed by an embedded BadgerDB.
//
// Reads run in db.View transactions without locking (BadgerDB is MVCC).
// Writes run in db.Update transactions serialized by mu, so every operation is
// applied atomically and concurrent writers never hit badger.ErrConflict.
type badgerStore struct {
	db  *badger.DB
	mu  sync.Mutex
	log *slog.Logger
}

func NewBadgerStore(cfg Config, log *slog.Logger) (*badgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger store: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	if cfg.MemTableSize > 0 {
		opts = opts.WithMemTableSize(cfg.MemTableSize)
	}
	if cfg.ValueThreshold > 0 {
		opts = opts.WithValueThreshold(cfg.ValueThreshold)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cannot open badger db at %s: %w", cfg.Path, err)
	}

	return &badgerStore{
		db:  db,
		log: log.With(slog.String("item", "BadgerStore")),
	}, nil
}

func (s *badgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("cannot close badger db: %w", err)
	}

	return nil
}

func (s *badgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(fn)
}

func (s *badgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(fn)
}

// nextID increments the sequence of kind inside txn.
func nextID(txn *badger.Txn, kind string) (uint64, error) {
	var current uint64

	item, err := txn.Get(keySequence(kind))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, fmt.Errorf("cannot get %s sequence: %w", kind, err)
	default:
		if err := item.Value(func(val []byte) error {
			v, decodeErr := decodeUint64(val)
			current = v

			return decodeErr
		}); err != nil {
			return 0, fmt.Errorf("cannot decode %s sequence: %w", kind, err)
		}
	}

	current++
	if err := txn.Set(keySequence(kind), encodeUint64(current)); err != nil {
		return 0, fmt.Errorf("cannot set %s sequence: %w", kind, err)
	}

	return current, nil
}

// getJSON decodes the value at key into v. It returns badger.ErrKeyNotFound untouched.
func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot marshal value: %w", err)
	}

	return txn.Set(key, data)
}

func getID(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err != nil {
		return 0, err
	}

	var id uint64
	err = item.Value(func(val []byte) error {
		v, parseErr := strconv.ParseUint(string(val), 10, 64)
		id = v

		return parseErr
	})

	return id, err
}

// scanJSON calls fn for every value under prefix, in key order.
func scanJSON(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}

	return nil
}

// deletePrefix removes every key under prefix and returns how many were removed.
// The deletes are committed in as many transactions as badger allows, so the
// caller must hold mu to keep other writers out.
func (s *badgerStore) deletePrefix(prefix string) (int, error) {
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cannot list keys %s: %w", prefix, err)
	}

	txn := s.db.NewTransaction(true)
	defer func() {
		txn.Discard()
	}()

	for _, key := range keys {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return 0, fmt.Errorf("cannot commit delete batch: %w", err)
			}
			txn = s.db.NewTransaction(true)
			err = txn.Delete(key)
		}
		if err != nil {
			return 0, fmt.Errorf("cannot delete key %s: %w", key, err)
		}
	}

	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("cannot commit delete batch: %w", err)
	}

	return len(keys), nil
}
