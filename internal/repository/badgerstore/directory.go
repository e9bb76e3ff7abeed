package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
)

// InsertDirectory registers path with ModeNotShared unless it is already registered.
// It returns the stored row and whether it was created by this call.
func (s *badgerStore) InsertDirectory(ctx context.Context, path string) (*entity.Directory, bool, error) {
	var (
		dir     entity.Directory
		created bool
	)

	err := s.update(ctx, func(txn *badger.Txn) error {
		id, err := getID(txn, keyDirectoryPath(path))
		switch {
		case err == nil:
			return getJSON(txn, keyDirectory(id), &dir)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		id, err = nextID(txn, seqDirectory)
		if err != nil {
			return err
		}

		dir = entity.Directory{ID: id, Path: path, Mode: entity.ModeNotShared}
		if err := setJSON(txn, keyDirectory(id), &dir); err != nil {
			return err
		}
		if err := txn.Set(keyDirectoryPath(path), []byte(strconv.FormatUint(id, 10))); err != nil {
			return err
		}
		created = true

		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cannot insert directory %s: %w", path, err)
	}

	return &dir, created, nil
}

func (s *badgerStore) ListDirectories(ctx context.Context) ([]*entity.Directory, error) {
	var dirs []*entity.Directory

	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, prefixDirectory, func(val []byte) error {
			var dir entity.Directory
			if err := json.Unmarshal(val, &dir); err != nil {
				return err
			}
			dirs = append(dirs, &dir)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cannot list directories: %w", err)
	}

	return dirs, nil
}

func (s *badgerStore) GetDirectory(ctx context.Context, id uint64) (*entity.Directory, error) {
	var dir entity.Directory

	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, keyDirectory(id), &dir)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot get directory %d: %w", id, err)
	}

	return &dir, nil
}

func (s *badgerStore) GetDirectoryByPath(ctx context.Context, path string) (*entity.Directory, error) {
	var dir entity.Directory

	err := s.view(ctx, func(txn *badger.Txn) error {
		id, err := getID(txn, keyDirectoryPath(path))
		if err != nil {
			return err
		}

		return getJSON(txn, keyDirectory(id), &dir)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot get directory %s: %w", path, err)
	}

	return &dir, nil
}

func (s *badgerStore) UpdateDirectoryMode(ctx context.Context, id uint64, mode entity.ShareMode) (*entity.Directory, error) {
	var dir entity.Directory

	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, keyDirectory(id), &dir); err != nil {
			return err
		}
		dir.Mode = mode

		return setJSON(txn, keyDirectory(id), &dir)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot update directory %d: %w", id, err)
	}

	return &dir, nil
}
