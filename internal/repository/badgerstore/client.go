package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
)

func (s *badgerStore) CreateClient(ctx context.Context, address, label string, now time.Time) (*entity.Client, error) {
	var client entity.Client

	err := s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(keyClient(address))
		switch {
		case err == nil:
			return common.ErrAlreadyIdentified
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		id, err := nextID(txn, seqClient)
		if err != nil {
			return err
		}

		client = entity.Client{
			ID:       id,
			Address:  address,
			Label:    label,
			LastSeen: now,
			Active:   true,
		}

		return setJSON(txn, keyClient(address), &client)
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyIdentified) {
			return nil, err
		}

		return nil, fmt.Errorf("cannot create client %s: %w", address, err)
	}

	return &client, nil
}

func (s *badgerStore) GetClient(ctx context.Context, address string) (*entity.Client, error) {
	var client entity.Client

	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, keyClient(address), &client)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot get client %s: %w", address, err)
	}

	return &client, nil
}

func (s *badgerStore) ListClients(ctx context.Context) ([]*entity.Client, error) {
	var clients []*entity.Client

	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, prefixClient, func(val []byte) error {
			var client entity.Client
			if err := json.Unmarshal(val, &client); err != nil {
				return err
			}
			clients = append(clients, &client)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cannot list clients: %w", err)
	}

	return clients, nil
}

// SetClientState sets the active flag of a client. A zero seen keeps LastSeen.
func (s *badgerStore) SetClientState(ctx context.Context, address string, active bool, seen time.Time) (*entity.Client, error) {
	var client entity.Client

	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, keyClient(address), &client); err != nil {
			return err
		}

		client.Active = active
		if !seen.IsZero() {
			client.LastSeen = seen
		}

		return setJSON(txn, keyClient(address), &client)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot update client %s: %w", address, err)
	}

	return &client, nil
}
