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

// resolveRefs loads the client and directory ids a transfer record points to.
func resolveRefs(txn *badger.Txn, address, path string) (uint64, uint64, error) {
	var client entity.Client
	if err := getJSON(txn, keyClient(address), &client); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, 0, common.ErrUnknownClient
		}

		return 0, 0, err
	}

	dirID, err := getID(txn, keyDirectoryPath(path))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, 0, common.ErrUnknownDirectory
		}

		return 0, 0, err
	}

	return client.ID, dirID, nil
}

func (s *badgerStore) AddDownload(ctx context.Context, address, path string, at time.Time) (*entity.DownloadRecord, error) {
	var rec entity.DownloadRecord

	err := s.update(ctx, func(txn *badger.Txn) error {
		clientID, dirID, err := resolveRefs(txn, address, path)
		if err != nil {
			return err
		}

		id, err := nextID(txn, seqDownload)
		if err != nil {
			return err
		}

		rec = entity.DownloadRecord{ID: id, ClientID: clientID, DirectoryID: dirID, Time: at}

		return setJSON(txn, keyDownload(id), &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("cannot add download record: %w", err)
	}

	return &rec, nil
}

func (s *badgerStore) AddUpload(ctx context.Context, address, path string, at time.Time, fileCount int) (*entity.UploadRecord, error) {
	var rec entity.UploadRecord

	err := s.update(ctx, func(txn *badger.Txn) error {
		clientID, dirID, err := resolveRefs(txn, address, path)
		if err != nil {
			return err
		}

		id, err := nextID(txn, seqUpload)
		if err != nil {
			return err
		}

		rec = entity.UploadRecord{ID: id, ClientID: clientID, DirectoryID: dirID, Time: at, FileCount: fileCount}

		return setJSON(txn, keyUpload(id), &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("cannot add upload record: %w", err)
	}

	return &rec, nil
}

func (s *badgerStore) ListDownloads(ctx context.Context) ([]*entity.DownloadRecord, error) {
	var recs []*entity.DownloadRecord

	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, prefixDownload, func(val []byte) error {
			var rec entity.DownloadRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cannot list download records: %w", err)
	}

	return recs, nil
}

func (s *badgerStore) ListUploads(ctx context.Context) ([]*entity.UploadRecord, error) {
	var recs []*entity.UploadRecord

	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, prefixUpload, func(val []byte) error {
			var rec entity.UploadRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cannot list upload records: %w", err)
	}

	return recs, nil
}

// ResetSession drops every client and transfer record. Directories are kept.
// Sequences are kept so ids are never reused. Writers are held off for the whole
// reset, records go before clients so no record outlives its client.
func (s *badgerStore) ResetSession(ctx context.Context) (entity.ResetResult, error) {
	if err := ctx.Err(); err != nil {
		return entity.ResetResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res entity.ResetResult
	steps := []struct {
		prefix string
		count  *int
	}{
		{prefix: prefixDownload, count: &res.Downloads},
		{prefix: prefixUpload, count: &res.Uploads},
		{prefix: prefixClient, count: &res.Clients},
	}

	for _, step := range steps {
		n, err := s.deletePrefix(step.prefix)
		if err != nil {
			return entity.ResetResult{}, fmt.Errorf("cannot reset session: %w", err)
		}
		*step.count = n
	}

	return res, nil
}
