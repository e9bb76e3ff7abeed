package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/redis/go-redis/v9"
)

// addRecord resolves the client and directory and stores the record built by mk,
// all under WATCH of the client and path hashes.
func (r *redisStore) addRecord(ctx context.Context, address, path, key, seq string, mk func(id, clientID, dirID uint64) any) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		var client entity.Client
		if err := hgetJSON(ctx, tx, r.key(KeyClients), address, &client); err != nil {
			if errors.Is(err, redis.Nil) {
				return common.ErrUnknownClient
			}

			return err
		}

		idStr, err := tx.HGet(ctx, r.key(KeyDirectoryPaths), path).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return common.ErrUnknownDirectory
			}

			return err
		}

		dirID, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid directory id %q: %w", idStr, err)
		}

		id, err := r.nextID(ctx, tx, seq)
		if err != nil {
			return err
		}
		rec := mk(id, client.ID, dirID)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key(key), strconv.FormatUint(id, 10), mustJSON(rec))

			return nil
		})

		return err
	}, r.key(KeyClients), r.key(KeyDirectoryPaths))
}

func (r *redisStore) AddDownload(ctx context.Context, address, path string, at time.Time) (*entity.DownloadRecord, error) {
	var rec *entity.DownloadRecord

	err := r.addRecord(ctx, address, path, KeyDownloads, SeqDownload, func(id, clientID, dirID uint64) any {
		rec = &entity.DownloadRecord{ID: id, ClientID: clientID, DirectoryID: dirID, Time: at}

		return rec
	})
	if err != nil {
		return nil, fmt.Errorf("cannot add download record: %w", err)
	}

	return rec, nil
}

func (r *redisStore) AddUpload(ctx context.Context, address, path string, at time.Time, fileCount int) (*entity.UploadRecord, error) {
	var rec *entity.UploadRecord

	err := r.addRecord(ctx, address, path, KeyUploads, SeqUpload, func(id, clientID, dirID uint64) any {
		rec = &entity.UploadRecord{ID: id, ClientID: clientID, DirectoryID: dirID, Time: at, FileCount: fileCount}

		return rec
	})
	if err != nil {
		return nil, fmt.Errorf("cannot add upload record: %w", err)
	}

	return rec, nil
}

func (r *redisStore) ListDownloads(ctx context.Context) ([]*entity.DownloadRecord, error) {
	recs, err := hgetAllJSON(ctx, r.cl, r.key(KeyDownloads), func(d *entity.DownloadRecord) uint64 { return d.ID })
	if err != nil {
		return nil, fmt.Errorf("cannot list download records: %w", err)
	}

	return recs, nil
}

func (r *redisStore) ListUploads(ctx context.Context) ([]*entity.UploadRecord, error) {
	recs, err := hgetAllJSON(ctx, r.cl, r.key(KeyUploads), func(u *entity.UploadRecord) uint64 { return u.ID })
	if err != nil {
		return nil, fmt.Errorf("cannot list upload records: %w", err)
	}

	return recs, nil
}

// ResetSession deletes the client and record hashes in one MULTI. Counts are read
// under WATCH, so they match exactly what was deleted.
func (r *redisStore) ResetSession(ctx context.Context) (entity.ResetResult, error) {
	var res entity.ResetResult
	keys := []string{r.key(KeyClients), r.key(KeyDownloads), r.key(KeyUploads)}

	err := r.watch(ctx, func(tx *redis.Tx) error {
		counts := make([]int64, len(keys))
		for i, key := range keys {
			n, err := tx.HLen(ctx, key).Result()
			if err != nil {
				return err
			}
			counts[i] = n
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)

			return nil
		})
		if err != nil {
			return err
		}

		res = entity.ResetResult{Clients: int(counts[0]), Downloads: int(counts[1]), Uploads: int(counts[2])}

		return nil
	}, keys...)
	if err != nil {
		return entity.ResetResult{}, fmt.Errorf("cannot reset session: %w", err)
	}

	return res, nil
}
