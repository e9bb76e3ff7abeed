package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyDirectories    = "dir"     // HASH. directory_id: Directory JSON
	KeyDirectoryPaths = "dirpath" // HASH. path: directory_id
	KeyClients        = "cl"      // HASH. address: Client JSON
	KeyDownloads      = "dl"      // HASH. record_id: DownloadRecord JSON
	KeyUploads        = "ul"      // HASH. record_id: UploadRecord JSON
	KeySequences      = "seq"     // HASH. kind: last id. HINCRBY seq kind 1

	SeqDirectory = "directory"
	SeqClient    = "client"
	SeqDownload  = "download"
	SeqUpload    = "upload"

	KeySeparator  = ":"
	DefaultPrefix = "netfshare"

	maxTxRetries = 16
)

// Config is decoded from the store.redis section of the configuration.
type Config struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// redisStore keeps the registry in a handful of hashes. Every operation that reads
// before it writes runs under WATCH on the keys it read, so it is applied atomically
// or retried from scratch when another writer got in between. Client state updates
// compare and set the single client field instead.
type redisStore struct {
	cl     *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisStore(ctx context.Context, cfg Config, log *slog.Logger) (*redisStore, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse redis url: %w", err)
	}

	cl := redis.NewClient(opt)
	if _, err := cl.Ping(ctx).Result(); err != nil {
		_ = cl.Close()

		return nil, fmt.Errorf("cannot ping redis: %w", err)
	}

	return NewRedisStoreWithClient(cl, cfg.Prefix, log), nil
}

func NewRedisStoreWithClient(cl *redis.Client, prefix string, log *slog.Logger) *redisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &redisStore{
		cl:     cl,
		prefix: prefix,
		log:    log.With(slog.String("item", "RedisStore")),
	}
}

func (r *redisStore) Close() error {
	return r.cl.Close()
}

func (r *redisStore) key(name string) string {
	return getKey(r.prefix, name)
}

// watch runs fn under WATCH keys, retrying when the optimistic transaction fails.
func (r *redisStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.cl.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		r.log.Debug("Transaction conflict, retry", slog.Any("keys", keys), slog.Int("attempt", i+1))
	}

	return fmt.Errorf("transaction retries exhausted: %w", redis.TxFailedErr)
}

func (r *redisStore) nextID(ctx context.Context, tx *redis.Tx, kind string) (uint64, error) {
	id, err := tx.HIncrBy(ctx, r.key(KeySequences), kind, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("cannot increment %s sequence: %w", kind, err)
	}

	return uint64(id), nil
}

func hgetJSON(ctx context.Context, c redis.Cmdable, key, field string, v any) error {
	data, err := c.HGet(ctx, key, field).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// entity types always marshal
		panic(err)
	}

	return data
}

func hgetAllJSON[T any](ctx context.Context, cl *redis.Client, key string, id func(*T) uint64) ([]*T, error) {
	values, err := cl.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	items := make([]*T, 0, len(values))
	for _, value := range values {
		item := new(T)
		if err := json.Unmarshal([]byte(value), item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return id(items[i]) < id(items[j])
	})

	return items, nil
}

func (r *redisStore) InsertDirectory(ctx context.Context, path string) (*entity.Directory, bool, error) {
	var (
		dir     entity.Directory
		created bool
	)

	err := r.watch(ctx, func(tx *redis.Tx) error {
		created = false

		idStr, err := tx.HGet(ctx, r.key(KeyDirectoryPaths), path).Result()
		switch {
		case err == nil:
			return hgetJSON(ctx, tx, r.key(KeyDirectories), idStr, &dir)
		case !errors.Is(err, redis.Nil):
			return err
		}

		id, err := r.nextID(ctx, tx, SeqDirectory)
		if err != nil {
			return err
		}
		dir = entity.Directory{ID: id, Path: path, Mode: entity.ModeNotShared}
		field := strconv.FormatUint(id, 10)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key(KeyDirectories), field, mustJSON(&dir))
			pipe.HSet(ctx, r.key(KeyDirectoryPaths), path, field)

			return nil
		})
		created = err == nil

		return err
	}, r.key(KeyDirectoryPaths))
	if err != nil {
		return nil, false, fmt.Errorf("cannot insert directory %s: %w", path, err)
	}

	return &dir, created, nil
}

func (r *redisStore) ListDirectories(ctx context.Context) ([]*entity.Directory, error) {
	dirs, err := hgetAllJSON(ctx, r.cl, r.key(KeyDirectories), func(d *entity.Directory) uint64 { return d.ID })
	if err != nil {
		return nil, fmt.Errorf("cannot list directories: %w", err)
	}

	return dirs, nil
}

func (r *redisStore) GetDirectory(ctx context.Context, id uint64) (*entity.Directory, error) {
	var dir entity.Directory
	if err := hgetJSON(ctx, r.cl, r.key(KeyDirectories), strconv.FormatUint(id, 10), &dir); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot get directory %d: %w", id, err)
	}

	return &dir, nil
}

func (r *redisStore) GetDirectoryByPath(ctx context.Context, path string) (*entity.Directory, error) {
	idStr, err := r.cl.HGet(ctx, r.key(KeyDirectoryPaths), path).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot get directory %s: %w", path, err)
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid directory id %q: %w", idStr, err)
	}

	return r.GetDirectory(ctx, id)
}

func (r *redisStore) UpdateDirectoryMode(ctx context.Context, id uint64, mode entity.ShareMode) (*entity.Directory, error) {
	var dir entity.Directory
	field := strconv.FormatUint(id, 10)

	err := r.watch(ctx, func(tx *redis.Tx) error {
		if err := hgetJSON(ctx, tx, r.key(KeyDirectories), field, &dir); err != nil {
			return err
		}
		dir.Mode = mode

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key(KeyDirectories), field, mustJSON(&dir))

			return nil
		})

		return err
	}, r.key(KeyDirectories))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot update directory %d: %w", id, err)
	}

	return &dir, nil
}

func (r *redisStore) CreateClient(ctx context.Context, address, label string, now time.Time) (*entity.Client, error) {
	var client entity.Client

	err := r.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, r.key(KeyClients), address).Result()
		if err != nil {
			return err
		}
		if exists {
			return common.ErrAlreadyIdentified
		}

		id, err := r.nextID(ctx, tx, SeqClient)
		if err != nil {
			return err
		}
		client = entity.Client{ID: id, Address: address, Label: label, LastSeen: now, Active: true}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key(KeyClients), address, mustJSON(&client))

			return nil
		})

		return err
	}, r.key(KeyClients))
	if err != nil {
		if errors.Is(err, common.ErrAlreadyIdentified) {
			return nil, err
		}

		return nil, fmt.Errorf("cannot create client %s: %w", address, err)
	}

	return &client, nil
}

func (r *redisStore) GetClient(ctx context.Context, address string) (*entity.Client, error) {
	var client entity.Client
	if err := hgetJSON(ctx, r.cl, r.key(KeyClients), address, &client); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot get client %s: %w", address, err)
	}

	return &client, nil
}

func (r *redisStore) ListClients(ctx context.Context) ([]*entity.Client, error) {
	clients, err := hgetAllJSON(ctx, r.cl, r.key(KeyClients), func(c *entity.Client) uint64 { return c.ID })
	if err != nil {
		return nil, fmt.Errorf("cannot list clients: %w", err)
	}

	return clients, nil
}

// setFieldIfEqual replaces a hash field only while it still holds the value read
// before. It returns 1 when set, 0 when the field changed and -1 when it is gone.
var setFieldIfEqual = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then
	return -1
end
if cur ~= ARGV[2] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

// SetClientState conflicts only with writers of the same client, touches of
// other clients never force a retry.
func (r *redisStore) SetClientState(ctx context.Context, address string, active bool, seen time.Time) (*entity.Client, error) {
	key := r.key(KeyClients)

	for i := 0; i < maxTxRetries; i++ {
		cur, err := r.cl.HGet(ctx, key, address).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, common.ErrNotFound
			}

			return nil, fmt.Errorf("cannot get client %s: %w", address, err)
		}

		var client entity.Client
		if err := json.Unmarshal(cur, &client); err != nil {
			return nil, fmt.Errorf("cannot decode client %s: %w", address, err)
		}

		client.Active = active
		if !seen.IsZero() {
			client.LastSeen = seen
		}

		res, err := setFieldIfEqual.Run(ctx, r.cl, []string{key}, address, cur, mustJSON(&client)).Int()
		if err != nil {
			return nil, fmt.Errorf("cannot update client %s: %w", address, err)
		}

		switch res {
		case 1:
			return &client, nil
		case -1:
			return nil, common.ErrNotFound
		}

		r.log.Debug("Client changed, retry", slog.String("address", address), slog.Int("attempt", i+1))
	}

	return nil, fmt.Errorf("cannot update client %s: %w", address, redis.TxFailedErr)
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
