//go:build integration

package redisstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jgivc/netfshare/internal/repository"
	"github.com/jgivc/netfshare/internal/repository/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// Run with: NETFSHARE_TEST_REDIS_URL=redis://localhost:6379/15 go test -tags=integration ./internal/repository/redisstore/...
func TestRedisStore(t *testing.T) {
	url := os.Getenv("NETFSHARE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("NETFSHARE_TEST_REDIS_URL is not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	suite := &storetest.StoreTestSuite{
		NewStore: func(t *testing.T) repository.Store {
			cl := redis.NewClient(opt)
			prefix := "netfshare-test-" + uuid.NewString()

			t.Cleanup(func() {
				ctx := context.Background()
				cleanup := redis.NewClient(opt)
				defer cleanup.Close()

				keys, err := cleanup.Keys(ctx, prefix+KeySeparator+"*").Result()
				if err == nil && len(keys) > 0 {
					cleanup.Del(ctx, keys...)
				}
			})

			return NewRedisStoreWithClient(cl, prefix, log)
		},
	}

	suite.Run(t)
}
