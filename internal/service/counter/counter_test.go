package counter

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/jgivc/netfshare/internal/repository/badgerstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCounters(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	store, err := badgerstore.NewBadgerStore(badgerstore.Config{InMemory: true}, log)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	for _, path := range []string{"inbox", "docs", "empty"} {
		_, _, err := store.InsertDirectory(ctx, path)
		require.NoError(t, err)
	}

	now := time.Now()
	_, err = store.CreateClient(ctx, "10.0.0.1", "alice", now)
	require.NoError(t, err)
	_, err = store.CreateClient(ctx, "10.0.0.2", "bob", now)
	require.NoError(t, err)

	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1"} {
		_, err = store.AddDownload(ctx, addr, "docs", now)
		require.NoError(t, err)
	}
	_, err = store.AddUpload(ctx, "10.0.0.1", "inbox", now, 3)
	require.NoError(t, err)
	_, err = store.AddUpload(ctx, "10.0.0.2", "inbox", now, 2)
	require.NoError(t, err)

	srv := NewCounterService(store, log)

	counters, err := srv.GetCounters(ctx)
	require.NoError(t, err)
	require.Len(t, counters, 3)

	assert.Equal(t, entity.DirCounters{Path: "docs", Downloads: 3}, counters[0])
	assert.Equal(t, entity.DirCounters{Path: "empty"}, counters[1])
	assert.Equal(t, entity.DirCounters{Path: "inbox", Uploads: 2, UploadedFiles: 5}, counters[2])

	tests := []struct {
		name    string
		path    string
		want    *entity.DirCounters
		wantErr error
	}{
		{name: "Known", path: "docs", want: &entity.DirCounters{Path: "docs", Downloads: 3}},
		{name: "Unknown", path: "nope", wantErr: common.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := srv.GetDirCounters(ctx, tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
