// Package storetest holds the behaviour every repository.Store implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/jgivc/netfshare/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type StoreTestSuite struct {
	// NewStore returns an empty store. The suite closes it.
	NewStore func(t *testing.T) repository.Store
}

func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("InsertDirectory", suite.testInsertDirectory)
	t.Run("UpdateDirectoryMode", suite.testUpdateDirectoryMode)
	t.Run("Clients", suite.testClients)
	t.Run("Records", suite.testRecords)
	t.Run("ResetSession", suite.testResetSession)
	t.Run("ConcurrentModeUpdates", suite.testConcurrentModeUpdates)
	t.Run("ResetRacesRecord", suite.testResetRacesRecord)
	t.Run("ConcurrentClientState", suite.testConcurrentClientState)
}

func (suite *StoreTestSuite) newStore(t *testing.T) repository.Store {
	t.Helper()

	store := suite.NewStore(t)
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func (suite *StoreTestSuite) testInsertDirectory(t *testing.T) {
	ctx := context.Background()
	store := suite.newStore(t)

	dir, created, err := store.InsertDirectory(ctx, "music")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "music", dir.Path)
	assert.Equal(t, entity.ModeNotShared, dir.Mode)

	again, created, err := store.InsertDirectory(ctx, "music")
	require.NoError(t, err)
	require.False(t, created)
	assert.Equal(t, dir.ID, again.ID)

	_, _, err = store.InsertDirectory(ctx, "photos")
	require.NoError(t, err)

	dirs, err := store.ListDirectories(ctx)
	require.NoError(t, err)
	require.Len(t, dirs, 2)

	byPath, err := store.GetDirectoryByPath(ctx, "music")
	require.NoError(t, err)
	assert.Equal(t, dir.ID, byPath.ID)

	byID, err := store.GetDirectory(ctx, dir.ID)
	require.NoError(t, err)
	assert.Equal(t, "music", byID.Path)

	_, err = store.GetDirectoryByPath(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = store.GetDirectory(ctx, 9999)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func (suite *StoreTestSuite) testUpdateDirectoryMode(t *testing.T) {
	ctx := context.Background()
	store := suite.newStore(t)

	dir, _, err := store.InsertDirectory(ctx, "music")
	require.NoError(t, err)

	updated, err := store.UpdateDirectoryMode(ctx, dir.ID, entity.ModeReadOnly)
	require.NoError(t, err)
	assert.Equal(t, entity.ModeReadOnly, updated.Mode)

	stored, err := store.GetDirectory(ctx, dir.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ModeReadOnly, stored.Mode)

	// Insert must not reset the mode
	again, created, err := store.InsertDirectory(ctx, "music")
	require.NoError(t, err)
	require.False(t, created)
	assert.Equal(t, entity.ModeReadOnly, again.Mode)

	_, err = store.UpdateDirectoryMode(ctx, 9999, entity.ModeReadOnly)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func (suite *StoreTestSuite) testClients(t *testing.T) {
	ctx := context.Background()
	store := suite.newStore(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	client, err := store.CreateClient(ctx, "10.0.0.5", "bob", now)
	require.NoError(t, err)
	assert.Equal(t, "bob", client.Label)
	assert.True(t, client.Active)
	assert.True(t, now.Equal(client.LastSeen))

	_, err = store.CreateClient(ctx, "10.0.0.5", "alice", now)
	require.ErrorIs(t, err, common.ErrAlreadyIdentified)

	stored, err := store.GetClient(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "bob", stored.Label)
	assert.Equal(t, client.ID, stored.ID)

	later := now.Add(time.Minute)
	updated, err := store.SetClientState(ctx, "10.0.0.5", false, later)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.True(t, later.Equal(updated.LastSeen))

	// Zero time keeps LastSeen
	updated, err = store.SetClientState(ctx, "10.0.0.5", true, time.Time{})
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.True(t, later.Equal(updated.LastSeen))

	_, err = store.SetClientState(ctx, "10.0.0.6", true, later)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = store.GetClient(ctx, "10.0.0.6")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = store.CreateClient(ctx, "10.0.0.6", "carol", now)
	require.NoError(t, err)

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
}

func (suite *StoreTestSuite) testRecords(t *testing.T) {
	ctx := context.Background()
	store := suite.newStore(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	dir, _, err := store.InsertDirectory(ctx, "music")
	require.NoError(t, err)
	client, err := store.CreateClient(ctx, "10.0.0.5", "bob", now)
	require.NoError(t, err)

	rec, err := store.AddDownload(ctx, "10.0.0.5", "music", now)
	require.NoError(t, err)
	assert.Equal(t, client.ID, rec.ClientID)
	assert.Equal(t, dir.ID, rec.DirectoryID)

	_, err = store.AddDownload(ctx, "10.0.0.9", "music", now)
	require.ErrorIs(t, err, common.ErrUnknownClient)

	_, err = store.AddDownload(ctx, "10.0.0.5", "missing", now)
	require.ErrorIs(t, err, common.ErrUnknownDirectory)

	up, err := store.AddUpload(ctx, "10.0.0.5", "music", now, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, up.FileCount)

	_, err = store.AddUpload(ctx, "10.0.0.9", "music", now, 1)
	require.ErrorIs(t, err, common.ErrUnknownClient)

	downloads, err := store.ListDownloads(ctx)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, rec.ID, downloads[0].ID)

	uploads, err := store.ListUploads(ctx)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, 3, uploads[0].FileCount)
}

func (suite *StoreTestSuite) testResetSession(t *testing.T) {
	ctx := context.Background()
	store := suite.newStore(t)
	now := time.Now()

	_, _, err := store.InsertDirectory(ctx, "music")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := store.CreateClient(ctx, fmt.Sprintf("10.0.0.%d", i), fmt.Sprintf("client%d", i), now)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := store.AddDownload(ctx, "10.0.0.1", "music", now)
		require.NoError(t, err)
	}
	_, err = store.AddUpload(ctx, "10.0.0.2", "music", now, 4)
	require.NoError(t, err)

	res, err := store.ResetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.ResetResult{Clients: 3, Downloads: 2, Uploads: 1}, res)

	for i := 1; i <= 3; i++ {
		_, err := store.GetClient(ctx, fmt.Sprintf("10.0.0.%d", i))
		require.ErrorIs(t, err, common.ErrNotFound)
	}

	dirs, err := store.ListDirectories(ctx)
	require.NoError(t, err)
	require.Len(t, dirs, 1)

	res, err = store.ResetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.ResetResult{}, res)
}

func (suite *StoreTestSuite) testConcurrentModeUpdates(t *testing.T) {
	ctx := context.Background()
	store := suite.newStore(t)

	const n = 8
	ids := make([]uint64, n)
	for i := range ids {
		dir, _, err := store.InsertDirectory(ctx, fmt.Sprintf("dir%d", i))
		require.NoError(t, err)
		ids[i] = dir.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(mode entity.ShareMode, id uint64) {
			defer wg.Done()
			_, err := store.UpdateDirectoryMode(ctx, id, mode)
			errs <- err
		}(entity.ShareMode(i%3), id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for i, id := range ids {
		dir, err := store.GetDirectory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.ShareMode(i%3), dir.Mode)
	}
}

// A reset racing a record insert must look like one of the two serial orders.
func (suite *StoreTestSuite) testResetRacesRecord(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		store := suite.newStore(t)
		now := time.Now()

		_, _, err := store.InsertDirectory(ctx, "music")
		require.NoError(t, err)
		_, err = store.CreateClient(ctx, "10.0.0.1", "bob", now)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			res       entity.ResetResult
			resetErr  error
			recordErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, resetErr = store.ResetSession(ctx)
		}()
		go func() {
			defer wg.Done()
			_, recordErr = store.AddDownload(ctx, "10.0.0.1", "music", now)
		}()
		wg.Wait()

		require.NoError(t, resetErr)
		assert.Equal(t, 1, res.Clients)

		downloads, err := store.ListDownloads(ctx)
		require.NoError(t, err)

		if recordErr == nil {
			// insert-then-reset
			assert.Equal(t, 1, res.Downloads)
			assert.Empty(t, downloads)
		} else {
			// reset-then-insert
			require.ErrorIs(t, recordErr, common.ErrUnknownClient)
			assert.Equal(t, 0, res.Downloads)
			assert.Empty(t, downloads)
		}
	}
}

// Many clients touched at once, as a sweep does, must all be updated.
func (suite *StoreTestSuite) testConcurrentClientState(t *testing.T) {
	ctx := context.Background()
	store := suite.newStore(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	const (
		clients = 16
		touches = 20
	)
	for i := 0; i < clients; i++ {
		_, err := store.CreateClient(ctx, fmt.Sprintf("10.0.1.%d", i), fmt.Sprintf("client%d", i), now)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, clients*touches)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()
			for j := 1; j <= touches; j++ {
				_, err := store.SetClientState(ctx, address, j%2 == 0, now.Add(time.Duration(j)*time.Second))
				errs <- err
			}
		}(fmt.Sprintf("10.0.1.%d", i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < clients; i++ {
		client, err := store.GetClient(ctx, fmt.Sprintf("10.0.1.%d", i))
		require.NoError(t, err)
		assert.True(t, client.Active)
		assert.True(t, now.Add(touches*time.Second).Equal(client.LastSeen))
	}
}
