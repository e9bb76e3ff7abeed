package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/jgivc/netfshare/internal/repository/badgerstore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (e *eventRecorder) Publish(kind string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.kinds = append(e.kinds, kind)
}

type testEnv struct {
	fs     afero.Fs
	clock  *testClock
	events *eventRecorder
	repo   SessionRepository
	srv    *sessionService
}

func newTestEnv(t *testing.T, probe ProbeFunc) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	store, err := badgerstore.NewBadgerStore(badgerstore.Config{InMemory: true}, log)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	for _, path := range []string{"music", "inbox"} {
		_, _, err := store.InsertDirectory(ctx, path)
		require.NoError(t, err)
	}

	if probe == nil {
		probe = func(context.Context, string) (bool, error) { return true, nil }
	}

	fs := afero.NewMemMapFs()
	clock := &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	events := &eventRecorder{}

	srv := NewSessionService(Config{ProbeTimeout: 50 * time.Millisecond, Workers: 4}, fs, store, probe, events, nil, log)
	srv.now = clock.Now

	return &testEnv{fs: fs, clock: clock, events: events, repo: store, srv: srv}
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		name      string
		label     string
		wantLabel string
		wantErr   error
	}{
		{name: "plain", label: "bob", wantLabel: "bob"},
		{name: "trimmed", label: "  alice ", wantLabel: "alice"},
		{name: "unicode", label: "Пётр", wantLabel: "Пётр"},
		{name: "empty", label: "", wantErr: common.ErrLabelRequired},
		{name: "blank", label: " \t ", wantErr: common.ErrLabelRequired},
		{name: "parent", label: "..", wantErr: common.ErrInvalidLabel},
		{name: "hidden", label: ".bob", wantErr: common.ErrInvalidLabel},
		{name: "slash", label: "a/b", wantErr: common.ErrInvalidLabel},
		{name: "backslash", label: `a\b`, wantErr: common.ErrInvalidLabel},
		{name: "control", label: "a\x00b", wantErr: common.ErrInvalidLabel},
		{name: "too long", label: strings.Repeat("x", maxLabelLength+1), wantErr: common.ErrInvalidLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			client, err := env.srv.Identify(context.Background(), "10.0.0.2", tt.label)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				_, err := env.srv.Resolve(context.Background(), "10.0.0.2")
				require.ErrorIs(t, err, common.ErrNotFound)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, client.Label)
			assert.True(t, client.Active)
			assert.True(t, client.LastSeen.Equal(env.clock.Now()))
		})
	}
}

func TestIdentifyTwice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.srv.Identify(ctx, "10.0.0.2", "bob")
	require.NoError(t, err)

	_, err = env.srv.Identify(ctx, "10.0.0.2", "anything")
	require.ErrorIs(t, err, common.ErrAlreadyIdentified)

	client, err := env.srv.Resolve(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "bob", client.Label)
	assert.Equal(t, []string{entity.EventIdentify}, env.events.kinds)
}

func TestTouch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	require.NoError(t, env.srv.Touch(ctx, "10.0.0.9"))
	_, err := env.srv.Resolve(ctx, "10.0.0.9")
	require.ErrorIs(t, err, common.ErrNotFound, "touch must not create clients")

	_, err = env.srv.Identify(ctx, "10.0.0.2", "bob")
	require.NoError(t, err)
	_, err = env.repo.SetClientState(ctx, "10.0.0.2", false, time.Time{})
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	require.NoError(t, env.srv.Touch(ctx, "10.0.0.2"))

	client, err := env.srv.Resolve(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, client.Active)
	assert.True(t, client.LastSeen.Equal(env.clock.Now()))
}

func TestRecordDownload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	client, err := env.srv.Identify(ctx, "10.0.0.2", "bob")
	require.NoError(t, err)

	rec, err := env.srv.RecordDownload(ctx, "10.0.0.2", "music")
	require.NoError(t, err)
	assert.Equal(t, client.ID, rec.ClientID)
	assert.True(t, rec.Time.Equal(env.clock.Now()))

	_, err = env.srv.RecordDownload(ctx, "10.0.0.3", "music")
	require.ErrorIs(t, err, common.ErrUnknownClient)

	_, err = env.srv.RecordDownload(ctx, "10.0.0.2", "video")
	require.ErrorIs(t, err, common.ErrUnknownDirectory)

	downloads, err := env.repo.ListDownloads(ctx)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, rec.ID, downloads[0].ID)
}

func TestRecordUpload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.srv.RecordUpload(ctx, "10.0.0.2", "inbox", 3)
	require.ErrorIs(t, err, common.ErrUnknownClient)

	_, err = env.srv.Identify(ctx, "10.0.0.2", "bob")
	require.NoError(t, err)

	rec, err := env.srv.RecordUpload(ctx, "10.0.0.2", "inbox", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.FileCount)

	uploads, err := env.repo.ListUploads(ctx)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
}

func TestSweepLiveness(t *testing.T) {
	ctx := context.Background()
	hang := make(chan struct{})
	defer close(hang)

	probe := func(ctx context.Context, address string) (bool, error) {
		switch address {
		case "10.0.0.1":
			return true, nil
		case "10.0.0.2":
			return false, nil
		case "10.0.0.3":
			return true, errors.New("host unreachable")
		default:
			// Ignores ctx on purpose.
			<-hang

			return true, nil
		}
	}

	env := newTestEnv(t, probe)
	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		_, err := env.srv.Identify(ctx, addr, "user-"+addr)
		require.NoError(t, err)
	}

	identifiedAt := env.clock.Now()
	env.clock.Advance(time.Hour)

	res, err := env.srv.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.SweepResult{Active: 1, Inactive: 3}, res)

	clients, err := env.srv.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 4)

	for _, c := range clients {
		if c.Address == "10.0.0.1" {
			assert.True(t, c.Active)
			assert.True(t, c.LastSeen.Equal(env.clock.Now()), "reachable clients are seen now")

			continue
		}

		assert.False(t, c.Active, c.Address)
		assert.True(t, c.LastSeen.Equal(identifiedAt), c.Address)
	}
}

func TestSweepLivenessResetMidway(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.srv.cfg.Workers = 1

	_, err := env.srv.Identify(ctx, "10.0.0.1", "bob")
	require.NoError(t, err)

	probe := func(ctx context.Context, address string) (bool, error) {
		_, err := env.repo.ResetSession(ctx)

		return err == nil, err
	}

	_, err = env.srv.SweepLiveness(ctx, probe)
	require.NoError(t, err)

	clients, err := env.srv.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestSweepLivenessEmpty(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.srv.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestResetSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for _, addr := range addrs {
		_, err := env.srv.Identify(ctx, addr, "user")
		require.NoError(t, err)
	}

	_, err := env.srv.RecordDownload(ctx, addrs[0], "music")
	require.NoError(t, err)
	_, err = env.srv.RecordDownload(ctx, addrs[1], "music")
	require.NoError(t, err)
	_, err = env.srv.RecordUpload(ctx, addrs[2], "inbox", 2)
	require.NoError(t, err)

	dirsBefore, err := env.repo.ListDirectories(ctx)
	require.NoError(t, err)

	res, err := env.srv.ResetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.ResetResult{Clients: 3, Downloads: 2, Uploads: 1}, res)

	for _, addr := range addrs {
		_, err := env.srv.Resolve(ctx, addr)
		require.ErrorIs(t, err, common.ErrNotFound)
	}

	dirsAfter, err := env.repo.ListDirectories(ctx)
	require.NoError(t, err)
	assert.Equal(t, dirsBefore, dirsAfter)

	entries, err := env.srv.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuditAndDump(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.srv.Identify(ctx, "10.0.0.1", "bob")
	require.NoError(t, err)
	_, err = env.srv.Identify(ctx, "10.0.0.2", "alice")
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	_, err = env.srv.RecordUpload(ctx, "10.0.0.2", "inbox", 4)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.srv.RecordDownload(ctx, "10.0.0.1", "music")
	require.NoError(t, err)

	entries, err := env.srv.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, entity.AuditKindUpload, entries[0].Kind)
	assert.Equal(t, "alice", entries[0].Label)
	assert.Equal(t, "inbox", entries[0].Path)
	assert.Equal(t, 4, entries[0].FileCount)

	assert.Equal(t, entity.AuditKindDownload, entries[1].Kind)
	assert.Equal(t, "10.0.0.1", entries[1].Address)
	assert.Equal(t, "music", entries[1].Path)

	const dumpFile = "/state/audit.yml"
	require.NoError(t, env.fs.MkdirAll("/state", 0o755))
	require.NoError(t, env.srv.DumpAudit(ctx, dumpFile))

	data, err := afero.ReadFile(env.fs, dumpFile)
	require.NoError(t, err)

	var dump entity.AuditDump
	require.NoError(t, yaml.Unmarshal(data, &dump))
	assert.Len(t, dump.Clients, 2)
	assert.Len(t, dump.Entries, 2)
	assert.Equal(t, "bob", dump.Entries[1].Label)
}
