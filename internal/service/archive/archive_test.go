package archive

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	root     = "/share"
	cacheDir = "/share/.netfshare/archives"
	ttl      = 120 * time.Second
)

var files = map[string]string{
	"music/a.txt":              "first file",
	"music/description.md":     "# Music",
	"music/sub/b.bin":          strings.Repeat("\x00\x01\x02", 1000),
	"music/sub/deep/c.txt":     "nested",
	"music/empty.txt":          "",
	"photos/2024/img_0001.jpg": "jpeg",
}

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

type testMetrics struct {
	hits, generated, failed atomic.Int64
}

func (m *testMetrics) CacheHit() { m.hits.Add(1) }
func (m *testMetrics) ObserveGeneration(int64, time.Duration) { m.generated.Add(1) }
func (m *testMetrics) GenerationFailed() { m.failed.Add(1) }

type testEnv struct {
	fs      afero.Fs
	clock   *testClock
	metrics *testMetrics
	srv     *archiveService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(filepath.Join(root, name)), 0o755))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(root, name), []byte(content), 0o644))
	}

	base := time.Now().Truncate(time.Second)
	for _, dir := range []string{"music", "photos"} {
		past := base.Add(-time.Hour)
		require.NoError(t, fs.Chtimes(filepath.Join(root, dir), past, past))
	}

	clock := &testClock{now: base}
	metrics := &testMetrics{}
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	srv := NewArchiveService(Config{ShareRoot: root, CacheDir: cacheDir}, fs, metrics, log)
	srv.now = clock.Now

	return &testEnv{fs: fs, clock: clock, metrics: metrics, srv: srv}
}

func readArchive(t *testing.T, fs afero.Fs, a *entity.Archive) map[string]string {
	t.Helper()

	f, err := fs.Open(a.FilePath)
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, info.Size(), a.Size)

	zr, err := zip.NewReader(f, info.Size())
	require.NoError(t, err)

	got := make(map[string]string, len(zr.File))
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		got[zf.Name] = string(data)
	}

	return got
}

func TestGetArchiveStaleness(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	base := env.clock.Now()

	first, err := env.srv.GetArchive(ctx, "music", ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.srv.Generations())
	assert.True(t, first.GeneratedAt.Equal(base))
	assert.Equal(t, "music", first.SourcePath)
	assert.True(t, strings.HasPrefix(first.FilePath, cacheDir+"/"))

	// Within ttl, nothing changed.
	env.clock.Advance(30 * time.Second)
	second, err := env.srv.GetArchive(ctx, "music", ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.srv.Generations())
	assert.True(t, second.GeneratedAt.Equal(first.GeneratedAt))
	assert.Equal(t, first.FilePath, second.FilePath)
	assert.Equal(t, int64(1), env.metrics.hits.Load())

	// Directory mtime moves past the artifact.
	touched := env.clock.Now()
	require.NoError(t, env.fs.Chtimes(filepath.Join(root, "music"), touched, touched))
	env.clock.Advance(time.Second)

	third, err := env.srv.GetArchive(ctx, "music", ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(2), env.srv.Generations())
	assert.True(t, third.GeneratedAt.Equal(base.Add(31*time.Second)))
	assert.Equal(t, first.FilePath, third.FilePath)

	// Past ttl with no change.
	env.clock.Advance(ttl + time.Second)
	fourth, err := env.srv.GetArchive(ctx, "music", ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(3), env.srv.Generations())
	assert.True(t, fourth.GeneratedAt.After(third.GeneratedAt))

	// Exactly ttl old is still fresh.
	env.clock.Advance(ttl)
	_, err = env.srv.GetArchive(ctx, "music", ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(3), env.srv.Generations())
}

func TestGetArchiveStampsGenerationStart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	base := env.clock.Now()

	first, err := env.srv.GetArchive(ctx, "music", ttl)
	require.NoError(t, err)

	info, err := env.fs.Stat(first.FilePath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(base), "artifact mtime %s, want %s", info.ModTime(), base)

	// A change landing while the archive was being written leaves it stale.
	during := base.Add(time.Millisecond)
	require.NoError(t, env.fs.Chtimes(filepath.Join(root, "music"), during, during))

	_, err = env.srv.GetArchive(ctx, "music", ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(2), env.srv.Generations())
}

func TestGetArchiveRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	a, err := env.srv.GetArchive(context.Background(), "music", ttl)
	require.NoError(t, err)

	want := make(map[string]string)
	for name, content := range files {
		if rel, ok := strings.CutPrefix(name, "music/"); ok {
			want[rel] = content
		}
	}

	assert.Equal(t, want, readArchive(t, env.fs, a))
}

func TestGetArchiveNormalizesPath(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	a, err := env.srv.GetArchive(ctx, "photos", ttl)
	require.NoError(t, err)

	for _, path := range []string{"photos/", "./photos", "photos/2024/.."} {
		b, err := env.srv.GetArchive(ctx, path, ttl)
		require.NoError(t, err, path)
		assert.Equal(t, a.FilePath, b.FilePath, path)
	}

	assert.Equal(t, int64(1), env.srv.Generations())
	assert.Equal(t, map[string]string{"2024/img_0001.jpg": "jpeg"}, readArchive(t, env.fs, a))
}

func TestGetArchiveConcurrent(t *testing.T) {
	const n = 16

	env := newTestEnv(t)

	var wg sync.WaitGroup
	results := make([]*entity.Archive, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.srv.GetArchive(context.Background(), "music", ttl)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), env.srv.Generations())

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].FilePath, results[i].FilePath)
		assert.Len(t, readArchive(t, env.fs, results[i]), 5)
	}

	leftovers, err := afero.Glob(env.fs, filepath.Join(cacheDir, "*"+tempExt))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestGetArchiveDifferentPaths(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	for _, path := range []string{"music", "photos", "music", "photos"} {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			_, err := env.srv.GetArchive(context.Background(), path, ttl)
			assert.NoError(t, err)
		}(path)
	}
	wg.Wait()

	assert.Equal(t, int64(2), env.srv.Generations())
}

func TestGetArchivePathSafety(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "parent", path: "../outside", wantErr: common.ErrPathEscapesRoot},
		{name: "nested parent", path: "a/../../etc", wantErr: common.ErrPathEscapesRoot},
		{name: "rooted parent", path: "/../etc", wantErr: common.ErrPathEscapesRoot},
		{name: "root itself", path: "", wantErr: common.ErrNotADirectory},
		{name: "dot", path: ".", wantErr: common.ErrNotADirectory},
		{name: "missing", path: "video", wantErr: common.ErrNotADirectory},
		{name: "regular file", path: "music/a.txt", wantErr: common.ErrNotADirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			require.NoError(t, env.fs.MkdirAll("/outside", 0o755))
			require.NoError(t, env.fs.MkdirAll("/etc", 0o755))

			_, err := env.srv.GetArchive(context.Background(), tt.path, ttl)
			require.ErrorIs(t, err, tt.wantErr)

			exists, err := afero.DirExists(env.fs, cacheDir)
			require.NoError(t, err)
			assert.False(t, exists, "nothing may be written")
			assert.Zero(t, env.srv.Generations())
		})
	}
}

func TestGetArchiveGenerationFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first, err := env.srv.GetArchive(ctx, "music", ttl)
	require.NoError(t, err)

	env.srv.fs = afero.NewReadOnlyFs(env.fs)
	env.clock.Advance(ttl + time.Second)

	_, err = env.srv.GetArchive(ctx, "music", ttl)
	require.ErrorIs(t, err, common.ErrArchiveGenerationFailed)
	assert.Equal(t, int64(1), env.metrics.failed.Load())

	// The previous artifact is left as it was.
	info, err := env.fs.Stat(first.FilePath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(first.GeneratedAt))

	leftovers, err := afero.Glob(env.fs, filepath.Join(cacheDir, "*"+tempExt))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestGetArchiveSkipsCacheDir(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.CacheDir = "/share/music/.cache"

	a, err := env.srv.GetArchive(context.Background(), "music", ttl)
	require.NoError(t, err)

	for name := range readArchive(t, env.fs, a) {
		assert.False(t, strings.HasPrefix(name, ".cache/"), name)
	}
}
