package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/jgivc/netfshare/internal/util"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

const (
	serviceName = "archive"

	artifactExt = ".zip"
	tempExt     = ".tmp"
)

type Config struct {
	ShareRoot string
	CacheDir  string
}

// archiveService keeps one zip artifact per source directory in the cache dir.
// Artifacts are published by rename, so a reader opening FilePath always sees a
// complete file. The artifact mtime is set to the moment its generation started.
type archiveService struct {
	cfg     Config
	fs      afero.Fs
	now     func() time.Time
	metrics Metrics
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	generations atomic.Int64
}

func NewArchiveService(cfg Config, fs afero.Fs, metrics Metrics, log *slog.Logger) *archiveService {
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &archiveService{
		cfg: Config{
			ShareRoot: filepath.Clean(cfg.ShareRoot),
			CacheDir:  filepath.Clean(cfg.CacheDir),
		},
		fs:      fs,
		now:     time.Now,
		metrics: metrics,
		log:     log.With(slog.String("service", serviceName)),
		locks:   make(map[string]*sync.Mutex),
	}
}

// GetArchive returns a valid artifact for the directory at path (relative to the
// shared root), generating it when missing or stale:
//  1. no artifact
//  2. artifact older than the directory mtime
//  3. artifact older than ttl
func (s *archiveService) GetArchive(ctx context.Context, path string, ttl time.Duration) (*entity.Archive, error) {
	rel, src, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	srcInfo, err := s.fs.Stat(src)
	if err != nil || !srcInfo.IsDir() {
		return nil, common.ErrNotADirectory
	}

	key := util.PathKey(rel)
	artifact := filepath.Join(s.cfg.CacheDir, key+artifactExt)

	unlock := s.lock(key)
	defer unlock()

	info, err := s.fs.Stat(artifact)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Debug("No artifact", slog.String("path", rel))
	case err != nil:
		return nil, fmt.Errorf("cannot stat artifact of %s: %w", rel, err)
	case info.ModTime().Before(srcInfo.ModTime()):
		s.log.Debug("Directory changed", slog.String("path", rel))
	case s.now().Sub(info.ModTime()) > ttl:
		s.log.Debug("Artifact expired", slog.String("path", rel), slog.Duration("ttl", ttl))
	default:
		s.metrics.CacheHit()

		return &entity.Archive{
			SourcePath:  rel,
			FilePath:    artifact,
			GeneratedAt: info.ModTime(),
			Size:        info.Size(),
		}, nil
	}

	return s.generate(ctx, rel, src, key, artifact)
}

// Generations returns the number of successful generations since start.
func (s *archiveService) Generations() int64 {
	return s.generations.Load()
}

// resolve cleans path and joins it to the shared root. Paths resolving outside
// the root fail with common.ErrPathEscapesRoot, the root itself is not an archive source.
func (s *archiveService) resolve(path string) (string, string, error) {
	src := filepath.Join(s.cfg.ShareRoot, filepath.FromSlash(path))

	rel, err := filepath.Rel(s.cfg.ShareRoot, src)
	if err != nil {
		return "", "", common.ErrPathEscapesRoot
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		s.log.Warn("Path escapes shared root", slog.String("path", path))

		return "", "", common.ErrPathEscapesRoot
	}

	if rel == "." {
		return "", "", common.ErrNotADirectory
	}

	return filepath.ToSlash(rel), src, nil
}

func (s *archiveService) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()

	return l.Unlock
}

func (s *archiveService) generate(ctx context.Context, rel, src, key, artifact string) (*entity.Archive, error) {
	start := s.now()
	tmp := filepath.Join(s.cfg.CacheDir, key+"."+uuid.NewString()+tempExt)

	size, err := s.write(tmp, src, start)
	if err == nil {
		err = s.fs.Rename(tmp, artifact)
	}
	if err != nil {
		if rmErr := s.fs.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.log.Warn("Cannot remove temp artifact", slog.String("file", tmp), slog.Any("error", rmErr))
		}

		s.metrics.GenerationFailed()
		s.log.Error("Cannot generate archive", slog.String("path", rel), slog.Any("error", err))

		return nil, fmt.Errorf("%w: %s: %w", common.ErrArchiveGenerationFailed, rel, err)
	}

	s.generations.Add(1)
	elapsed := s.now().Sub(start)
	s.metrics.ObserveGeneration(size, elapsed)
	s.log.Info("Archive generated", slog.String("path", rel), slog.Int64("size", size), slog.Duration("took", elapsed))

	return &entity.Archive{
		SourcePath:  rel,
		FilePath:    artifact,
		GeneratedAt: start,
		Size:        size,
	}, nil
}

// write zips every regular file under src into name and stamps it with mtime.
// The time is set after the file is closed, closing may touch it.
func (s *archiveService) write(name, src string, mtime time.Time) (int64, error) {
	if err := s.fs.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return 0, fmt.Errorf("cannot create cache dir: %w", err)
	}

	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("cannot create temp artifact: %w", err)
	}

	size, err := s.writeZip(f, src)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("cannot close temp artifact: %w", cerr)
	}
	if err != nil {
		return 0, err
	}

	if err := s.fs.Chtimes(name, mtime, mtime); err != nil {
		return 0, fmt.Errorf("cannot set artifact time: %w", err)
	}

	return size, nil
}

func (s *archiveService) writeZip(f afero.File, src string) (int64, error) {
	zw := zip.NewWriter(f)

	err := afero.Walk(s.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() && filepath.Clean(path) == s.cfg.CacheDir {
			return filepath.SkipDir
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		return s.addFile(zw, path, filepath.ToSlash(rel), info)
	})
	if err != nil {
		return 0, fmt.Errorf("cannot walk %s: %w", src, err)
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("cannot finish zip: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("cannot stat temp artifact: %w", err)
	}

	return info.Size(), nil
}

func (s *archiveService) addFile(zw *zip.Writer, path, name string, info os.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("cannot build header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("cannot add %s: %w", name, err)
	}

	in, err := s.fs.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("cannot compress %s: %w", path, err)
	}

	return nil
}
