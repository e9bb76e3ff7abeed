package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "transfer"
)

type ArchiveService interface {
	GetArchive(ctx context.Context, path string, ttl time.Duration) (*entity.Archive, error)
}

type DirectoryRegistry interface {
	Get(ctx context.Context, path string) (*entity.Directory, error)
}

type SessionService interface {
	Resolve(ctx context.Context, address string) (*entity.Client, error)
	RecordDownload(ctx context.Context, address, path string) (*entity.DownloadRecord, error)
	RecordUpload(ctx context.Context, address, path string, fileCount int) (*entity.UploadRecord, error)
}

type Config struct {
	ShareRoot         string
	ArchiveTTL        time.Duration
	MaxFilesPerUpload int
}

// ServeFunc streams an opened artifact to the requester. It reports whether
// the whole artifact body was delivered; HEAD, conditional and range
// responses report false.
type ServeFunc func(archive *entity.Archive, f afero.File) (bool, error)

type transferService struct {
	cfg      Config
	fs       afero.Fs
	archives ArchiveService
	registry DirectoryRegistry
	sessions SessionService
	log      *slog.Logger
}

func NewTransferService(cfg Config, fs afero.Fs, archives ArchiveService, registry DirectoryRegistry,
	sessions SessionService, log *slog.Logger) *transferService {
	return &transferService{
		cfg:      cfg,
		fs:       fs,
		archives: archives,
		registry: registry,
		sessions: sessions,
		log:      log.With(slog.String("service", serviceName)),
	}
}

// directory returns the registered, present top-level directory at p.
func (s *transferService) directory(ctx context.Context, p string) (*entity.Directory, error) {
	if !iofs.ValidPath(p) || p == "." {
		return nil, common.ErrPathEscapesRoot
	}

	dir, err := s.registry.Get(ctx, p)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotADirectory
		}

		return nil, err
	}

	return dir, nil
}

// Download hands the archive of p to serve and records the download once serve
// reports the whole body delivered. Non-admins must be identified and p must be shared read only.
// Admins may download any registered directory, the download is recorded only
// when the admin is identified too.
func (s *transferService) Download(ctx context.Context, address, p string, admin bool, serve ServeFunc) error {
	dir, err := s.directory(ctx, p)
	if err != nil {
		return err
	}

	identified := true
	if _, err := s.sessions.Resolve(ctx, address); err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		identified = false
	}

	if !admin && (!identified || dir.Mode != entity.ModeReadOnly) {
		return common.ErrUnauthorized
	}

	archive, err := s.archives.GetArchive(ctx, dir.Path, s.cfg.ArchiveTTL)
	if err != nil {
		return err
	}

	f, err := s.fs.Open(archive.FilePath)
	if err != nil {
		return fmt.Errorf("cannot open artifact of %s: %w", dir.Path, err)
	}
	defer f.Close()

	complete, err := serve(archive, f)
	if err != nil {
		s.log.Warn("Download interrupted", slog.String("address", address), slog.String("path", dir.Path), slog.Any("error", err))

		return fmt.Errorf("cannot serve %s: %w", dir.Path, err)
	}

	if !complete {
		s.log.Debug("Partial response", slog.String("address", address), slog.String("path", dir.Path))

		return nil
	}

	if identified {
		if _, err := s.sessions.RecordDownload(ctx, address, dir.Path); err != nil {
			return fmt.Errorf("cannot record download: %w", err)
		}
	}

	s.log.Info("Download", slog.String("address", address), slog.String("path", dir.Path), slog.Int64("size", archive.Size))

	return nil
}

// Upload stores files under <p>/<client label>/ and records the batch.
// The batch root must not exist yet, so a client uploads into a directory once.
// Any failure removes what the batch has written.
func (s *transferService) Upload(ctx context.Context, address, p string, files []entity.UploadFile) (int, error) {
	dir, err := s.directory(ctx, p)
	if err != nil {
		return 0, err
	}

	if dir.Mode != entity.ModeUploadOnly {
		return 0, common.ErrUnauthorized
	}

	client, err := s.sessions.Resolve(ctx, address)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, common.ErrUnknownClient
		}

		return 0, err
	}

	if len(files) == 0 {
		return 0, common.ErrEmptyUpload
	}

	if len(files) > s.cfg.MaxFilesPerUpload {
		return 0, common.ErrTooManyFiles
	}

	names, err := batchNames(files)
	if err != nil {
		return 0, err
	}

	dest := filepath.Join(s.cfg.ShareRoot, dir.Path, client.Label)
	if err := s.fs.Mkdir(dest, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, common.ErrNameCollision
		}

		return 0, fmt.Errorf("cannot create %s: %w", dest, err)
	}

	if err := s.writeBatch(dest, names, files); err != nil {
		s.cleanup(dest)
		s.log.Error("Upload failed", slog.String("address", address), slog.String("path", dir.Path), slog.Any("error", err))

		return 0, err
	}

	if _, err := s.sessions.RecordUpload(ctx, address, dir.Path, len(files)); err != nil {
		s.cleanup(dest)

		return 0, fmt.Errorf("cannot record upload: %w", err)
	}

	s.log.Info("Upload", slog.String("address", address), slog.String("path", dir.Path), slog.Int("files", len(files)))

	return len(files), nil
}

// batchNames cleans the relative names of files. Names leaving the batch root
// fail with common.ErrPathEscapesRoot, duplicates with common.ErrNameCollision.
func batchNames(files []entity.UploadFile) ([]string, error) {
	names := make([]string, 0, len(files))
	seen := make(map[string]struct{}, len(files))

	for _, file := range files {
		name := path.Clean(filepath.ToSlash(file.Name))
		if !iofs.ValidPath(name) || name == "." {
			return nil, fmt.Errorf("%w: %q", common.ErrPathEscapesRoot, file.Name)
		}

		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q", common.ErrNameCollision, file.Name)
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names, nil
}

func (s *transferService) writeBatch(dest string, names []string, files []entity.UploadFile) error {
	for i, name := range names {
		target := filepath.Join(dest, filepath.FromSlash(name))

		if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("cannot create directory for %s: %w", name, err)
		}

		if err := s.writeFile(target, files[i]); err != nil {
			return fmt.Errorf("cannot write %s: %w", name, err)
		}
	}

	return nil
}

func (s *transferService) writeFile(target string, file entity.UploadFile) error {
	in, err := file.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := s.fs.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return common.ErrNameCollision
		}

		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}

func (s *transferService) cleanup(dest string) {
	if err := s.fs.RemoveAll(dest); err != nil {
		s.log.Error("Cannot remove failed upload", slog.String("dest", dest), slog.Any("error", err))
	}
}
