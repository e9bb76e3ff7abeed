package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "registry"
)

type TreeStorage interface {
	Scan(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]string, error)
	IsDir(name string) bool
}

type DirectoryRepository interface {
	InsertDirectory(ctx context.Context, path string) (*entity.Directory, bool, error)
	ListDirectories(ctx context.Context) ([]*entity.Directory, error)
	GetDirectory(ctx context.Context, id uint64) (*entity.Directory, error)
	GetDirectoryByPath(ctx context.Context, path string) (*entity.Directory, error)
	UpdateDirectoryMode(ctx context.Context, id uint64, mode entity.ShareMode) (*entity.Directory, error)
}

type DescriptionRenderer interface {
	Render(path string, src []byte) (*entity.Description, error)
}

type EventPublisher interface {
	Publish(kind string, payload any)
}

type Config struct {
	ShareRoot    string
	DescFileName string
}

type registryService struct {
	cfg    Config
	fs     afero.Fs
	tree   TreeStorage
	repo   DirectoryRepository
	md     DescriptionRenderer
	events EventPublisher
	log    *slog.Logger
}

func NewRegistryService(cfg Config, fs afero.Fs, tree TreeStorage, repo DirectoryRepository,
	md DescriptionRenderer, events EventPublisher, log *slog.Logger) *registryService {
	return &registryService{
		cfg:    cfg,
		fs:     fs,
		tree:   tree,
		repo:   repo,
		md:     md,
		events: events,
		log:    log.With(slog.String("service", serviceName)),
	}
}

// Reconcile registers every top-level directory of the shared root that the store
// does not know yet, with mode NotShared. Existing rows are never changed.
// It returns the number of inserted directories.
func (s *registryService) Reconcile(ctx context.Context) (int, error) {
	names, err := s.tree.Scan(ctx)
	if err != nil {
		if errors.Is(err, common.ErrReconcileInProgress) {
			return 0, err
		}

		s.log.Error("Cannot scan share root", slog.Any("error", err))

		return 0, fmt.Errorf("cannot scan share root: %w", err)
	}

	var inserted int
	for _, name := range names {
		dir, created, err := s.repo.InsertDirectory(ctx, name)
		if err != nil {
			s.log.Error("Cannot register directory", slog.String("path", name), slog.Any("error", err))

			return inserted, fmt.Errorf("cannot register directory %s: %w", name, err)
		}

		if created {
			inserted++
			s.log.Info("Register directory", slog.String("path", dir.Path), slog.Uint64("id", dir.ID))
		}
	}

	s.log.Info("Reconcile done", slog.Int("dirs", len(names)), slog.Int("inserted", inserted))
	s.events.Publish(entity.EventReconcile, map[string]int{"dirs": len(names), "inserted": inserted})

	return inserted, nil
}

// ListByMode returns the paths of directories in mode that still exist on disk,
// in share root listing order.
func (s *registryService) ListByMode(ctx context.Context, mode entity.ShareMode) ([]string, error) {
	if !mode.Valid() {
		return nil, common.ErrInvalidMode
	}

	dirs, err := s.present(ctx)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir.Mode == mode {
			paths = append(paths, dir.Path)
		}
	}

	return paths, nil
}

// ListManaged returns every registered directory present on disk.
func (s *registryService) ListManaged(ctx context.Context) ([]*entity.Directory, error) {
	return s.present(ctx)
}

// present joins the share root listing with the registry, dropping rows of
// directories that are gone and directories not registered yet.
func (s *registryService) present(ctx context.Context) ([]*entity.Directory, error) {
	names, err := s.tree.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list share root: %w", err)
	}

	dirs, err := s.repo.ListDirectories(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list directories: %w", err)
	}

	byPath := make(map[string]*entity.Directory, len(dirs))
	for _, dir := range dirs {
		byPath[dir.Path] = dir
	}

	result := make([]*entity.Directory, 0, len(names))
	for _, name := range names {
		if dir, ok := byPath[name]; ok {
			result = append(result, dir)
		}
	}

	return result, nil
}

func (s *registryService) SetMode(ctx context.Context, id uint64, mode entity.ShareMode) (*entity.Directory, error) {
	if !mode.Valid() {
		return nil, common.ErrInvalidMode
	}

	dir, err := s.repo.UpdateDirectoryMode(ctx, id, mode)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}

		s.log.Error("Cannot update directory mode", slog.Uint64("id", id), slog.Any("error", err))

		return nil, fmt.Errorf("cannot update directory %d mode: %w", id, err)
	}

	s.log.Info("Directory mode changed", slog.String("path", dir.Path), slog.String("mode", dir.Mode.String()))
	s.events.Publish(entity.EventModeChanged, dir)

	return dir, nil
}

// Exists reports whether path is registered and present on disk.
func (s *registryService) Exists(ctx context.Context, path string) bool {
	_, err := s.Get(ctx, path)

	return err == nil
}

// Get returns the registered directory at path, common.ErrNotFound when it is
// not registered or no longer on disk.
func (s *registryService) Get(ctx context.Context, path string) (*entity.Directory, error) {
	if !s.tree.IsDir(path) {
		return nil, common.ErrNotFound
	}

	dir, err := s.repo.GetDirectoryByPath(ctx, path)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("cannot get directory %s: %w", path, err)
	}

	return dir, nil
}

// Describe renders the description file of a present directory.
// common.ErrNotFound is returned when either the directory or the file is missing.
func (s *registryService) Describe(ctx context.Context, path string) (*entity.Description, error) {
	if _, err := s.Get(ctx, path); err != nil {
		return nil, err
	}

	src, err := afero.ReadFile(s.fs, filepath.Join(s.cfg.ShareRoot, path, s.cfg.DescFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot read description of %s: %w", path, err)
	}

	desc, err := s.md.Render(path, src)
	if err != nil {
		s.log.Error("Cannot render description", slog.String("path", path), slog.Any("error", err))

		return nil, fmt.Errorf("cannot render description of %s: %w", path, err)
	}

	return desc, nil
}
