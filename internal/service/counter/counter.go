package counter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
)

const (
	serviceName = "counter"
)

type CounterRepository interface {
	ListDirectories(ctx context.Context) ([]*entity.Directory, error)
	ListDownloads(ctx context.Context) ([]*entity.DownloadRecord, error)
	ListUploads(ctx context.Context) ([]*entity.UploadRecord, error)
}

type counterService struct {
	repo CounterRepository
	log  *slog.Logger
}

func NewCounterService(repo CounterRepository, log *slog.Logger) *counterService {
	return &counterService{
		repo: repo,
		log:  log.With(slog.String("service", serviceName)),
	}
}

// GetCounters returns transfer totals for every registered directory, by path.
func (c *counterService) GetCounters(ctx context.Context) ([]entity.DirCounters, error) {
	dirs, err := c.repo.ListDirectories(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list directories: %w", err)
	}

	downloads, err := c.repo.ListDownloads(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list downloads: %w", err)
	}

	uploads, err := c.repo.ListUploads(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list uploads: %w", err)
	}

	byID := make(map[uint64]*entity.DirCounters, len(dirs))
	for _, d := range dirs {
		byID[d.ID] = &entity.DirCounters{Path: d.Path, Mode: d.Mode}
	}

	for _, rec := range downloads {
		if cnt, ok := byID[rec.DirectoryID]; ok {
			cnt.Downloads++
		}
	}

	for _, rec := range uploads {
		if cnt, ok := byID[rec.DirectoryID]; ok {
			cnt.Uploads++
			cnt.UploadedFiles += rec.FileCount
		}
	}

	counters := make([]entity.DirCounters, 0, len(byID))
	for _, cnt := range byID {
		counters = append(counters, *cnt)
	}

	sort.Slice(counters, func(i, j int) bool {
		return counters[i].Path < counters[j].Path
	})

	return counters, nil
}

func (c *counterService) GetDirCounters(ctx context.Context, path string) (*entity.DirCounters, error) {
	counters, err := c.GetCounters(ctx)
	if err != nil {
		c.log.Error("Cannot get counters", slog.String("path", path), slog.Any("error", err))

		return nil, fmt.Errorf("cannot get %s counters: %w", path, err)
	}

	for i := range counters {
		if counters[i].Path == path {
			return &counters[i], nil
		}
	}

	return nil, fmt.Errorf("cannot get %s counters: %w", path, common.ErrNotFound)
}
