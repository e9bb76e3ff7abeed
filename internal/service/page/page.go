package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
)

const (
	serviceName = "page"
)

type DirectoryRegistry interface {
	ListByMode(ctx context.Context, mode entity.ShareMode) ([]string, error)
	ListManaged(ctx context.Context) ([]*entity.Directory, error)
	Describe(ctx context.Context, path string) (*entity.Description, error)
}

type ClientResolver interface {
	Resolve(ctx context.Context, address string) (*entity.Client, error)
}

type PageRenderer interface {
	Render(page *entity.IndexPage) (string, error)
}

type pageService struct {
	registry DirectoryRegistry
	clients  ClientResolver
	renderer PageRenderer
	log      *slog.Logger
}

func NewPageService(registry DirectoryRegistry, clients ClientResolver, renderer PageRenderer, log *slog.Logger) *pageService {
	return &pageService{
		registry: registry,
		clients:  clients,
		renderer: renderer,
		log:      log.With(slog.String("service", serviceName)),
	}
}

// GetPage renders the listing page as seen by the caller at address.
func (p *pageService) GetPage(ctx context.Context, address string, admin bool) (string, error) {
	page := entity.IndexPage{Admin: admin}

	client, err := p.clients.Resolve(ctx, address)
	switch {
	case err == nil:
		page.Client = client
	case !errors.Is(err, common.ErrNotFound):
		return "", fmt.Errorf("cannot resolve client %s: %w", address, err)
	}

	if page.ReadOnly, err = p.entries(ctx, entity.ModeReadOnly); err != nil {
		return "", err
	}
	if page.UploadOnly, err = p.entries(ctx, entity.ModeUploadOnly); err != nil {
		return "", err
	}

	if admin {
		if page.Managed, err = p.registry.ListManaged(ctx); err != nil {
			return "", fmt.Errorf("cannot list managed directories: %w", err)
		}
		page.Modes = []entity.ShareMode{entity.ModeNotShared, entity.ModeReadOnly, entity.ModeUploadOnly}
	}

	content, err := p.renderer.Render(&page)
	if err != nil {
		p.log.Error("Cannot render page", slog.Any("error", err))

		return "", fmt.Errorf("cannot render page: %w", err)
	}

	return content, nil
}

// entries lists directories in mode with their descriptions. A description that
// cannot be rendered is logged and left out.
func (p *pageService) entries(ctx context.Context, mode entity.ShareMode) ([]entity.DirEntry, error) {
	paths, err := p.registry.ListByMode(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s directories: %w", mode, err)
	}

	entries := make([]entity.DirEntry, 0, len(paths))
	for _, path := range paths {
		entry := entity.DirEntry{Path: path}

		desc, err := p.registry.Describe(ctx, path)
		switch {
		case err == nil:
			entry.Description = desc
		case !errors.Is(err, common.ErrNotFound):
			p.log.Warn("Cannot describe directory", slog.String("path", path), slog.Any("error", err))
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
