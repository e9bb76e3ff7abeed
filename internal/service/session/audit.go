package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jgivc/netfshare/internal/entity"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// Audit joins every transfer record with its client and directory, oldest first.
func (s *sessionService) Audit(ctx context.Context) ([]entity.AuditEntry, error) {
	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list clients: %w", err)
	}

	dirs, err := s.repo.ListDirectories(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list directories: %w", err)
	}

	downloads, err := s.repo.ListDownloads(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list downloads: %w", err)
	}

	uploads, err := s.repo.ListUploads(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list uploads: %w", err)
	}

	clientByID := make(map[uint64]*entity.Client, len(clients))
	for _, c := range clients {
		clientByID[c.ID] = c
	}

	pathByID := make(map[uint64]string, len(dirs))
	for _, d := range dirs {
		pathByID[d.ID] = d.Path
	}

	entry := func(kind string, clientID, dirID uint64) entity.AuditEntry {
		e := entity.AuditEntry{Kind: kind, Path: pathByID[dirID]}
		if c, ok := clientByID[clientID]; ok {
			e.Address = c.Address
			e.Label = c.Label
		}

		return e
	}

	entries := make([]entity.AuditEntry, 0, len(downloads)+len(uploads))
	for _, d := range downloads {
		e := entry(entity.AuditKindDownload, d.ClientID, d.DirectoryID)
		e.Time = d.Time
		entries = append(entries, e)
	}

	for _, u := range uploads {
		e := entry(entity.AuditKindUpload, u.ClientID, u.DirectoryID)
		e.Time = u.Time
		e.FileCount = u.FileCount
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})

	return entries, nil
}

// DumpAudit writes clients and the audit trail to fileName as YAML.
func (s *sessionService) DumpAudit(ctx context.Context, fileName string) error {
	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("cannot list clients: %w", err)
	}

	entries, err := s.Audit(ctx)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(&entity.AuditDump{
		CreatedAt: s.now(),
		Clients:   clients,
		Entries:   entries,
	})
	if err != nil {
		return fmt.Errorf("cannot marshal audit: %w", err)
	}

	if err := afero.WriteFile(s.fs, fileName, data, 0o644); err != nil {
		return fmt.Errorf("cannot write audit dump %s: %w", fileName, err)
	}

	s.log.Info("Audit dumped", slog.String("file", fileName), slog.Int("entries", len(entries)))

	return nil
}
