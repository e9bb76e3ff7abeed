package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "session"

	maxLabelLength = 64
)

type SessionRepository interface {
	CreateClient(ctx context.Context, address, label string, now time.Time) (*entity.Client, error)
	GetClient(ctx context.Context, address string) (*entity.Client, error)
	ListClients(ctx context.Context) ([]*entity.Client, error)
	SetClientState(ctx context.Context, address string, active bool, seen time.Time) (*entity.Client, error)

	AddDownload(ctx context.Context, address, path string, at time.Time) (*entity.DownloadRecord, error)
	AddUpload(ctx context.Context, address, path string, at time.Time, fileCount int) (*entity.UploadRecord, error)
	ListDownloads(ctx context.Context) ([]*entity.DownloadRecord, error)
	ListUploads(ctx context.Context) ([]*entity.UploadRecord, error)
	ListDirectories(ctx context.Context) ([]*entity.Directory, error)
	ResetSession(ctx context.Context) (entity.ResetResult, error)
}

// ProbeFunc reports whether address is reachable. It should honor ctx,
// the sweep stops waiting for it at the deadline anyway.
type ProbeFunc func(ctx context.Context, address string) (bool, error)

type EventPublisher interface {
	Publish(kind string, payload any)
}

type Config struct {
	ProbeTimeout time.Duration
	Workers      int
}

type sessionService struct {
	cfg     Config
	fs      afero.Fs
	repo    SessionRepository
	probe   ProbeFunc
	events  EventPublisher
	metrics Metrics
	now     func() time.Time
	log     *slog.Logger
}

func NewSessionService(cfg Config, fs afero.Fs, repo SessionRepository, probe ProbeFunc,
	events EventPublisher, metrics Metrics, log *slog.Logger) *sessionService {
	if metrics == nil {
		metrics = noopMetrics{}
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return &sessionService{
		cfg:     cfg,
		fs:      fs,
		repo:    repo,
		probe:   probe,
		events:  events,
		metrics: metrics,
		now:     time.Now,
		log:     log.With(slog.String("service", serviceName)),
	}
}

// Identify creates the client for address. A second call for the same address
// fails with common.ErrAlreadyIdentified and keeps the first label.
func (s *sessionService) Identify(ctx context.Context, address, label string) (*entity.Client, error) {
	label, err := normalizeLabel(label)
	if err != nil {
		return nil, err
	}

	client, err := s.repo.CreateClient(ctx, address, label, s.now())
	if err != nil {
		if errors.Is(err, common.ErrAlreadyIdentified) {
			return nil, err
		}

		s.log.Error("Cannot create client", slog.String("address", address), slog.Any("error", err))

		return nil, fmt.Errorf("cannot identify %s: %w", address, err)
	}

	s.log.Info("Client identified", slog.String("address", address), slog.String("label", label))
	s.events.Publish(entity.EventIdentify, client)

	return client, nil
}

// normalizeLabel trims label and checks it can be used as a single directory name.
func normalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", common.ErrLabelRequired
	}

	if utf8.RuneCountInString(label) > maxLabelLength || strings.HasPrefix(label, ".") {
		return "", common.ErrInvalidLabel
	}

	for _, r := range label {
		if r == '/' || r == '\\' || r == ':' || unicode.IsControl(r) {
			return "", common.ErrInvalidLabel
		}
	}

	return label, nil
}

// Resolve looks the client up without touching it. Unknown addresses get common.ErrNotFound.
func (s *sessionService) Resolve(ctx context.Context, address string) (*entity.Client, error) {
	client, err := s.repo.GetClient(ctx, address)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("cannot resolve %s: %w", address, err)
	}

	return client, nil
}

// Touch marks a known client active. Unknown addresses are ignored.
func (s *sessionService) Touch(ctx context.Context, address string) error {
	if _, err := s.repo.SetClientState(ctx, address, true, s.now()); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("cannot touch %s: %w", address, err)
	}

	return nil
}

func (s *sessionService) RecordDownload(ctx context.Context, address, path string) (*entity.DownloadRecord, error) {
	at := s.now()

	rec, err := s.repo.AddDownload(ctx, address, path, at)
	if err != nil {
		s.log.Warn("Cannot record download", slog.String("address", address), slog.String("path", path), slog.Any("error", err))

		return nil, err
	}

	s.metrics.RecordTransfer(entity.AuditKindDownload, 0)
	s.events.Publish(entity.EventDownload, entity.AuditEntry{
		Kind: entity.AuditKindDownload, Time: at, Address: address, Path: path,
	})

	return rec, nil
}

func (s *sessionService) RecordUpload(ctx context.Context, address, path string, fileCount int) (*entity.UploadRecord, error) {
	at := s.now()

	rec, err := s.repo.AddUpload(ctx, address, path, at, fileCount)
	if err != nil {
		s.log.Warn("Cannot record upload", slog.String("address", address), slog.String("path", path), slog.Any("error", err))

		return nil, err
	}

	s.metrics.RecordTransfer(entity.AuditKindUpload, fileCount)
	s.events.Publish(entity.EventUpload, entity.AuditEntry{
		Kind: entity.AuditKindUpload, Time: at, Address: address, Path: path, FileCount: fileCount,
	})

	return rec, nil
}

func (s *sessionService) ListClients(ctx context.Context) ([]*entity.Client, error) {
	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list clients: %w", err)
	}

	return clients, nil
}

// ResetSession removes every client and transfer record. Directories stay.
func (s *sessionService) ResetSession(ctx context.Context) (entity.ResetResult, error) {
	res, err := s.repo.ResetSession(ctx)
	if err != nil {
		s.log.Error("Cannot reset session", slog.Any("error", err))

		return entity.ResetResult{}, fmt.Errorf("cannot reset session: %w", err)
	}

	s.log.Warn("Session reset", slog.Int("clients", res.Clients), slog.Int("downloads", res.Downloads), slog.Int("uploads", res.Uploads))
	s.metrics.RecordReset(res)
	s.events.Publish(entity.EventSessionReset, res)

	return res, nil
}
