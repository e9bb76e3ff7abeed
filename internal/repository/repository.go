package repository

import (
	"context"
	"time"

	"github.com/jgivc/netfshare/internal/entity"
)

// Store is the registry store: directories, clients and transfer records.
// Every method is atomic on its own. Not-found lookups return common.ErrNotFound,
// record inserts report common.ErrUnknownClient / common.ErrUnknownDirectory.
type Store interface {
	InsertDirectory(ctx context.Context, path string) (*entity.Directory, bool, error)
	ListDirectories(ctx context.Context) ([]*entity.Directory, error)
	GetDirectory(ctx context.Context, id uint64) (*entity.Directory, error)
	GetDirectoryByPath(ctx context.Context, path string) (*entity.Directory, error)
	UpdateDirectoryMode(ctx context.Context, id uint64, mode entity.ShareMode) (*entity.Directory, error)

	CreateClient(ctx context.Context, address, label string, now time.Time) (*entity.Client, error)
	GetClient(ctx context.Context, address string) (*entity.Client, error)
	ListClients(ctx context.Context) ([]*entity.Client, error)
	SetClientState(ctx context.Context, address string, active bool, seen time.Time) (*entity.Client, error)

	AddDownload(ctx context.Context, address, path string, at time.Time) (*entity.DownloadRecord, error)
	AddUpload(ctx context.Context, address, path string, at time.Time, fileCount int) (*entity.UploadRecord, error)
	ListDownloads(ctx context.Context) ([]*entity.DownloadRecord, error)
	ListUploads(ctx context.Context) ([]*entity.UploadRecord, error)
	ResetSession(ctx context.Context) (entity.ResetResult, error)

	Close() error
}
