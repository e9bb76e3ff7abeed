package tree

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/spf13/afero"
)

// treeStorage lists the immediate subdirectories of the shared root.
type treeStorage struct {
	running  atomic.Bool
	fs       afero.Fs
	root     string
	excluded map[string]struct{}
	log      *slog.Logger
}

func NewTreeStorage(fs afero.Fs, root string, excludedNames []string, log *slog.Logger) *treeStorage {
	excluded := make(map[string]struct{}, len(excludedNames))
	for _, name := range excludedNames {
		excluded[name] = struct{}{}
	}

	return &treeStorage{
		fs:       fs,
		root:     root,
		excluded: excluded,
		log:      log.With(slog.String("item", "TreeStorage")),
	}
}

// Scan returns the names of top-level directories in listing order.
// Only one scan runs at a time, a concurrent call gets common.ErrReconcileInProgress.
func (t *treeStorage) Scan(ctx context.Context) ([]string, error) {
	if !t.running.CompareAndSwap(false, true) {
		return nil, common.ErrReconcileInProgress
	}
	defer t.running.Store(false)

	return t.List(ctx)
}

// List is Scan without the single-run guard, used on read paths.
func (t *treeStorage) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(t.fs, t.root)
	if err != nil {
		return nil, fmt.Errorf("cannot read share root %s: %w", t.root, err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, skip := t.excluded[entry.Name()]; skip {
			t.log.Debug("Skip excluded dir", slog.String("name", entry.Name()))

			continue
		}

		dirs = append(dirs, entry.Name())
	}

	return dirs, nil
}

// IsDir reports whether name is a non-excluded top-level directory of the shared root.
func (t *treeStorage) IsDir(name string) bool {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}

	if _, skip := t.excluded[name]; skip {
		return false
	}

	stat, err := t.fs.Stat(filepath.Join(t.root, name))
	if err != nil {
		return false
	}

	return stat.IsDir()
}
