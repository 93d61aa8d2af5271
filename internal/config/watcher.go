package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
)

// RoutingWatcher reloads the routing table when its file changes. Invalid
// tables are rejected and the previous table stays active.
type RoutingWatcher struct {
	path    string
	onSwap  func(*core.RoutingTable) error
	logger  *logging.Logger
	watcher *fsnotify.Watcher
}

// NewRoutingWatcher creates a watcher for the routing table file. onSwap
// receives every successfully loaded table; returning an error keeps the
// previous table (the hub validates again before swapping).
func NewRoutingWatcher(path string, onSwap func(*core.RoutingTable) error, logger *logging.Logger) (*RoutingWatcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files by rename
	// and the inode-level watch would go stale.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &RoutingWatcher{path: path, onSwap: onSwap, logger: logger, watcher: w}, nil
}

// Run processes file events until ctx is done.
func (rw *RoutingWatcher) Run(ctx context.Context) error {
	defer rw.watcher.Close()

	target, err := filepath.Abs(rw.path)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != target {
				continue
			}
			rw.reload()
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return nil
			}
			rw.logger.Warn("routing watcher error", "error", err)
		}
	}
}

func (rw *RoutingWatcher) reload() {
	table, err := LoadRoutingTable(rw.path)
	if err != nil {
		rw.logger.Error("routing table reload rejected", "path", rw.path, "error", err)
		return
	}
	if err := rw.onSwap(table); err != nil {
		rw.logger.Error("routing table swap rejected", "path", rw.path, "error", err)
		return
	}
	rw.logger.Info("routing table reloaded", "path", rw.path)
}
