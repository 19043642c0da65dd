package snapshot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/eihwaz/internal/checksum"
	"github.com/starford/eihwaz/internal/models"
)

// Importer applies a snapshot to the store (full replace).
type Importer func(*models.Snapshot) error

// Watcher watches a directory for *.json snapshot files and imports them.
// Files whose checksum was registered via MarkWritten (our own exports) are
// skipped, so exporting into the watched directory does not trigger a
// redundant re-import.
type Watcher struct {
	dir      string
	importer Importer
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{} // checksums already written or imported
}

// NewWatcher creates a watcher over dir. The directory is created if absent.
func NewWatcher(dir string, importer Importer, logger *slog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		importer: importer,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}, nil
}

// MarkWritten registers the checksum of a snapshot this process exported.
func (w *Watcher) MarkWritten(sum string) {
	w.mu.Lock()
	w.seen[sum] = struct{}{}
	w.mu.Unlock()
}

// Run processes file change events until ctx is cancelled. Write bursts are
// debounced so a snapshot is imported once, after it has settled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("snapshot watcher: started", slog.String("dir", w.dir))

	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(200 * time.Millisecond)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			w.logger.Info("snapshot watcher: stopped")
			return nil

		case <-settleCh:
			for path := range pending {
				w.importFile(path)
				delete(pending, path)
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
				continue
			}
			pending[ev.Name] = struct{}{}
			schedule()

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("snapshot watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// importFile imports one snapshot file unless its checksum was already seen.
func (w *Watcher) importFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("snapshot watcher: read failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	sum := checksum.Sum(data)
	w.mu.Lock()
	_, dup := w.seen[sum]
	if !dup {
		w.seen[sum] = struct{}{}
	}
	w.mu.Unlock()
	if dup {
		w.logger.Debug("snapshot watcher: skipped known snapshot", slog.String("path", path))
		return
	}

	snap, err := ReadFile(path)
	if err != nil {
		w.logger.Warn("snapshot watcher: decode failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := w.importer(snap); err != nil {
		w.logger.Warn("snapshot watcher: import failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	w.logger.Info("snapshot watcher: imported",
		slog.String("path", path),
		slog.Int("nodes", len(snap.Nodes)),
		slog.Int("contents", len(snap.Contents)))
}
