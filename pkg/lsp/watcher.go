package lsp

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watcher re-synchronizes open documents when they change on disk, so edits
// made outside the bridge (an editor, a formatter, a git checkout) reach the
// server without waiting for the next tool call. Directories are watched
// rather than files because many editors replace files on save.
type watcher struct {
	client *Client
	fs     *fsnotify.Watcher
	logger *slog.Logger

	mu   sync.Mutex
	dirs map[string]struct{}

	done chan struct{}
}

func newWatcher(c *Client, logger *slog.Logger) (*watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &watcher{
		client: c,
		fs:     fs,
		logger: logger,
		dirs:   make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// track starts watching the directory containing path.
func (w *watcher) track(path string) {
	dir := filepath.Dir(path)

	w.mu.Lock()
	_, watched := w.dirs[dir]
	if !watched {
		w.dirs[dir] = struct{}{}
	}
	w.mu.Unlock()
	if watched {
		return
	}

	if err := w.fs.Add(dir); err != nil {
		w.logger.Debug("watching directory failed", "dir", dir, "error", err)
	}
}

func (w *watcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if !w.client.IsOpen(event.Name) {
				continue
			}
			if err := w.client.Resync(context.Background(), event.Name); err != nil {
				w.logger.Debug("re-syncing changed file failed", "path", event.Name, "error", err)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Debug("file watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *watcher) close() {
	close(w.done)
	_ = w.fs.Close()
}
