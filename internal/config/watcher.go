package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads the config file when it changes on disk and hands the
// fresh config to a callback. Long-running serve sessions use it so config
// edits take effect without a restart.
type Watcher struct {
	store          *Store
	reloadCallback func(*Config)
	watcher        *fsnotify.Watcher
}

// NewWatcher creates a watcher for the store's config file.
func NewWatcher(store *Store, reloadCallback func(*Config)) (*Watcher, error) {
	watcher, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	return &Watcher{
		store:          store,
		reloadCallback: reloadCallback,
		watcher:        watcher,
	}, nil
}

// Start begins watching the config file until ctx is cancelled. The parent
// directory is watched rather than the file itself: saves go through a
// tmp+rename, which replaces the inode a file watch would be bound to.
func (w *Watcher) Start(ctx context.Context) error {
	if errAdd := w.watcher.Add(filepath.Dir(w.store.Path())); errAdd != nil {
		log.Debugf("config watcher: cannot watch %s: %v", w.store.Path(), errAdd)
		return errAdd
	}
	log.Debugf("watching config file: %s", w.store.Path())

	go w.processEvents(ctx)
	return nil
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("config watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.store.Path() {
		return
	}
	if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
		return
	}
	log.Debugf("config file changed, reloading")
	if w.reloadCallback != nil {
		w.reloadCallback(w.store.Load())
	}
}
