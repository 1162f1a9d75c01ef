package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// Logger is the subset of dsync.Logger the watcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Watcher reports changes under a sync root. Bursts of events are coalesced
// into one callback after a quiet period.
type Watcher struct {
	watcher *fsnotify.Watcher
	root    string
	delay   time.Duration
	logger  Logger
}

// NewWatcher watches root and every folder below it. fsnotify is not
// recursive, so folders created later are added as their events arrive.
func NewWatcher(root string, delay time.Duration, logger Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{watcher: fw, root: root, delay: delay, logger: logger}
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.addDir(p)
	})
	if err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addDir(path string) error {
	if err := w.watcher.Add(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	w.logger.Debug("watching folder", "path", path)
	return nil
}

// Run delivers debounced change notifications to onChange until ctx is
// cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	debounced := debounce.New(w.delay)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addDir(event.Name); err != nil {
						w.logger.Warn("could not watch new folder", "path", event.Name, "error", err)
					}
				}
			}
			debounced(onChange)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
