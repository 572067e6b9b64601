// internal/worktree/watcher.go
package worktree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher keeps the hash cache honest by dropping entries for files that
// change on disk. OnChange, if set, receives the relative path of every
// changed file.
type Watcher struct {
	wt       *Worktree
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	onChange func(rel string)
	done     chan struct{}
	wg       sync.WaitGroup
}

// Watch starts watching every non-ignored directory under the root
func (w *Worktree) Watch(onChange func(rel string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	watcher := &Watcher{
		wt:       w,
		watcher:  fw,
		logger:   w.logger,
		onChange: onChange,
		done:     make(chan struct{}),
	}

	if err := watcher.addTree(w.root); err != nil {
		fw.Close()
		return nil, err
	}

	watcher.wg.Add(1)
	go watcher.loop()
	return watcher, nil
}

func (wa *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(wa.wt.root, p)
		if err != nil {
			return err
		}
		if wa.wt.ShouldIgnore(rel) {
			return fs.SkipDir
		}
		if err := wa.watcher.Add(p); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

func (wa *Watcher) loop() {
	defer wa.wg.Done()
	for {
		select {
		case <-wa.done:
			return
		case event, ok := <-wa.watcher.Events:
			if !ok {
				return
			}
			wa.handle(event)
		case err, ok := <-wa.watcher.Errors:
			if !ok {
				return
			}
			wa.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (wa *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(wa.wt.root, event.Name)
	if err != nil {
		wa.logger.Error("getting relative path", zap.Error(err))
		return
	}
	rel = filepath.ToSlash(rel)
	if wa.wt.ShouldIgnore(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := wa.addTree(event.Name); err != nil {
				wa.logger.Warn("watching new directory", zap.String("path", rel), zap.Error(err))
			}
			return
		}
	}

	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Chmod) {
		wa.wt.Invalidate(rel)
		if wa.onChange != nil {
			wa.onChange(rel)
		}
	}
}

// Close stops the watcher and waits for its goroutine
func (wa *Watcher) Close() error {
	close(wa.done)
	err := wa.watcher.Close()
	wa.wg.Wait()
	return err
}
