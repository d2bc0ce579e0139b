// Package workspace lists the immediate child directories of the
// configured workspace root, which clients offer as working directories
// for new sessions.
package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// DirectoryInfo describes one child directory of the workspace root.
type DirectoryInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// List returns the immediate child directories of root, sorted by name.
func List(root string) ([]DirectoryInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read workspace directory: %w", err)
	}

	dirs := make([]DirectoryInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirs = append(dirs, DirectoryInfo{
			Name: entry.Name(),
			Path: filepath.Join(root, entry.Name()),
		})
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	return dirs, nil
}

// Watcher keeps a cached listing of the workspace root fresh by watching
// for filesystem changes, so directory requests never re-stat the tree.
type Watcher struct {
	root string

	mu     sync.RWMutex
	cached []DirectoryInfo

	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	done      chan struct{}
}

// NewWatcher builds the initial listing and starts watching root. The
// root must exist.
func NewWatcher(root string) (*Watcher, error) {
	dirs, err := List(root)
	if err != nil {
		return nil, err
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsW.Add(root); err != nil {
		fsW.Close()
		return nil, err
	}

	w := &Watcher{
		root:      root,
		cached:    dirs,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Directories returns the cached listing.
func (w *Watcher) Directories() []DirectoryInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]DirectoryInfo, len(w.cached))
	copy(out, w.cached)
	return out
}

// watchLoop refreshes the cache on create/remove/rename events, debounced
// so bursts of changes trigger one relist.
func (w *Watcher) watchLoop() {
	defer close(w.done)
	var timer *time.Timer

	for {
		select {
		case <-w.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, w.refresh)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("workspace watcher error: %v", err)
		}
	}
}

func (w *Watcher) refresh() {
	dirs, err := List(w.root)
	if err != nil {
		log.Printf("workspace relist failed: %v", err)
		return
	}

	w.mu.Lock()
	w.cached = dirs
	w.mu.Unlock()
}

// Shutdown stops the watcher.
func (w *Watcher) Shutdown() {
	close(w.cancel)
	w.fsWatcher.Close()
	<-w.done
}
