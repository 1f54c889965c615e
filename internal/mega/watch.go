package mega

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// dirWatch records files that appear in a directory while a transfer runs.
type dirWatch struct {
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	seen    map[string]bool
	order   []string
	done    chan struct{}
}

func watchDir(dir string) (*dirWatch, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	dw := &dirWatch{watcher: watcher, seen: make(map[string]bool), done: make(chan struct{})}
	go dw.pump()
	return dw, nil
}

func (dw *dirWatch) pump() {
	defer close(dw.done)
	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				dw.record(event.Name)
			}
		case _, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (dw *dirWatch) record(name string) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if !dw.seen[name] {
		dw.seen[name] = true
		dw.order = append(dw.order, name)
	}
}

// settleDelay lets inotify deliver the last events before the watch closes.
const settleDelay = 200 * time.Millisecond

// Stop ends the watch and returns the created paths that are still regular
// files, in the order they appeared.
func (dw *dirWatch) Stop() []string {
	time.Sleep(settleDelay)
	dw.watcher.Close()
	<-dw.done

	dw.mu.Lock()
	defer dw.mu.Unlock()
	var files []string
	for _, name := range dw.order {
		if isPartial(name) {
			continue
		}
		if info, err := os.Stat(name); err == nil && info.Mode().IsRegular() {
			files = append(files, filepath.Clean(name))
		}
	}
	return files
}

// isPartial matches temporary and hidden files such as megatools'
// .megatmp.* transfers.
func isPartial(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return true
	}
	switch filepath.Ext(name) {
	case ".part", ".tmp":
		return true
	}
	return false
}
