// Package watcher provides OS-level file watching for documents.
// It uses fsnotify for cross-platform file system event monitoring.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"pagewatch/internal/watchqueue"
)

// Event is one raw notification for a watched document.
//
// Type follows the watchqueue event vocabulary (change, add, unlink,
// error). Watcher infrastructure errors are surfaced as EventError events
// rather than a separate channel, so the consumer sees one ordered stream.
type Event struct {
	Path  string
	Type  watchqueue.EventType
	Stats *watchqueue.FileStats
}

// Watcher watches individual document files for changes.
//
// fsnotify watches are registered on the parent directories, not the
// files themselves: editors and sync clients commonly replace a file by
// rename, which silently drops a file-level watch.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	files   map[string]struct{} // absolute paths of watched documents
	dirs    map[string]struct{} // directories registered with fsnotify
}

// New creates a new Watcher instance.
// The watcher must be started with Start() before it will emit events.
func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher: fsw,
		events:  make(chan Event, 100),
		done:    make(chan struct{}),
		files:   make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
	}, nil
}

// Start begins watching the given document paths.
// Returns an error if no path's parent directory can be watched.
func (w *Watcher) Start(paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if len(paths) == 0 {
		return fmt.Errorf("no paths to watch")
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		dir := filepath.Dir(abs)
		if _, ok := w.dirs[dir]; !ok {
			if err := w.watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", dir, err)
			}
			w.dirs[dir] = struct{}{}
		}
		w.files[abs] = struct{}{}
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and cleans up resources.
// It blocks until the event processing goroutine has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()
	close(w.events)

	return nil
}

// Events returns the channel that emits notifications.
// The channel is closed when the watcher is stopped.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// processEvents converts fsnotify events into watched-document Events.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := w.convertEvent(event); ok {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.events <- Event{Type: watchqueue.EventError, Path: err.Error()}:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event onto a watched document.
// Returns false for events on paths we do not track or for operations the
// engine does not care about (chmod).
func (w *Watcher) convertEvent(event fsnotify.Event) (Event, bool) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return Event{}, false
	}

	w.mu.Lock()
	_, tracked := w.files[abs]
	w.mu.Unlock()
	if !tracked {
		return Event{}, false
	}

	var typ watchqueue.EventType
	switch {
	case event.Has(fsnotify.Create):
		typ = watchqueue.EventAdd
	case event.Has(fsnotify.Write):
		typ = watchqueue.EventChange
	case event.Has(fsnotify.Remove):
		typ = watchqueue.EventUnlink
	case event.Has(fsnotify.Rename):
		// A replaced file reappears as a create; the rename itself means
		// the old inode is gone.
		typ = watchqueue.EventUnlink
	default:
		return Event{}, false
	}

	return Event{Path: abs, Type: typ, Stats: statFile(abs)}, true
}

// statFile collects optional filesystem metadata for an event.
// Returns nil when the file is already gone.
func statFile(path string) *watchqueue.FileStats {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return &watchqueue.FileStats{
		Size:        info.Size(),
		Modified:    info.ModTime(),
		IsFile:      info.Mode().IsRegular(),
		IsDirectory: info.IsDir(),
	}
}
