package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"material-search/internal/logging"
	"material-search/internal/metrics"
	"material-search/internal/pathfilter"
	"material-search/internal/queue"
)

// DefaultEventBuffer is the capacity of the channel between the fsnotify
// reader and the event handler.
const DefaultEventBuffer = 1024

// ErrNoWatchRoots is returned by Start when none of the asset roots exists.
var ErrNoWatchRoots = errors.New("no existing asset path to watch")

// Kind is the type of a file-system change.
type Kind int

const (
	Created Kind = iota + 1
	Modified
	Deleted
	// Moved carries both the old and the new path.
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "create"
	case Modified:
		return "write"
	case Deleted:
		return "remove"
	case Moved:
		return "move"
	default:
		return "unknown"
	}
}

// Event is one file-system change. OldPath is only set for Moved.
type Event struct {
	Kind    Kind
	Path    string
	OldPath string
}

// Enqueuer receives accepted changes.
type Enqueuer interface {
	Enqueue(path string, kind queue.EventKind)
}

// Watcher turns fsnotify notifications for the asset roots into queue
// entries. One goroutine reads fsnotify and only translates; a second
// applies the path filter, registers new directories and enqueues.
type Watcher struct {
	filter *pathfilter.Filter
	queue  Enqueuer
	buffer int

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a stopped watcher. A non-positive buffer uses
// DefaultEventBuffer.
func New(filter *pathfilter.Filter, q Enqueuer, buffer int) *Watcher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Watcher{filter: filter, queue: q, buffer: buffer}
}

// Start registers every directory under the existing asset roots and begins
// delivering events. It returns ErrNoWatchRoots when no root exists.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running.Load() {
		logging.Warn("File watcher already running")
		return nil
	}

	var roots []string
	for _, root := range w.filter.AssetRoots() {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			logging.Warn("Asset path does not exist, not watching: %s", root)
			continue
		}
		roots = append(roots, root)
	}
	if len(roots) == 0 {
		return ErrNoWatchRoots
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return fmt.Errorf("create file watcher: %w", err)
	}
	w.fsw = fsw

	for _, root := range roots {
		n := w.addTree(root)
		logging.Info("Watching %s (%d directories)", root, n)
	}

	events := make(chan Event, w.buffer)
	w.wg.Add(2)
	go w.readLoop(fsw.Events, fsw.Errors, events)
	go w.handleLoop(events)

	w.running.Store(true)
	metrics.WatcherRunning.Set(1)
	logging.Info("File watcher started on %d asset paths", len(roots))
	return nil
}

// Stop closes the fsnotify watcher and waits until every event it already
// delivered has been handed to the queue.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running.Load() {
		return
	}
	if err := w.fsw.Close(); err != nil {
		logging.Error("Failed to close file watcher: %v", err)
	}
	w.wg.Wait()

	w.fsw = nil
	w.running.Store(false)
	metrics.WatcherRunning.Set(0)
	metrics.WatchedDirectories.Set(0)
	logging.Info("File watcher stopped")
}

// Running reports whether the watcher is delivering events.
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// readLoop hands every event fsnotify yields to the handler, blocking while
// the buffer is full. It returns once fsnotify closes its channels.
func (w *Watcher) readLoop(fsEvents <-chan fsnotify.Event, fsErrors <-chan error, events chan<- Event) {
	defer w.wg.Done()
	defer close(events)

	for fsEvents != nil || fsErrors != nil {
		select {
		case fe, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if ev, ok := translate(fe); ok {
				events <- ev
			}

		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (w *Watcher) handleLoop(events <-chan Event) {
	defer w.wg.Done()
	for ev := range events {
		w.HandleEvent(ev)
	}
}

// translate maps an fsnotify notification to an Event. A rename reports the
// old name; the new name arrives as its own Create. Chmod is ignored.
func translate(fe fsnotify.Event) (Event, bool) {
	switch {
	case fe.Has(fsnotify.Create):
		return Event{Kind: Created, Path: fe.Name}, true
	case fe.Has(fsnotify.Write):
		return Event{Kind: Modified, Path: fe.Name}, true
	case fe.Has(fsnotify.Remove), fe.Has(fsnotify.Rename):
		return Event{Kind: Deleted, Path: fe.Name}, true
	default:
		metrics.WatcherEventsTotal.WithLabelValues("chmod").Inc()
		return Event{}, false
	}
}

// HandleEvent filters ev and enqueues what survives. A move is two
// independent decisions: the old path is deleted if it was indexable and
// the new path is created if it is.
func (w *Watcher) HandleEvent(ev Event) {
	metrics.WatcherEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	path := filepath.Clean(ev.Path)

	switch ev.Kind {
	case Moved:
		if ev.OldPath != "" {
			w.enqueue(filepath.Clean(ev.OldPath), queue.Deleted)
		}
		w.created(path)
	case Created:
		w.created(path)
	case Modified:
		if isDir(path) {
			return
		}
		w.enqueue(path, queue.Modified)
	case Deleted:
		w.enqueue(path, queue.Deleted)
	}
}

// created handles a new file, or a new directory whose media files may have
// arrived before its watch was registered.
func (w *Watcher) created(path string) {
	if !isDir(path) {
		w.enqueue(path, queue.Created)
		return
	}
	if w.filter.IsSkipped(path) {
		return
	}

	n := w.addTree(path)
	logging.Debug("Added new directory %s to watcher (%d directories)", path, n)

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if w.filter.IsSkipped(p) {
				return filepath.SkipDir
			}
			return nil
		}
		w.enqueue(p, queue.Created)
		return nil
	})
	if err != nil {
		logging.Warn("Failed to walk new directory %s: %v", path, err)
	}
}

func (w *Watcher) enqueue(path string, kind queue.EventKind) {
	if !w.filter.ShouldWatch(path) {
		metrics.WatcherEventsFiltered.Inc()
		return
	}
	w.queue.Enqueue(path, kind)
}

// addTree registers root and every directory below it, skipping skip roots.
// It returns the number of directories added. Without a running fsnotify
// watcher it does nothing.
func (w *Watcher) addTree(root string) int {
	fsw := w.fsw
	if fsw == nil {
		return 0
	}

	added := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.filter.IsSkipped(path) {
			return filepath.SkipDir
		}
		if addErr := fsw.Add(path); addErr != nil {
			logging.Warn("Failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		added++
		return nil
	})
	if err != nil {
		logging.Error("Failed to walk %s for watcher: %v", root, err)
		metrics.WatcherErrors.Inc()
	}
	metrics.WatchedDirectories.Set(float64(len(fsw.WatchList())))
	return added
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
