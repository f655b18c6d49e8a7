package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"material-search/internal/filesystem"
	"material-search/internal/logging"
	"material-search/internal/metrics"
	"material-search/internal/queue"
)

// Publisher receives a notification for every index change.
type Publisher interface {
	Publish(kind, path string)
}

// notifier holds the optional Publisher shared by the indexer and scanner.
type notifier struct {
	mu        sync.RWMutex
	publisher Publisher
}

// SetPublisher sets where index changes are announced.
func (n *notifier) SetPublisher(p Publisher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.publisher = p
}

func (n *notifier) publish(kind, path string) {
	n.mu.RLock()
	p := n.publisher
	n.mu.RUnlock()
	if p != nil {
		p.Publish(kind, path)
	}
}

// Incremental applies debounced watcher batches to the index, one batch at
// a time.
type Incremental struct {
	notifier

	extractor *Extractor
	locks     *PathLocks
	status    *Status

	wg sync.WaitGroup
}

// NewIncremental creates an indexer sharing locks and status with the
// scanner.
func NewIncremental(extractor *Extractor, locks *PathLocks, status *Status) *Incremental {
	return &Incremental{
		extractor: extractor,
		locks:     locks,
		status:    status,
	}
}

// Run starts the worker goroutine that processes batches until the channel
// is closed.
func (ix *Incremental) Run(ctx context.Context, batches <-chan queue.Batch) {
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		logging.Info("Incremental indexer started")
		for batch := range batches {
			ix.ProcessBatch(ctx, batch)
		}
		logging.Info("Incremental indexer stopped")
	}()
}

// Wait blocks until the worker has processed the final batch.
func (ix *Incremental) Wait() {
	ix.wg.Wait()
}

// ProcessBatch handles every entry of batch. Failures are logged and counted
// per entry and never abort the batch.
func (ix *Incremental) ProcessBatch(ctx context.Context, batch queue.Batch) {
	start := time.Now()
	defer func() {
		metrics.IndexerBatchDuration.Observe(time.Since(start).Seconds())
	}()

	paths := make([]string, 0, len(batch))
	for p := range batch {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	logging.Info("Processing %d file changes", len(paths))

	changed := false
	for _, path := range paths {
		outcome, err := ix.handle(ctx, path, batch[path])
		result := outcome.String()
		if err != nil {
			result = "error"
			logging.Error("Failed to process %s (%s): %v", path, batch[path], err)
		}
		metrics.IndexerItemsTotal.WithLabelValues("watch", result).Inc()

		if outcome == Indexed || outcome == Removed {
			changed = true
			ix.publish(outcome.String(), path)
		}
	}

	if changed {
		if err := ix.status.Refresh(ctx, ix.extractor.Store()); err != nil {
			logging.Warn("Failed to refresh counters: %v", err)
		}
	}
	logging.Info("Processed %d file changes in %v", len(paths), time.Since(start))
}

// handle processes one entry under its path lock.
func (ix *Incremental) handle(ctx context.Context, path string, kind queue.EventKind) (Outcome, error) {
	if kind == queue.Deleted {
		unlock := ix.locks.Lock(path)
		defer unlock()
		return guard(path, func() (Outcome, error) { return ix.extractor.Remove(ctx, path) })
	}

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if errors.Is(err, os.ErrNotExist) {
		logging.Debug("File no longer exists, skipping: %s", path)
		return Skipped, nil
	}
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("stat").Inc()
		return Skipped, err
	}
	if info.IsDir() {
		return Skipped, nil
	}

	unlock := ix.locks.Lock(path)
	defer unlock()
	return guard(path, func() (Outcome, error) { return ix.extractor.Index(ctx, path, info) })
}

// guard runs fn and turns a panic into an error for that path only.
func guard(path string, fn func() (Outcome, error)) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Panic while processing %s: %v\n%s", path, r, debug.Stack())
			outcome, err = Skipped, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
