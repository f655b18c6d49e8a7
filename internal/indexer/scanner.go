package indexer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"material-search/internal/filesystem"
	"material-search/internal/logging"
	"material-search/internal/metrics"
	"material-search/internal/pathfilter"
	"material-search/internal/workers"
)

// DefaultScanInterval is the period between automatic scans.
const DefaultScanInterval = 6 * time.Hour

// ErrScanInProgress is returned when a scan is requested while one runs.
var ErrScanInProgress = errors.New("scan already in progress")

// ScanRecorder persists when the last full scan finished.
type ScanRecorder interface {
	LastScan(ctx context.Context) (time.Time, error)
	SetLastScan(ctx context.Context, t time.Time) error
}

// Throttle holds scan workers back under memory pressure.
type Throttle interface {
	Wait(ctx context.Context) error
}

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	// Workers is the number of files extracted in parallel. Zero uses
	// workers.ForCPU.
	Workers int
	// AutoScan runs a scan every Interval, timed from the last recorded one.
	AutoScan bool
	Interval time.Duration
	// Throttle, when set, is consulted before each file.
	Throttle Throttle
}

// Scanner walks every asset root, indexes new and changed files and drops
// records whose files are gone. It shares PathLocks with Incremental so a
// path is never extracted by both at once.
type Scanner struct {
	notifier

	extractor *Extractor
	filter    *pathfilter.Filter
	locks     *PathLocks
	status    *Status
	recorder  ScanRecorder

	throttle Throttle

	workers  int
	autoScan bool
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScanner creates a scanner. Call Start to enable automatic scans.
func NewScanner(extractor *Extractor, filter *pathfilter.Filter, locks *PathLocks, status *Status, recorder ScanRecorder, cfg ScannerConfig) *Scanner {
	n := cfg.Workers
	if n <= 0 {
		n = workers.ForCPU(0)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scanner{
		extractor: extractor,
		filter:    filter,
		locks:     locks,
		status:    status,
		recorder:  recorder,
		throttle:  cfg.Throttle,
		workers:   n,
		autoScan:  cfg.AutoScan,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start loads the last scan time and, when enabled, starts periodic scans.
func (s *Scanner) Start() {
	last, err := s.recorder.LastScan(s.ctx)
	if err != nil {
		logging.Warn("Failed to read last scan time: %v", err)
	}
	s.status.SetLastScan(last)

	if !s.autoScan {
		return
	}
	logging.Info("Automatic scans enabled (interval: %v)", s.interval)
	s.wg.Add(1)
	go s.autoScanLoop(last)
}

// Stop cancels a running scan and waits for background work to finish.
func (s *Scanner) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scanner) autoScanLoop(last time.Time) {
	defer s.wg.Done()

	delay := time.Until(last.Add(s.interval))
	if delay < 0 {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			logging.Debug("Periodic scan triggered")
			if err := s.Scan(s.ctx); err != nil && !errors.Is(err, ErrScanInProgress) && !errors.Is(err, context.Canceled) {
				logging.Error("Periodic scan failed: %v", err)
			}
			timer.Reset(s.interval)
		}
	}
}

// TriggerScan starts a scan in the background. It returns false when one is
// already running.
func (s *Scanner) TriggerScan() bool {
	if !s.status.beginScan(time.Now()) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Manually triggered scan failed: %v", err)
		}
	}()
	return true
}

// Scan runs a full scan and blocks until it completes.
func (s *Scanner) Scan(ctx context.Context) error {
	if !s.status.beginScan(time.Now()) {
		return ErrScanInProgress
	}
	return s.run(ctx)
}

// run performs the scan. The caller must have called beginScan.
func (s *Scanner) run(ctx context.Context) error {
	defer s.status.endScan()

	metrics.ScanRunsTotal.Inc()
	start := time.Now()
	roots := s.filter.AssetRoots()
	logging.Info("Starting full scan of %d asset paths with %d workers", len(roots), s.workers)

	seen, err := s.walk(ctx, roots)
	if err != nil {
		logging.Warn("Scan interrupted after %d files: %v", s.status.scannedFiles.Load(), err)
		return err
	}

	s.removeMissing(ctx, seen)

	if err := s.status.Refresh(ctx, s.extractor.Store()); err != nil {
		logging.Warn("Failed to refresh counters: %v", err)
	}

	finished := time.Now()
	if err := s.recorder.SetLastScan(ctx, finished); err != nil {
		logging.Warn("Failed to record scan time: %v", err)
	}
	s.status.SetLastScan(finished)

	duration := time.Since(start)
	metrics.ScanLastDuration.Set(duration.Seconds())
	metrics.ScanLastTimestamp.Set(float64(finished.Unix()))

	c := s.status.Counts()
	logging.Info("Scan complete: %d files checked, %d images, %d videos, %d frames in %v",
		len(seen), c.Images, c.Videos, c.VideoFrames, duration)
	return nil
}

// walk feeds every indexable file under roots to the worker pool and
// returns the set of paths it found.
func (s *Scanner) walk(ctx context.Context, roots []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	jobs := make(chan string, s.workers*4)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, root := range roots {
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					logging.Warn("Error accessing path %s: %v", path, err)
					return nil
				}
				if d.IsDir() {
					if s.filter.IsSkipped(path) {
						return filepath.SkipDir
					}
					return nil
				}
				if !s.filter.ShouldWatch(path) {
					return nil
				}

				seen[path] = struct{}{}
				select {
				case jobs <- path:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for path := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if s.throttle != nil {
					if err := s.throttle.Wait(gctx); err != nil {
						return err
					}
				}
				s.scanFile(gctx, path)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return seen, nil
}

// scanFile indexes path when its record is missing or stale.
func (s *Scanner) scanFile(ctx context.Context, path string) {
	s.status.scannedFiles.Add(1)

	unlock := s.locks.Lock(path)
	defer unlock()

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("stat").Inc()
		metrics.IndexerItemsTotal.WithLabelValues("scan", "error").Inc()
		logging.Warn("Failed to stat %s: %v", path, err)
		return
	}

	unchanged, err := s.extractor.Unchanged(ctx, path, info)
	if err != nil {
		logging.Warn("Failed to check stored state of %s, re-indexing: %v", path, err)
	} else if unchanged {
		metrics.IndexerItemsTotal.WithLabelValues("scan", "skipped").Inc()
		return
	}

	outcome, err := guard(path, func() (Outcome, error) { return s.extractor.Index(ctx, path, info) })
	if err != nil {
		metrics.IndexerItemsTotal.WithLabelValues("scan", "error").Inc()
		logging.Error("Failed to index %s: %v", path, err)
		return
	}
	metrics.IndexerItemsTotal.WithLabelValues("scan", outcome.String()).Inc()
	if outcome == Indexed {
		s.publish(outcome.String(), path)
	}
}

// removeMissing deletes records for files the walk did not find, unless
// the file exists and still passes the filter.
func (s *Scanner) removeMissing(ctx context.Context, seen map[string]struct{}) {
	store := s.extractor.Store()
	listings := []struct {
		kind string
		list func(context.Context) ([]string, error)
	}{
		{"image", store.ListImagePaths},
		{"video", store.ListVideoPaths},
	}

	removed := 0
	for _, l := range listings {
		paths, err := l.list(ctx)
		if err != nil {
			logging.Error("Failed to list indexed %s paths: %v", l.kind, err)
			continue
		}
		for _, path := range paths {
			if _, ok := seen[path]; ok {
				continue
			}
			if s.filter.ShouldWatch(path) && filesystem.Exists(path) {
				continue
			}
			if s.removeOne(ctx, path) {
				removed++
			}
		}
	}
	if removed > 0 {
		logging.Info("Removed %d missing files from index", removed)
	}
}

func (s *Scanner) removeOne(ctx context.Context, path string) bool {
	unlock := s.locks.Lock(path)
	defer unlock()

	outcome, err := s.extractor.Remove(ctx, path)
	if err != nil {
		metrics.IndexerItemsTotal.WithLabelValues("scan", "error").Inc()
		logging.Error("Failed to remove %s: %v", path, err)
		return false
	}
	metrics.IndexerItemsTotal.WithLabelValues("scan", outcome.String()).Inc()
	if outcome == Removed {
		s.publish(outcome.String(), path)
		return true
	}
	return false
}
