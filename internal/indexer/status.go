package indexer

import (
	"context"
	"sync/atomic"
	"time"

	"material-search/internal/assets"
	"material-search/internal/metrics"
)

// Status holds the counters reported by /api/status. All fields are updated
// atomically so readers never block the indexer.
type Status struct {
	images      atomic.Int64
	videos      atomic.Int64
	videoFrames atomic.Int64

	scanning     atomic.Bool
	scannedFiles atomic.Int64
	scanStarted  atomic.Int64
	lastScan     atomic.Int64
}

// Snapshot is a point-in-time copy of Status.
type Snapshot struct {
	Images       int64     `json:"total_images"`
	Videos       int64     `json:"total_videos"`
	VideoFrames  int64     `json:"total_video_frames"`
	Scanning     bool      `json:"scanning"`
	ScannedFiles int64     `json:"scanned_files"`
	ScanStarted  time.Time `json:"scan_started,omitzero"`
	LastScan     time.Time `json:"last_scan,omitzero"`
}

// Snapshot returns the current values.
func (s *Status) Snapshot() Snapshot {
	return Snapshot{
		Images:       s.images.Load(),
		Videos:       s.videos.Load(),
		VideoFrames:  s.videoFrames.Load(),
		Scanning:     s.scanning.Load(),
		ScannedFiles: s.scannedFiles.Load(),
		ScanStarted:  unixNanoTime(s.scanStarted.Load()),
		LastScan:     unixNanoTime(s.lastScan.Load()),
	}
}

// Counts returns the library counters.
func (s *Status) Counts() assets.Counts {
	return assets.Counts{
		Images:      s.images.Load(),
		Videos:      s.videos.Load(),
		VideoFrames: s.videoFrames.Load(),
	}
}

// IsScanning reports whether a full scan is running.
func (s *Status) IsScanning() bool {
	return s.scanning.Load()
}

// Refresh reloads the counters from the store. On error the previous values
// are kept.
func (s *Status) Refresh(ctx context.Context, store assets.Store) error {
	c, err := assets.LoadCounts(ctx, store)
	if err != nil {
		return err
	}
	s.SetCounts(c)
	return nil
}

// SetCounts overwrites the library counters.
func (s *Status) SetCounts(c assets.Counts) {
	s.images.Store(c.Images)
	s.videos.Store(c.Videos)
	s.videoFrames.Store(c.VideoFrames)

	metrics.AssetsTotal.WithLabelValues("image").Set(float64(c.Images))
	metrics.AssetsTotal.WithLabelValues("video").Set(float64(c.Videos))
	metrics.AssetsTotal.WithLabelValues("video_frame").Set(float64(c.VideoFrames))
}

// SetLastScan records when the last full scan finished.
func (s *Status) SetLastScan(t time.Time) {
	if t.IsZero() {
		s.lastScan.Store(0)
		return
	}
	s.lastScan.Store(t.UnixNano())
}

// beginScan flips the scanning flag. It returns false when a scan is
// already running.
func (s *Status) beginScan(now time.Time) bool {
	if !s.scanning.CompareAndSwap(false, true) {
		return false
	}
	s.scannedFiles.Store(0)
	s.scanStarted.Store(now.UnixNano())
	metrics.ScanIsRunning.Set(1)
	return true
}

func (s *Status) endScan() {
	s.scanStarted.Store(0)
	s.scanning.Store(false)
	metrics.ScanIsRunning.Set(0)
}

func unixNanoTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
