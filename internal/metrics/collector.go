package metrics

import (
	"context"
	"time"

	"material-search/internal/logging"
)

// CountsProvider reports the current number of indexed assets.
type CountsProvider interface {
	ImageCount(ctx context.Context) (int64, error)
	VideoCount(ctx context.Context) (int64, error)
	VideoFrameCount(ctx context.Context) (int64, error)
}

// Collector periodically refreshes the asset gauges from the store.
type Collector struct {
	provider CountsProvider
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider CountsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	images, err := c.provider.ImageCount(ctx)
	if err != nil {
		logging.Warn("metrics: failed to count images: %v", err)
		return
	}
	videos, err := c.provider.VideoCount(ctx)
	if err != nil {
		logging.Warn("metrics: failed to count videos: %v", err)
		return
	}
	frames, err := c.provider.VideoFrameCount(ctx)
	if err != nil {
		logging.Warn("metrics: failed to count video frames: %v", err)
		return
	}

	AssetsTotal.WithLabelValues("image").Set(float64(images))
	AssetsTotal.WithLabelValues("video").Set(float64(videos))
	AssetsTotal.WithLabelValues("video_frame").Set(float64(frames))

	logging.Debug("Metrics collected: images=%d, videos=%d, frames=%d", images, videos, frames)
}
