package indexer

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"material-search/internal/assets"
	"material-search/internal/media"
	"material-search/internal/queue"
)

// gatedEmbedder blocks every call until release is closed and records the
// highest number of calls in flight at once.
type gatedEmbedder struct {
	countingEmbedder
	entered chan struct{}
	release chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
}

func (e *gatedEmbedder) EmbedImages(ctx context.Context, imgs []image.Image) ([]assets.Vector, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.maxActive.Load()
		if n <= m || e.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	e.entered <- struct{}{}
	<-e.release
	return e.countingEmbedder.EmbedImages(ctx, imgs)
}

func TestScannerAndIncrementalNeverOverlapOnPath(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeJPEG(t, "shared.jpg", 100, 100)

	embedder := &gatedEmbedder{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	loader := media.NewImageLoader(64, 64, false)
	sampler := &media.Sampler{FrameInterval: 2, BatchSize: 2, Prober: env.video, Opener: env.video}
	ex := NewExtractor(env.store, embedder, loader, sampler, env.filter)

	scanner := NewScanner(ex, env.filter, env.locks, env.status, env.store, ScannerConfig{Workers: 1})
	incremental := NewIncremental(ex, env.locks, env.status)

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner.scanFile(ctx, path)
	}()

	select {
	case <-embedder.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("scanner never reached the embedder")
	}

	go func() {
		defer wg.Done()
		incremental.ProcessBatch(ctx, queue.Batch{path: queue.Modified})
	}()

	select {
	case <-embedder.entered:
		t.Fatal("incremental extraction started while the scanner held the path")
	case <-time.After(100 * time.Millisecond):
	}

	close(embedder.release)
	wg.Wait()

	select {
	case <-embedder.entered:
	default:
		t.Error("incremental extraction never ran after the scanner finished")
	}
	if got := embedder.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent extractions = %d, want 1", got)
	}
	if c := env.counts(t); c.Images != 1 {
		t.Errorf("Images = %d, want 1", c.Images)
	}
}
