package indexer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"material-search/internal/assets"
	"material-search/internal/database"
	"material-search/internal/media"
	"material-search/internal/mediatypes"
	"material-search/internal/pathfilter"
)

const testDim = 4

// countingEmbedder returns the same unit vector for every image.
type countingEmbedder struct {
	calls  atomic.Int64
	frames atomic.Int64
	err    error
}

func (e *countingEmbedder) EmbedImages(_ context.Context, imgs []image.Image) ([]assets.Vector, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	e.frames.Add(int64(len(imgs)))
	out := make([]assets.Vector, len(imgs))
	for i := range out {
		out[i] = assets.Vector{1, 2, 3, 4}.Normalize()
	}
	return out, nil
}

func (e *countingEmbedder) EmbedText(context.Context, string) (assets.Vector, error) {
	return nil, errors.New("not supported")
}

func (e *countingEmbedder) Dimension() int { return testDim }
func (e *countingEmbedder) Close() error   { return nil }

// panickyLoader panics for paths containing "boom".
type panickyLoader struct {
	inner ImageLoader
}

func (l panickyLoader) Load(path string) (image.Image, error) {
	if strings.Contains(path, "boom") {
		panic("decoder exploded")
	}
	return l.inner.Load(path)
}

// fakeVideo probes every file as the same stream and yields that many
// blank frames.
type fakeVideo struct {
	info   media.VideoInfo
	frames int
}

func (f *fakeVideo) Probe(context.Context, string) (media.VideoInfo, error) {
	return f.info, nil
}

func (f *fakeVideo) Open(_ context.Context, _ string, info media.VideoInfo, _ int64) (media.VideoSource, error) {
	return &fakeSource{info: info, left: f.frames}, nil
}

type fakeSource struct {
	info media.VideoInfo
	left int
}

func (s *fakeSource) Info() media.VideoInfo { return s.info }

func (s *fakeSource) Next() (image.Image, error) {
	if s.left == 0 {
		return nil, io.EOF
	}
	s.left--
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (s *fakeSource) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(kind, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, kind+" "+path)
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type testEnv struct {
	dir      string
	store    *database.SQLiteStore
	embedder *countingEmbedder
	video    *fakeVideo
	filter   *pathfilter.Filter
	locks    *PathLocks
	status   *Status
	ex       *Extractor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	store, err := database.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	filter := pathfilter.New(pathfilter.Config{
		AssetRoots:      []string{dir},
		SkipRoots:       []string{filepath.Join(dir, "skip")},
		IgnoreKeywords:  []string{"thumb"},
		ImageExtensions: mediatypes.NewExtensionSet(mediatypes.DefaultImageExtensions...),
		VideoExtensions: mediatypes.NewExtensionSet(mediatypes.DefaultVideoExtensions...),
	})

	embedder := &countingEmbedder{}
	video := &fakeVideo{info: media.VideoInfo{FPS: 10, TotalFrames: 100}, frames: 5}
	sampler := &media.Sampler{FrameInterval: 2, BatchSize: 2, Prober: video, Opener: video}
	loader := panickyLoader{inner: media.NewImageLoader(64, 64, false)}

	return &testEnv{
		dir:      dir,
		store:    store,
		embedder: embedder,
		video:    video,
		filter:   filter,
		locks:    NewPathLocks(),
		status:   &Status{},
		ex:       NewExtractor(store, embedder, loader, sampler, filter),
	}
}

// writeJPEG writes a w x h image under the env dir and returns its path.
func (e *testEnv) writeJPEG(t *testing.T, name string, w, h int) string {
	t.Helper()

	path := filepath.Join(e.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeFile writes placeholder bytes, enough for stat-based tests.
func (e *testEnv) writeFile(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(e.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *testEnv) counts(t *testing.T) assets.Counts {
	t.Helper()
	c, err := assets.LoadCounts(context.Background(), e.store)
	if err != nil {
		t.Fatalf("LoadCounts() error = %v", err)
	}
	return c
}
