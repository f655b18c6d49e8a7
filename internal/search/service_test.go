package search

import (
	"context"
	"errors"
	"image"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"material-search/internal/assets"
)

// memStore serves fixed vectors; unused Store methods panic via the nil
// embedded interface.
type memStore struct {
	assets.Store
	images     []assets.ImageVector
	videos     []assets.VideoFrames
	lastFilter assets.Filter
}

func (m *memStore) ListImageVectors(_ context.Context, f assets.Filter) ([]assets.ImageVector, error) {
	m.lastFilter = f
	return m.images, nil
}

func (m *memStore) ListVideoFrames(_ context.Context, f assets.Filter) ([]assets.VideoFrames, error) {
	m.lastFilter = f
	return m.videos, nil
}

func (m *memStore) ImageVectorByID(_ context.Context, id int64) (assets.Vector, error) {
	for _, img := range m.images {
		if img.ID == id {
			return img.Vector, nil
		}
	}
	return nil, assets.ErrNotFound
}

// textEmbedder maps known prompts to fixed vectors.
type textEmbedder struct {
	text  map[string]assets.Vector
	image assets.Vector
}

func (e textEmbedder) EmbedImages(_ context.Context, imgs []image.Image) ([]assets.Vector, error) {
	out := make([]assets.Vector, len(imgs))
	for i := range out {
		out[i] = e.image
	}
	return out, nil
}

func (e textEmbedder) EmbedText(_ context.Context, text string) (assets.Vector, error) {
	v, ok := e.text[text]
	if !ok {
		return nil, errors.New("unknown prompt")
	}
	return v, nil
}

func (e textEmbedder) Dimension() int { return 2 }
func (e textEmbedder) Close() error   { return nil }

type stubDecoder struct{}

func (stubDecoder) Load(string) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func vec(a, b float32) assets.Vector {
	return assets.Vector{a, b}.Normalize()
}

func newTestService() (*Service, *memStore) {
	mtime := time.Unix(1_700_000_000, 0)
	store := &memStore{
		images: []assets.ImageVector{
			{ID: 1, Path: "/lib/cat.jpg", ModTime: mtime, Vector: vec(1, 0)},
			{ID: 2, Path: "/lib/dog.jpg", ModTime: mtime, Vector: vec(0, 1)},
			{ID: 3, Path: "/lib/catdog.jpg", ModTime: mtime, Vector: vec(1, 1)},
		},
		videos: []assets.VideoFrames{
			{ID: 10, Path: "/lib/pets.mp4", ModTime: mtime, Frames: []assets.FrameVector{
				{Index: 0, Vector: vec(0, 1)},
				{Index: 2, Vector: vec(1, 0.2)},
				{Index: 4, Vector: vec(1, 0)},
				{Index: 6, Vector: vec(1, 0.5)},
				{Index: 8, Vector: vec(0, 1)},
			}},
			{ID: 11, Path: "/lib/dogs.mp4", ModTime: mtime, Frames: []assets.FrameVector{
				{Index: 0, Vector: vec(0, 1)},
			}},
		},
	}
	emb := textEmbedder{
		text:  map[string]assets.Vector{"cat": vec(1, 0), "dog": vec(0, 1)},
		image: vec(1, 0),
	}
	return NewService(store, emb, stubDecoder{}), store
}

func TestMatchTextToImage(t *testing.T) {
	svc, _ := newTestService()

	req := NewRequest()
	req.Type = TextToImage
	req.Positive = "cat"

	res, err := svc.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	var paths []string
	for _, r := range res.Images {
		paths = append(paths, r.Path)
	}
	want := []string{"/lib/cat.jpg", "/lib/catdog.jpg"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if res.Images[0].URL != "api/get_image/1" {
		t.Errorf("URL = %q", res.Images[0].URL)
	}
}

func TestMatchNegativePrompt(t *testing.T) {
	svc, _ := newTestService()

	req := NewRequest()
	req.Type = TextToImage
	req.Positive = "cat"
	req.Negative = "dog"
	req.NegativeThreshold = 50

	res, err := svc.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(res.Images) != 1 || res.Images[0].Path != "/lib/cat.jpg" {
		t.Errorf("images = %+v, want only cat.jpg", res.Images)
	}
}

func TestMatchTopNAndFilter(t *testing.T) {
	svc, store := newTestService()

	req := NewRequest()
	req.Type = TextToImage
	req.TopN = 2
	req.Path = "cat"
	req.StartTime = 100
	req.PositiveThreshold = 0

	res, err := svc.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(res.Images) != 2 {
		t.Errorf("len = %d, want 2", len(res.Images))
	}
	if store.lastFilter.PathContains != "cat" || store.lastFilter.ModifiedFrom.Unix() != 100 || !store.lastFilter.ModifiedTo.IsZero() {
		t.Errorf("filter = %+v", store.lastFilter)
	}
}

func TestMatchTextToVideoSegment(t *testing.T) {
	svc, _ := newTestService()

	req := NewRequest()
	req.Type = TextToVideo
	req.Positive = "cat"

	res, err := svc.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(res.Videos) != 1 {
		t.Fatalf("videos = %+v, want one", res.Videos)
	}
	v := res.Videos[0]
	if v.Path != "/lib/pets.mp4" || v.StartTime != 2 || v.EndTime != 6 {
		t.Errorf("video = %+v, want pets.mp4 2..6", v)
	}
	if math.Abs(v.Score-1) > 1e-6 {
		t.Errorf("score = %v, want best frame 1", v.Score)
	}
	if !strings.HasPrefix(v.URL, "api/get_video/") || !strings.HasSuffix(v.URL, "#t=2,6") {
		t.Errorf("URL = %q", v.URL)
	}
}

func TestMatchImageQueries(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		wantErr  error
		wantHits int
	}{
		{name: "upload to image", req: Request{Type: UploadToImage, UploadPath: "/tmp/u", ImageThreshold: 75}, wantHits: 1},
		{name: "stored to image", req: Request{Type: StoredToImage, ImageID: 2, ImageThreshold: 75}, wantHits: 1},
		{name: "stored to video", req: Request{Type: StoredToVideo, ImageID: 1, ImageThreshold: 90}, wantHits: 1},
		{name: "upload missing", req: Request{Type: UploadToVideo}, wantErr: ErrNoQuery},
		{name: "stored missing id", req: Request{Type: StoredToImage, ImageID: -1}, wantErr: ErrNoQuery},
		{name: "stored unknown id", req: Request{Type: StoredToImage, ImageID: 99}, wantErr: assets.ErrNotFound},
		{name: "unknown type", req: Request{Type: 9}, wantErr: ErrUnknownSearchType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			res, err := svc.Match(context.Background(), tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Match() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got := len(res.Images) + len(res.Videos); got != tt.wantHits {
				t.Errorf("hits = %d, want %d (%+v)", got, tt.wantHits, res)
			}
		})
	}
}

func TestMatchTextImageScore(t *testing.T) {
	svc, _ := newTestService()

	res, err := svc.Match(context.Background(), Request{Type: TextImageScore, Positive: "cat", UploadPath: "/tmp/u"})
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if res.Score == nil || math.Abs(*res.Score-100) > 1e-4 {
		t.Errorf("Score = %v, want 100", res.Score)
	}
}

func TestBestSegment(t *testing.T) {
	tests := []struct {
		scores             []float64
		best, first, last  int
		ok                 bool
	}{
		{scores: []float64{0, 0}, ok: false},
		{scores: []float64{0.4, 0.5, 0, 0.9}, best: 3, first: 3, last: 3, ok: true},
		{scores: []float64{0.4, 0.5, 0.3, 0}, best: 1, first: 0, last: 2, ok: true},
	}
	for _, tt := range tests {
		best, first, last, ok := bestSegment(tt.scores)
		if ok != tt.ok || (ok && (best != tt.best || first != tt.first || last != tt.last)) {
			t.Errorf("bestSegment(%v) = %d, %d, %d, %v; want %d, %d, %d, %v",
				tt.scores, best, first, last, ok, tt.best, tt.first, tt.last, tt.ok)
		}
	}
}

func TestVideoPathRoundTrip(t *testing.T) {
	path := "/lib/Ünïcode dir/clip?.mp4"
	got, err := DecodeVideoPath(EncodeVideoPath(path))
	if err != nil || got != path {
		t.Errorf("round trip = %q, %v", got, err)
	}
	if _, err := DecodeVideoPath("%%%"); err == nil {
		t.Error("DecodeVideoPath(garbage) error = nil")
	}
}
