package search

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"sort"
	"time"

	"material-search/internal/assets"
	"material-search/internal/embedding"
	"material-search/internal/logging"
	"material-search/internal/metrics"
)

var (
	// ErrNoQuery is returned when a search needs an uploaded or stored
	// image and none was given.
	ErrNoQuery = errors.New("no query image")
	// ErrUnknownSearchType is returned for unsupported search types.
	ErrUnknownSearchType = errors.New("unsupported search type")
)

// Type selects what is searched and with what.
type Type int

// Search types, numbered as the web client sends them.
const (
	TextToImage    Type = 0
	UploadToImage  Type = 1
	TextToVideo    Type = 2
	UploadToVideo  Type = 3
	TextImageScore Type = 4
	StoredToImage  Type = 5
	StoredToVideo  Type = 6
)

const (
	defaultTopN           = 6
	defaultThreshold      = 30
	defaultImageThreshold = 75
)

func (t Type) String() string {
	switch t {
	case TextToImage:
		return "text_image"
	case UploadToImage:
		return "upload_image"
	case TextToVideo:
		return "text_video"
	case UploadToVideo:
		return "upload_video"
	case TextImageScore:
		return "text_image_score"
	case StoredToImage:
		return "stored_image"
	case StoredToVideo:
		return "stored_video"
	default:
		return "unknown"
	}
}

// NeedsUpload reports whether t queries with the session's uploaded file.
func (t Type) NeedsUpload() bool {
	return t == UploadToImage || t == UploadToVideo || t == TextImageScore
}

// Request is a search as posted to /api/match. Thresholds are percentages.
type Request struct {
	Type              Type    `json:"search_type"`
	TopN              int     `json:"top_n"`
	Positive          string  `json:"positive"`
	Negative          string  `json:"negative"`
	PositiveThreshold float64 `json:"positive_threshold"`
	NegativeThreshold float64 `json:"negative_threshold"`
	ImageThreshold    float64 `json:"image_threshold"`
	ImageID           int64   `json:"img_id"`
	Path              string  `json:"path"`
	StartTime         int64   `json:"start_time"`
	EndTime           int64   `json:"end_time"`

	// UploadPath is filled in by the server from the session.
	UploadPath string `json:"-"`
}

// NewRequest returns a request with the web client's defaults.
func NewRequest() Request {
	return Request{
		TopN:              defaultTopN,
		PositiveThreshold: defaultThreshold,
		NegativeThreshold: defaultThreshold,
		ImageThreshold:    defaultImageThreshold,
		ImageID:           -1,
	}
}

func (r Request) filter() assets.Filter {
	f := assets.Filter{PathContains: r.Path}
	if r.StartTime > 0 {
		f.ModifiedFrom = time.Unix(r.StartTime, 0)
	}
	if r.EndTime > 0 {
		f.ModifiedTo = time.Unix(r.EndTime, 0)
	}
	return f
}

// ImageResult is one ranked image.
type ImageResult struct {
	ID         int64   `json:"id"`
	URL        string  `json:"url"`
	Path       string  `json:"path"`
	Score      float64 `json:"score"`
	ModifyTime int64   `json:"modify_time"`
}

// VideoResult is one ranked video with the best-matching segment in seconds.
type VideoResult struct {
	URL        string  `json:"url"`
	Path       string  `json:"path"`
	Score      float64 `json:"score"`
	StartTime  int64   `json:"start_time"`
	EndTime    int64   `json:"end_time"`
	ModifyTime int64   `json:"modify_time"`
}

// Result holds whichever output the request type produces.
type Result struct {
	Images []ImageResult
	Videos []VideoResult
	// Score is set for TextImageScore, as a percentage.
	Score *float64
}

// ImageDecoder loads a query image from disk.
type ImageDecoder interface {
	Load(path string) (image.Image, error)
}

// Service answers similarity searches over the asset store.
type Service struct {
	store    assets.Store
	embedder embedding.Embedder
	decoder  ImageDecoder
}

// NewService creates a Service. embedder should be the process-wide
// serialized instance.
func NewService(store assets.Store, embedder embedding.Embedder, decoder ImageDecoder) *Service {
	return &Service{store: store, embedder: embedder, decoder: decoder}
}

// Match runs req and returns ranked results truncated to req.TopN.
func (s *Service) Match(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.SearchRequestsTotal.WithLabelValues(req.Type.String(), status).Inc()
		metrics.SearchDuration.WithLabelValues(req.Type.String()).Observe(time.Since(start).Seconds())
	}()

	topN := req.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	switch req.Type {
	case TextToImage:
		res.Images, err = s.imagesByText(ctx, req)
	case TextToVideo:
		res.Videos, err = s.videosByText(ctx, req)
	case UploadToImage, StoredToImage:
		var q assets.Vector
		if q, err = s.queryImage(ctx, req); err == nil {
			res.Images, err = s.rankImages(ctx, req.filter(), q, nil, req.ImageThreshold, 0)
		}
	case UploadToVideo, StoredToVideo:
		var q assets.Vector
		if q, err = s.queryImage(ctx, req); err == nil {
			res.Videos, err = s.rankVideos(ctx, req.filter(), q, nil, req.ImageThreshold, 0)
		}
	case TextImageScore:
		var score float64
		if score, err = s.textImageScore(ctx, req); err == nil {
			res.Score = &score
		}
	default:
		return Result{}, fmt.Errorf("%w: %d", ErrUnknownSearchType, int(req.Type))
	}
	if err != nil {
		return Result{}, err
	}

	if len(res.Images) > topN {
		res.Images = res.Images[:topN]
	}
	if len(res.Videos) > topN {
		res.Videos = res.Videos[:topN]
	}
	logging.Debug("Search %s returned %d images, %d videos in %v", req.Type, len(res.Images), len(res.Videos), time.Since(start))
	return res, nil
}

// textVectors embeds the prompts that are present.
func (s *Service) textVectors(ctx context.Context, req Request) (positive, negative assets.Vector, err error) {
	if req.Positive != "" {
		if positive, err = s.embedder.EmbedText(ctx, req.Positive); err != nil {
			return nil, nil, fmt.Errorf("embed positive prompt: %w", err)
		}
	}
	if req.Negative != "" {
		if negative, err = s.embedder.EmbedText(ctx, req.Negative); err != nil {
			return nil, nil, fmt.Errorf("embed negative prompt: %w", err)
		}
	}
	return positive, negative, nil
}

func (s *Service) imagesByText(ctx context.Context, req Request) ([]ImageResult, error) {
	positive, negative, err := s.textVectors(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.rankImages(ctx, req.filter(), positive, negative, req.PositiveThreshold, req.NegativeThreshold)
}

func (s *Service) videosByText(ctx context.Context, req Request) ([]VideoResult, error) {
	positive, negative, err := s.textVectors(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.rankVideos(ctx, req.filter(), positive, negative, req.PositiveThreshold, req.NegativeThreshold)
}

// queryImage returns the vector of the uploaded file or the stored image.
func (s *Service) queryImage(ctx context.Context, req Request) (assets.Vector, error) {
	if req.Type == StoredToImage || req.Type == StoredToVideo {
		if req.ImageID < 0 {
			return nil, ErrNoQuery
		}
		v, err := s.store.ImageVectorByID(ctx, req.ImageID)
		if err != nil {
			return nil, fmt.Errorf("load image %d: %w", req.ImageID, err)
		}
		return v, nil
	}
	return s.embedUpload(ctx, req.UploadPath)
}

func (s *Service) embedUpload(ctx context.Context, path string) (assets.Vector, error) {
	if path == "" {
		return nil, ErrNoQuery
	}
	img, err := s.decoder.Load(path)
	if err != nil {
		return nil, fmt.Errorf("decode uploaded image: %w", err)
	}
	vecs, err := s.embedder.EmbedImages(ctx, []image.Image{img})
	if err != nil {
		return nil, fmt.Errorf("embed uploaded image: %w", err)
	}
	return vecs[0], nil
}

// textImageScore is the similarity of the prompt and the upload, in percent.
func (s *Service) textImageScore(ctx context.Context, req Request) (float64, error) {
	imgVec, err := s.embedUpload(ctx, req.UploadPath)
	if err != nil {
		return 0, err
	}
	textVec, err := s.embedder.EmbedText(ctx, req.Positive)
	if err != nil {
		return 0, fmt.Errorf("embed prompt: %w", err)
	}
	return Similarity(textVec, imgVec) * 100, nil
}

func (s *Service) rankImages(ctx context.Context, filter assets.Filter, positive, negative assets.Vector, p, n float64) ([]ImageResult, error) {
	images, err := s.store.ListImageVectors(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	vecs := make([][]float32, len(images))
	for i, img := range images {
		vecs[i] = img.Vector
	}
	scores := MatchBatch(positive, negative, vecs, p, n)

	results := make([]ImageResult, 0, len(images))
	for i, img := range images {
		if scores[i] <= 0 {
			continue
		}
		results = append(results, ImageResult{
			ID:         img.ID,
			URL:        fmt.Sprintf("api/get_image/%d", img.ID),
			Path:       img.Path,
			Score:      scores[i],
			ModifyTime: img.ModTime.Unix(),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func (s *Service) rankVideos(ctx context.Context, filter assets.Filter, positive, negative assets.Vector, p, n float64) ([]VideoResult, error) {
	videos, err := s.store.ListVideoFrames(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list video frames: %w", err)
	}

	results := make([]VideoResult, 0, len(videos))
	for _, v := range videos {
		vecs := make([][]float32, len(v.Frames))
		for i, f := range v.Frames {
			vecs[i] = f.Vector
		}
		scores := MatchBatch(positive, negative, vecs, p, n)

		best, first, last, ok := bestSegment(scores)
		if !ok {
			continue
		}
		start, end := v.Frames[first].Index, v.Frames[last].Index
		results = append(results, VideoResult{
			URL:        VideoURL(v.Path, start, end),
			Path:       v.Path,
			Score:      scores[best],
			StartTime:  start,
			EndTime:    end,
			ModifyTime: v.ModTime.Unix(),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// bestSegment finds the highest-scoring frame and widens it across
// neighboring frames that also scored. It reports false when nothing scored.
func bestSegment(scores []float64) (best, first, last int, ok bool) {
	best = -1
	for i, s := range scores {
		if s > 0 && (best < 0 || s > scores[best]) {
			best = i
		}
	}
	if best < 0 {
		return 0, 0, 0, false
	}
	first, last = best, best
	for first > 0 && scores[first-1] > 0 {
		first--
	}
	for last < len(scores)-1 && scores[last+1] > 0 {
		last++
	}
	return best, first, last, true
}

// EncodeVideoPath is the URL-safe form of a video path used by
// /api/get_video.
func EncodeVideoPath(path string) string {
	return base64.URLEncoding.EncodeToString([]byte(path))
}

// DecodeVideoPath reverses EncodeVideoPath.
func DecodeVideoPath(encoded string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid video path encoding: %w", err)
	}
	return string(b), nil
}

// VideoURL links to the video with a media fragment for the segment.
func VideoURL(path string, start, end int64) string {
	return fmt.Sprintf("api/get_video/%s#t=%d,%d", EncodeVideoPath(path), start, end)
}
