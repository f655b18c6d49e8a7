package assets

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no record matches.
var ErrNotFound = errors.New("asset not found")

// ImageRecord is an indexed image.
type ImageRecord struct {
	ID       int64
	Path     string
	ModTime  time.Time
	Checksum string
	Vector   Vector
}

// FrameVector is one sampled video frame. Index is the sample position in
// whole seconds from the start of the video.
type FrameVector struct {
	Index  int64
	Vector Vector
}

// VideoRecord is an indexed video and its sampled frames.
type VideoRecord struct {
	ID       int64
	Path     string
	ModTime  time.Time
	Checksum string
	Frames   []FrameVector
}

// FileState is the change-detection state stored for a path.
type FileState struct {
	ModTime  time.Time
	Checksum string
}

// Counts are the aggregate library counters.
type Counts struct {
	Images      int64 `json:"total_images"`
	Videos      int64 `json:"total_videos"`
	VideoFrames int64 `json:"total_video_frames"`
}

// Filter narrows vector listings for search.
// PathContains is matched case-insensitively. Zero times leave that side open.
type Filter struct {
	PathContains string
	ModifiedFrom time.Time
	ModifiedTo   time.Time
}

// ImageVector is an image's vector as returned for matching.
type ImageVector struct {
	ID      int64
	Path    string
	ModTime time.Time
	Vector  Vector
}

// VideoFrames groups one video's frames for matching, ordered by Index.
type VideoFrames struct {
	ID      int64
	Path    string
	ModTime time.Time
	Frames  []FrameVector
}

// Store is persistent keyed storage for image and video records.
type Store interface {
	UpsertImage(ctx context.Context, path string, modTime time.Time, checksum string, vector Vector) error
	// UpsertVideo replaces the video's whole frame set.
	UpsertVideo(ctx context.Context, path string, modTime time.Time, checksum string, frames []FrameVector) error
	DeleteImageByPath(ctx context.Context, path string) error
	DeleteVideoByPath(ctx context.Context, path string) error

	ImageCount(ctx context.Context) (int64, error)
	VideoCount(ctx context.Context) (int64, error)
	VideoFrameCount(ctx context.Context) (int64, error)
	ExistsVideo(ctx context.Context, path string) (bool, error)

	GetImageState(ctx context.Context, path string) (FileState, error)
	GetVideoState(ctx context.Context, path string) (FileState, error)
	ImagePathByID(ctx context.Context, id int64) (string, error)
	ImageVectorByID(ctx context.Context, id int64) (Vector, error)
	ListImagePaths(ctx context.Context) ([]string, error)
	ListVideoPaths(ctx context.Context) ([]string, error)
	ListImageVectors(ctx context.Context, filter Filter) ([]ImageVector, error)
	ListVideoFrames(ctx context.Context, filter Filter) ([]VideoFrames, error)

	Close() error
}

// LoadCounts reads all three counters from s.
func LoadCounts(ctx context.Context, s Store) (Counts, error) {
	var (
		c   Counts
		err error
	)
	if c.Images, err = s.ImageCount(ctx); err != nil {
		return Counts{}, err
	}
	if c.Videos, err = s.VideoCount(ctx); err != nil {
		return Counts{}, err
	}
	if c.VideoFrames, err = s.VideoFrameCount(ctx); err != nil {
		return Counts{}, err
	}
	return c, nil
}
