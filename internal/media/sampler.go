package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"material-search/internal/metrics"
)

const (
	// DefaultFrameInterval is the spacing between sampled frames in seconds.
	DefaultFrameInterval = 2
	// DefaultBatchSize is the number of frames embedded per call.
	DefaultBatchSize = 32
)

// ErrNoFrameRate is returned for videos whose frame rate rounds to zero.
var ErrNoFrameRate = errors.New("video reports no usable frame rate")

// VideoInfo describes a video stream as reported by the decoder.
type VideoInfo struct {
	FPS         float64
	TotalFrames int64
	Width       int
	Height      int
}

// VideoSource yields every sampled frame of one video in order. Next
// returns io.EOF once the stream is exhausted.
type VideoSource interface {
	Info() VideoInfo
	Next() (image.Image, error)
	Close() error
}

// Opener starts decoding path, keeping one frame out of every step. info is
// the result of probing the same file.
type Opener interface {
	Open(ctx context.Context, path string, info VideoInfo, step int64) (VideoSource, error)
}

// Prober reports stream information before decoding starts.
type Prober interface {
	Probe(ctx context.Context, path string) (VideoInfo, error)
}

// FrameBatch is a run of sampled frames. Indices are whole seconds from the
// start of the video and are parallel to Frames.
type FrameBatch struct {
	Indices []int64
	Frames  []image.Image
}

// Len returns the number of frames in the batch.
func (b FrameBatch) Len() int {
	return len(b.Frames)
}

// Sampler picks one frame every FrameInterval seconds from a video.
type Sampler struct {
	FrameInterval int
	BatchSize     int
	Prober        Prober
	Opener        Opener
}

// NewSampler returns a sampler backed by ffprobe and ffmpeg.
func NewSampler(frameInterval, batchSize int) *Sampler {
	ff := NewFFmpeg()
	return &Sampler{
		FrameInterval: frameInterval,
		BatchSize:     batchSize,
		Prober:        ff,
		Opener:        ff,
	}
}

// Sample probes path and returns a fresh stream positioned at frame 0.
func (s *Sampler) Sample(ctx context.Context, path string) (*FrameStream, error) {
	interval := s.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	info, err := s.Prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	fps := int64(math.Round(info.FPS))
	if fps <= 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFrameRate)
	}

	step := int64(interval) * fps
	src, err := s.Opener.Open(ctx, path, info, step)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &FrameStream{
		ctx:       ctx,
		src:       src,
		fps:       fps,
		step:      step,
		total:     info.TotalFrames,
		batchSize: batchSize,
	}, nil
}

// FrameStream is a finite iterator over the sampled frames of one video.
// It is not safe for concurrent use.
type FrameStream struct {
	ctx       context.Context
	src       VideoSource
	fps       int64
	step      int64
	total     int64
	batchSize int

	current int64
	done    bool
}

// Next returns the next batch of up to BatchSize frames. The last batch may
// be shorter. After the final frame Next returns io.EOF. A decode error ends
// the stream; batches already returned remain valid.
func (fs *FrameStream) Next() (FrameBatch, error) {
	if fs.done {
		return FrameBatch{}, io.EOF
	}

	var batch FrameBatch
	for batch.Len() < fs.batchSize {
		if err := fs.ctx.Err(); err != nil {
			fs.done = true
			return FrameBatch{}, err
		}
		if fs.total > 0 && fs.current >= fs.total {
			fs.done = true
			break
		}

		frame, err := fs.src.Next()
		if errors.Is(err, io.EOF) {
			fs.done = true
			break
		}
		if err != nil {
			fs.done = true
			return FrameBatch{}, fmt.Errorf("decode frame %d: %w", fs.current, err)
		}

		batch.Indices = append(batch.Indices, fs.current/fs.fps)
		batch.Frames = append(batch.Frames, frame)
		fs.current += fs.step
	}

	if batch.Len() == 0 {
		return FrameBatch{}, io.EOF
	}
	metrics.FramesSampledTotal.Add(float64(batch.Len()))
	return batch, nil
}

// Close stops the decoder.
func (fs *FrameStream) Close() error {
	fs.done = true
	return fs.src.Close()
}
