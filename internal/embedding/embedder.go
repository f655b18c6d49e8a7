package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"time"

	"material-search/internal/assets"
	"material-search/internal/metrics"
)

// ErrEmptyInput is returned when there is nothing to embed.
var ErrEmptyInput = errors.New("nothing to embed")

// Embedder turns images and text into unit-length vectors of a fixed
// dimension in a shared similarity space.
type Embedder interface {
	EmbedImages(ctx context.Context, images []image.Image) ([]assets.Vector, error)
	EmbedText(ctx context.Context, text string) (assets.Vector, error)
	Dimension() int
	Close() error
}

// Serialized funnels every call to the wrapped Embedder through one lock so
// that indexing, frame sampling and interactive search never run on the
// model concurrently. It also validates results: callers receive exactly one
// finite unit vector per input or an error.
type Serialized struct {
	mu    sync.Mutex
	inner Embedder
}

// NewSerialized wraps e.
func NewSerialized(e Embedder) *Serialized {
	return &Serialized{inner: e}
}

func (s *Serialized) acquire(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	metrics.EmbeddingWait.Observe(time.Since(start).Seconds())
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	return nil
}

// EmbedImages embeds a batch of decoded frames.
func (s *Serialized) EmbedImages(ctx context.Context, images []image.Image) ([]assets.Vector, error) {
	if len(images) == 0 {
		return nil, ErrEmptyInput
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	start := time.Now()
	vecs, err := s.inner.EmbedImages(ctx, images)
	metrics.EmbeddingDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err == nil {
		err = checkVectors(vecs, len(images), s.inner.Dimension())
	}
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("image", "error").Inc()
		return nil, err
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("image", "success").Inc()
	return vecs, nil
}

// EmbedText embeds a query string.
func (s *Serialized) EmbedText(ctx context.Context, text string) (assets.Vector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	start := time.Now()
	vec, err := s.inner.EmbedText(ctx, text)
	metrics.EmbeddingDuration.WithLabelValues("text").Observe(time.Since(start).Seconds())
	if err == nil {
		err = checkVectors([]assets.Vector{vec}, 1, s.inner.Dimension())
	}
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("text", "error").Inc()
		return nil, err
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("text", "success").Inc()
	return vec, nil
}

// Dimension returns the vector dimension of the wrapped model.
func (s *Serialized) Dimension() int {
	return s.inner.Dimension()
}

// Close waits for any in-flight call and releases the model.
func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}

// checkVectors enforces count, dimension and finiteness and renormalizes
// each vector in place.
func checkVectors(vecs []assets.Vector, want, dim int) error {
	if len(vecs) != want {
		return fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), want)
	}
	for i, v := range vecs {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		for _, f := range v {
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return fmt.Errorf("vector %d contains non-finite values", i)
			}
		}
		if v.Norm() == 0 {
			return fmt.Errorf("vector %d is all zeros", i)
		}
		v.Normalize()
	}
	return nil
}

// IsOutOfMemory reports whether err looks like the accelerator or host ran
// out of memory during inference.
func IsOutOfMemory(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"out of memory",
		"failed to allocate memory",
		"not enough gpu video memory",
		"cudaerrormemoryallocation",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// OutOfMemoryHint is logged alongside out-of-memory failures.
const OutOfMemoryHint = "the embedding model ran out of memory; lower SCAN_PROCESS_BATCH_SIZE or switch to a smaller model"
