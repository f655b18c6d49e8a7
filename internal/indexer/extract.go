package indexer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"material-search/internal/assets"
	"material-search/internal/embedding"
	"material-search/internal/filesystem"
	"material-search/internal/logging"
	"material-search/internal/media"
	"material-search/internal/mediatypes"
	"material-search/internal/metrics"
)

// Outcome is what handling one path did to the index.
type Outcome int

const (
	// Skipped means the index was left unchanged.
	Skipped Outcome = iota
	// Indexed means a record was created or replaced.
	Indexed
	// Removed means a record was deleted.
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Indexed:
		return "indexed"
	case Removed:
		return "deleted"
	default:
		return "skipped"
	}
}

// ImageLoader decodes a still image, returning media.ErrImageTooSmall for
// images below the size floor.
type ImageLoader interface {
	Load(path string) (image.Image, error)
}

// Classifier maps a path to its media type by extension.
type Classifier interface {
	TypeOf(path string) mediatypes.FileType
}

// Extractor turns one file into a stored record. It holds no locks; callers
// serialize work on a path with PathLocks.
type Extractor struct {
	store      assets.Store
	embedder   embedding.Embedder
	loader     ImageLoader
	sampler    *media.Sampler
	classifier Classifier
}

// NewExtractor wires the collaborators used for extraction. embedder should
// be the process-wide serialized instance.
func NewExtractor(store assets.Store, embedder embedding.Embedder, loader ImageLoader, sampler *media.Sampler, classifier Classifier) *Extractor {
	return &Extractor{
		store:      store,
		embedder:   embedder,
		loader:     loader,
		sampler:    sampler,
		classifier: classifier,
	}
}

// Store returns the store records are written to.
func (e *Extractor) Store() assets.Store {
	return e.store
}

// Index extracts and upserts path. info is the file's current stat result.
func (e *Extractor) Index(ctx context.Context, path string, info os.FileInfo) (Outcome, error) {
	id, err := filesystem.IdentityOf(path, info)
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("stat").Inc()
		return Skipped, err
	}

	switch e.classifier.TypeOf(path) {
	case mediatypes.FileTypeImage:
		return e.indexImage(ctx, path, id)
	case mediatypes.FileTypeVideo:
		return e.indexVideo(ctx, path, id)
	default:
		logging.Debug("Not a media file, skipping: %s", path)
		return Skipped, nil
	}
}

func (e *Extractor) indexImage(ctx context.Context, path string, id filesystem.Identity) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	}()

	img, err := e.loader.Load(path)
	if errors.Is(err, media.ErrImageTooSmall) {
		logging.Debug("Skipping small image %s", path)
		return Skipped, nil
	}
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("decode").Inc()
		return Skipped, err
	}

	vecs, err := e.embedder.EmbedImages(ctx, []image.Image{img})
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("embed").Inc()
		return Skipped, embedError(path, err)
	}

	if err := e.store.UpsertImage(ctx, path, id.ModTime, id.Checksum, vecs[0]); err != nil {
		metrics.IndexerErrors.WithLabelValues("store").Inc()
		return Skipped, fmt.Errorf("store image: %w", err)
	}
	logging.Info("Indexed image %s", path)
	return Indexed, nil
}

func (e *Extractor) indexVideo(ctx context.Context, path string, id filesystem.Identity) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.WithLabelValues("video").Observe(time.Since(start).Seconds())
	}()

	stream, err := e.sampler.Sample(ctx, path)
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("sample").Inc()
		return Skipped, err
	}
	defer func() { _ = stream.Close() }()

	var frames []assets.FrameVector
	for {
		batch, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.IndexerErrors.WithLabelValues("sample").Inc()
			return Skipped, err
		}

		vecs, err := e.embedder.EmbedImages(ctx, batch.Frames)
		if err != nil {
			metrics.IndexerErrors.WithLabelValues("embed").Inc()
			return Skipped, embedError(path, err)
		}
		for i, v := range vecs {
			frames = append(frames, assets.FrameVector{Index: batch.Indices[i], Vector: v})
		}
	}

	if len(frames) == 0 {
		logging.Warn("No frames sampled from %s, keeping existing record", path)
		return Skipped, nil
	}

	if err := e.store.UpsertVideo(ctx, path, id.ModTime, id.Checksum, frames); err != nil {
		metrics.IndexerErrors.WithLabelValues("store").Inc()
		return Skipped, fmt.Errorf("store video: %w", err)
	}
	logging.Info("Indexed video %s (%d frames)", path, len(frames))
	return Indexed, nil
}

// Remove deletes the record for path. Paths that were never indexed are
// not an error and still report Removed.
func (e *Extractor) Remove(ctx context.Context, path string) (Outcome, error) {
	var err error
	switch e.classifier.TypeOf(path) {
	case mediatypes.FileTypeImage:
		err = e.store.DeleteImageByPath(ctx, path)
	case mediatypes.FileTypeVideo:
		err = e.store.DeleteVideoByPath(ctx, path)
	default:
		// The extension sets may have changed since path was indexed.
		err = errors.Join(e.store.DeleteImageByPath(ctx, path), e.store.DeleteVideoByPath(ctx, path))
	}
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("store").Inc()
		return Skipped, fmt.Errorf("delete record: %w", err)
	}
	logging.Info("Removed %s from index", path)
	return Removed, nil
}

// Unchanged reports whether the stored record for path still matches the
// file. Modification times are compared at second granularity; files with
// unreliable times fall back to their checksum.
func (e *Extractor) Unchanged(ctx context.Context, path string, info os.FileInfo) (bool, error) {
	var (
		state assets.FileState
		err   error
	)
	switch e.classifier.TypeOf(path) {
	case mediatypes.FileTypeImage:
		state, err = e.store.GetImageState(ctx, path)
	case mediatypes.FileTypeVideo:
		state, err = e.store.GetVideoState(ctx, path)
	default:
		return true, nil
	}
	if errors.Is(err, assets.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if filesystem.ReliableModTime(info.ModTime()) {
		return state.ModTime.Unix() == info.ModTime().Unix(), nil
	}
	if state.Checksum == "" {
		return false, nil
	}
	sum, err := filesystem.Checksum(path)
	if err != nil {
		return false, err
	}
	return sum == state.Checksum, nil
}

func embedError(path string, err error) error {
	if embedding.IsOutOfMemory(err) {
		logging.Error("Embedding %s failed: %s", path, embedding.OutOfMemoryHint)
	}
	return fmt.Errorf("embed: %w", err)
}
