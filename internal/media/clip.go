package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"material-search/internal/logging"
)

// ClipCache cuts segments out of indexed videos with ffmpeg and keeps the
// results on disk so repeated downloads are served from the cache.
type ClipCache struct {
	dir    string
	ffmpeg *FFmpeg
	// padding widens each requested segment on both sides, in seconds.
	padding int64

	mu sync.Mutex
}

// NewClipCache writes clips under dir.
func NewClipCache(dir string, ffmpeg *FFmpeg, padding int64) (*ClipCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory: %w", err)
	}
	if padding < 0 {
		padding = 0
	}
	return &ClipCache{dir: dir, ffmpeg: ffmpeg, padding: padding}, nil
}

// Bounds applies the padding to a segment. The start never goes below zero.
func (c *ClipCache) Bounds(start, end int64) (int64, int64) {
	start -= c.padding
	if start < 0 {
		start = 0
	}
	return start, end + c.padding
}

// Clip returns the path of a file holding src between start and end
// seconds, padded. The returned name is stable for the same request.
func (c *ClipCache) Clip(ctx context.Context, src string, start, end int64) (string, error) {
	if end < start {
		return "", fmt.Errorf("invalid clip range %d-%d", start, end)
	}
	start, end = c.Bounds(start, end)

	dst := filepath.Join(c.dir, clipName(src, start, end))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	tmp := dst + ".tmp" + filepath.Ext(dst)
	cmd := exec.CommandContext(ctx, c.ffmpeg.FFmpegPath, clipArgs(src, tmp, start, end)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Debug("Clipping %s [%d-%d] to %s", src, start, end, dst)
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("ffmpeg clip failed: %w - %s", err, strings.TrimSpace(stderr.String()))
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to store clip: %w", err)
	}
	return dst, nil
}

// clipName keys a clip by its source and range, keeping the source's
// extension so the container format is preserved.
func clipName(src string, start, end int64) string {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%d_%d_%s_%s%s", start, end, strconv.FormatUint(xxhash.Sum64String(src), 16), stem, ext)
}

// clipArgs copies streams without re-encoding, so cuts land on the nearest
// keyframes.
func clipArgs(src, dst string, start, end int64) []string {
	return []string{
		"-v", "error",
		"-nostdin",
		"-y",
		"-ss", strconv.FormatInt(start, 10),
		"-to", strconv.FormatInt(end, 10),
		"-i", src,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		dst,
	}
}
