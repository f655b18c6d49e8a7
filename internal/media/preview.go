package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"

	"material-search/internal/logging"
)

// Preview defaults match what the web client lays out in a result grid.
const (
	DefaultPreviewWidth   = 640
	DefaultPreviewHeight  = 480
	DefaultPreviewQuality = 60
)

// Previewer renders downscaled JPEG previews of indexed images and caches
// them on disk. Cache entries are keyed by path and modification time, so
// an edited file gets a fresh preview.
type Previewer struct {
	cacheDir   string
	width      int
	height     int
	quality    int
	ffmpegPath string

	mu sync.Mutex
}

// NewPreviewer creates a previewer caching under cacheDir. An empty
// cacheDir disables the disk cache.
func NewPreviewer(cacheDir string) *Previewer {
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			logging.Warn("Preview cache disabled, failed to create %s: %v", cacheDir, err)
			cacheDir = ""
		}
	}
	return &Previewer{
		cacheDir:   cacheDir,
		width:      DefaultPreviewWidth,
		height:     DefaultPreviewHeight,
		quality:    DefaultPreviewQuality,
		ffmpegPath: "ffmpeg",
	}
}

// Preview returns the JPEG preview of path.
func (p *Previewer) Preview(ctx context.Context, path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not accessible: %w", err)
	}

	cachePath := p.cachePath(path, info)
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			return data, nil
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			return data, nil
		}
	}

	img, err := p.decode(ctx, path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	thumb := imaging.Fit(img, p.width, p.height, imaging.Lanczos)
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	if cachePath != "" {
		if err := os.WriteFile(cachePath, buf.Bytes(), 0o644); err != nil {
			logging.Warn("Failed to cache preview %s: %v", cachePath, err)
		}
	}
	return buf.Bytes(), nil
}

func (p *Previewer) cachePath(path string, info os.FileInfo) string {
	if p.cacheDir == "" {
		return ""
	}
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.WriteString(strconv.FormatInt(info.ModTime().UnixNano(), 10))
	return filepath.Join(p.cacheDir, strconv.FormatUint(d.Sum64(), 16)+".jpg")
}

// decode opens path with imaging and falls back to ffmpeg for formats
// without a Go decoder.
func (p *Previewer) decode(ctx context.Context, path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying ffmpeg", path, err)

	img, ffErr := p.decodeWithFFmpeg(ctx, path)
	if ffErr != nil {
		return nil, fmt.Errorf("all decode methods failed for %s: %w", path, ffErr)
	}
	return img, nil
}

func (p *Previewer) decodeWithFFmpeg(ctx context.Context, path string) (image.Image, error) {
	if _, err := exec.LookPath(p.ffmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}
