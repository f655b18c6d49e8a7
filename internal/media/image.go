package media

import (
	"errors"
	"fmt"
	"image"
	"os"

	"material-search/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// DefaultMinWidth and DefaultMinHeight reject icons and thumbnails.
	DefaultMinWidth  = 64
	DefaultMinHeight = 64

	// MaxImageDimension is the longest side kept after loading. The embedder
	// resizes to a few hundred pixels, so anything larger only costs memory.
	MaxImageDimension = 2048
)

// ErrImageTooSmall marks images below the configured minimum size. Callers
// treat it as a skip, not a failure.
var ErrImageTooSmall = errors.New("image below minimum size")

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}

// ImageLoader decodes still images for embedding.
type ImageLoader struct {
	MinWidth  int
	MinHeight int
	// MaxDimension bounds the decoded size. Zero means MaxImageDimension.
	MaxDimension int
	// UseVips enables libvips shrink-on-load when it has been initialized.
	UseVips bool
}

// NewImageLoader returns a loader with the given size floor.
func NewImageLoader(minWidth, minHeight int, useVips bool) *ImageLoader {
	return &ImageLoader{
		MinWidth:     minWidth,
		MinHeight:    minHeight,
		MaxDimension: MaxImageDimension,
		UseVips:      useVips,
	}
}

// Load checks the header dimensions against the size floor and only then
// decodes the whole image, honoring EXIF orientation.
func (l *ImageLoader) Load(path string) (image.Image, error) {
	dims, err := GetImageDimensions(path)
	if err != nil {
		// HEIC and friends have no stdlib decoder; libvips may still read them.
		if l.UseVips && IsVipsAvailable() {
			return l.loadWithVips(path, 0, 0)
		}
		return nil, fmt.Errorf("read image header %s: %w", path, err)
	}

	if dims.Width < l.MinWidth || dims.Height < l.MinHeight {
		return nil, fmt.Errorf("%s is %dx%d: %w", path, dims.Width, dims.Height, ErrImageTooSmall)
	}

	maxDim := l.MaxDimension
	if maxDim <= 0 {
		maxDim = MaxImageDimension
	}
	oversized := dims.Width > maxDim || dims.Height > maxDim

	if oversized && l.UseVips && IsVipsAvailable() {
		w, h := fitWithin(dims.Width, dims.Height, maxDim)
		return l.loadWithVips(path, w, h)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	if oversized {
		w, h := fitWithin(dims.Width, dims.Height, maxDim)
		logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, dims.Width, dims.Height, w, h)
		return imaging.Resize(img, w, h, imaging.Lanczos), nil
	}
	return img, nil
}

func (l *ImageLoader) loadWithVips(path string, w, h int) (image.Image, error) {
	img, err := LoadImageWithVips(path, w, h)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() < l.MinWidth || b.Dy() < l.MinHeight {
		return nil, fmt.Errorf("%s is %dx%d: %w", path, b.Dx(), b.Dy(), ErrImageTooSmall)
	}
	return img, nil
}

// fitWithin scales w x h so the longer side equals maxDim.
func fitWithin(w, h, maxDim int) (int, int) {
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
