package media

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// createTestImage writes a gradient image to path.
func createTestImage(t *testing.T, path string, width, height int, format string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: 128,
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image file: %v", err)
	}
	defer f.Close()

	switch format {
	case "jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(f, img)
	default:
		t.Fatalf("Unsupported test image format: %s", format)
	}
	if err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}

func TestGetImageDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	createTestImage(t, path, 320, 200, "png")

	dims, err := GetImageDimensions(path)
	if err != nil {
		t.Fatalf("GetImageDimensions() error = %v", err)
	}
	if dims.Width != 320 || dims.Height != 200 {
		t.Errorf("dimensions = %dx%d, want 320x200", dims.Width, dims.Height)
	}

	if _, err := GetImageDimensions(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("GetImageDimensions(missing) error = nil, want error")
	}
}

func TestImageLoaderLoad(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		width     int
		height    int
		format    string
		maxDim    int
		wantW     int
		wantH     int
		wantSmall bool
	}{
		{name: "regular jpeg", width: 200, height: 200, format: "jpeg", wantW: 200, wantH: 200},
		{name: "regular png", width: 300, height: 100, format: "png", wantW: 300, wantH: 100},
		{name: "exactly minimum", width: 64, height: 64, format: "png", wantW: 64, wantH: 64},
		{name: "too narrow", width: 63, height: 500, format: "png", wantSmall: true},
		{name: "too short", width: 500, height: 10, format: "jpeg", wantSmall: true},
		{name: "oversized is constrained", width: 400, height: 200, format: "png", maxDim: 100, wantW: 100, wantH: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+"."+tt.format)
			createTestImage(t, path, tt.width, tt.height, tt.format)

			loader := NewImageLoader(DefaultMinWidth, DefaultMinHeight, false)
			if tt.maxDim > 0 {
				loader.MaxDimension = tt.maxDim
			}

			img, err := loader.Load(path)
			if tt.wantSmall {
				if !errors.Is(err, ErrImageTooSmall) {
					t.Fatalf("Load() error = %v, want ErrImageTooSmall", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			b := img.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("Load() size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestImageLoaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewImageLoader(DefaultMinWidth, DefaultMinHeight, false).Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
	if errors.Is(err, ErrImageTooSmall) {
		t.Error("garbage file reported as too small")
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{4000, 3000, 2048, 2048, 1536},
		{3000, 4000, 2048, 1536, 2048},
		{5000, 5000, 100, 100, 100},
		{10000, 1, 100, 100, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.max)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitWithin(%d, %d, %d) = %d, %d; want %d, %d", tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
		}
	}
}
