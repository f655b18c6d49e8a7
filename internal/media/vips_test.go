package media

import (
	"testing"

	"github.com/davidbyttow/govips/v2/vips"

	"material-search/internal/logging"
)

// govips cannot be restarted after Shutdown, so these tests only cover the
// pieces that do not start libvips.

func TestVipsLogLevel(t *testing.T) {
	tests := []struct {
		level logging.LogLevel
		want  vips.LogLevel
	}{
		{logging.LevelDebug, vips.LogLevelInfo},
		{logging.LevelInfo, vips.LogLevelWarning},
		{logging.LevelWarn, vips.LogLevelError},
		{logging.LevelError, vips.LogLevelCritical},
	}
	for _, tt := range tests {
		if got := vipsLogLevel(tt.level); got != tt.want {
			t.Errorf("vipsLogLevel(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestLoadImageWithVipsUnavailable(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips initialized by another test")
	}
	if _, err := LoadImageWithVips("/nonexistent.jpg", 10, 10); err == nil {
		t.Error("LoadImageWithVips() error = nil when libvips is not initialized")
	}
}
