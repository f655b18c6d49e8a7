package media

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestClipBounds(t *testing.T) {
	c, err := NewClipCache(t.TempDir(), NewFFmpeg(), 1)
	if err != nil {
		t.Fatalf("NewClipCache() error = %v", err)
	}

	tests := []struct {
		name               string
		start, end         int64
		wantStart, wantEnd int64
	}{
		{"padded both sides", 10, 20, 9, 21},
		{"start clamped at zero", 0, 4, 0, 5},
		{"single second", 3, 3, 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e := c.Bounds(tt.start, tt.end)
			if s != tt.wantStart || e != tt.wantEnd {
				t.Errorf("Bounds(%d, %d) = (%d, %d), want (%d, %d)", tt.start, tt.end, s, e, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestClipName(t *testing.T) {
	a := clipName("/media/a/holiday.mp4", 1, 5)
	b := clipName("/media/b/holiday.mp4", 1, 5)

	if a == b {
		t.Errorf("clips of different sources share a name: %s", a)
	}
	if a != clipName("/media/a/holiday.mp4", 1, 5) {
		t.Error("clipName is not stable")
	}
	if !strings.HasPrefix(a, "1_5_") || filepath.Ext(a) != ".mp4" {
		t.Errorf("clipName = %q, want 1_5_ prefix and .mp4 extension", a)
	}
}

func TestClipArgs(t *testing.T) {
	args := clipArgs("/in.mkv", "/out.mkv", 4, 12)
	joined := strings.Join(args, " ")

	for _, want := range []string{"-ss 4", "-to 12", "-i /in.mkv", "-c copy"} {
		if !strings.Contains(joined, want) {
			t.Errorf("clipArgs missing %q in %q", want, joined)
		}
	}
	if args[len(args)-1] != "/out.mkv" {
		t.Errorf("last arg = %q, want output path", args[len(args)-1])
	}
}

func TestClipRejectsInvertedRange(t *testing.T) {
	c, err := NewClipCache(t.TempDir(), NewFFmpeg(), 0)
	if err != nil {
		t.Fatalf("NewClipCache() error = %v", err)
	}
	if _, err := c.Clip(t.Context(), "/nope.mp4", 10, 2); err == nil {
		t.Error("Clip() with end before start should fail")
	}
}
