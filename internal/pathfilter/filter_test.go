package pathfilter

import (
	"testing"

	"material-search/internal/mediatypes"
)

func newTestFilter() *Filter {
	return New(Config{
		AssetRoots:      []string{"/lib", "/mnt/photos/"},
		SkipRoots:       []string{"/lib/private", ""},
		IgnoreKeywords:  []string{"Thumb", "", "  "},
		ImageExtensions: mediatypes.NewExtensionSet(".jpg", ".png"),
		VideoExtensions: mediatypes.NewExtensionSet(".mp4"),
	})
}

func TestShouldWatch(t *testing.T) {
	f := newTestFilter()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "image under root", path: "/lib/a.jpg", want: true},
		{name: "upper case extension", path: "/lib/A.JPG", want: true},
		{name: "video in nested dir", path: "/lib/trips/2023/clip.mp4", want: true},
		{name: "second root with trailing slash", path: "/mnt/photos/x.png", want: true},
		{name: "unknown extension", path: "/lib/notes.txt", want: false},
		{name: "no extension", path: "/lib/README", want: false},
		{name: "under skip root", path: "/lib/private/a.jpg", want: false},
		{name: "skip root itself is a prefix only", path: "/lib/private-ish/a.jpg", want: true},
		{name: "ignore keyword case insensitive", path: "/lib/THUMBNAILS/a.jpg", want: false},
		{name: "ignore keyword in filename", path: "/lib/a_thumb.jpg", want: false},
		{name: "outside asset roots", path: "/tmp/a.jpg", want: false},
		{name: "root prefix but different dir", path: "/library/a.jpg", want: false},
		{name: "unclean path", path: "/lib/x/../b.jpg", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ShouldWatch(tt.path); got != tt.want {
				t.Errorf("ShouldWatch(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestShouldWatchExtensionCheckedFirst(t *testing.T) {
	// A path failing several checks is rejected; the result must not depend on
	// which check fails.
	f := newTestFilter()
	if f.ShouldWatch("/lib/private/thumb.txt") {
		t.Error("ShouldWatch() = true for path failing every check")
	}
}

func TestShouldWatchNoRoots(t *testing.T) {
	f := New(Config{
		ImageExtensions: mediatypes.NewExtensionSet(".jpg"),
	})
	if f.ShouldWatch("/lib/a.jpg") {
		t.Error("ShouldWatch() = true with no asset roots configured")
	}
}

func TestIsUnder(t *testing.T) {
	tests := []struct {
		path, root string
		want       bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/b/c", "/a/b", true},
		{"/a/bc", "/a/b", false},
		{"/a", "/a/b", false},
		{"/anything", "/", true},
	}

	for _, tt := range tests {
		if got := IsUnder(tt.path, tt.root); got != tt.want {
			t.Errorf("IsUnder(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}

func TestIsSkippedAndTypeOf(t *testing.T) {
	f := newTestFilter()

	if !f.IsSkipped("/lib/private/deep") {
		t.Error("IsSkipped(/lib/private/deep) = false, want true")
	}
	if f.IsSkipped("/lib/public") {
		t.Error("IsSkipped(/lib/public) = true, want false")
	}
	if got := f.TypeOf("/lib/clip.mp4"); got != mediatypes.FileTypeVideo {
		t.Errorf("TypeOf(clip.mp4) = %v, want video", got)
	}
	if got := len(f.AssetRoots()); got != 2 {
		t.Errorf("len(AssetRoots()) = %d, want 2", got)
	}
}
