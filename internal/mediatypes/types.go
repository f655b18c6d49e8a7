package mediatypes

import (
	"path/filepath"
	"sort"
	"strings"
)

// FileType represents the type of a media file.
type FileType string

const (
	// FileTypeImage represents an image file.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video file.
	FileTypeVideo FileType = "video"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// DefaultImageExtensions are the image formats indexed when nothing is configured.
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".heic", ".webp", ".bmp"}

// DefaultVideoExtensions are the video formats indexed when nothing is configured.
var DefaultVideoExtensions = []string{".mp4", ".flv", ".mov", ".mkv", ".webm", ".avi"}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
}

// ExtensionSet is a case-insensitive set of file extensions with leading dots.
type ExtensionSet map[string]bool

// NewExtensionSet normalizes the given extensions. Entries without a leading
// dot get one, and blanks are dropped.
func NewExtensionSet(exts ...string) ExtensionSet {
	set := make(ExtensionSet, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

// Contains reports whether ext (any case) is in the set.
func (s ExtensionSet) Contains(ext string) bool {
	return s[strings.ToLower(ext)]
}

// Sorted returns the extensions in lexical order.
func (s ExtensionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for ext := range s {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Classifier maps paths to file types using configured extension sets.
// Image extensions win when an extension appears in both sets.
type Classifier struct {
	Images ExtensionSet
	Videos ExtensionSet
}

// DefaultClassifier returns a classifier using the default extension lists.
func DefaultClassifier() Classifier {
	return Classifier{
		Images: NewExtensionSet(DefaultImageExtensions...),
		Videos: NewExtensionSet(DefaultVideoExtensions...),
	}
}

// TypeOf returns the FileType for a path based on its extension.
func (c Classifier) TypeOf(path string) FileType {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return FileTypeOther
	}
	if c.Images[ext] {
		return FileTypeImage
	}
	if c.Videos[ext] {
		return FileTypeVideo
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}
