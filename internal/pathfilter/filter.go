package pathfilter

import (
	"path/filepath"
	"strings"

	"material-search/internal/logging"
	"material-search/internal/mediatypes"
)

// Config lists the inputs of a Filter.
type Config struct {
	AssetRoots      []string
	SkipRoots       []string
	IgnoreKeywords  []string
	ImageExtensions mediatypes.ExtensionSet
	VideoExtensions mediatypes.ExtensionSet
}

// Filter decides whether a file path belongs in the index. It is immutable
// after construction and safe for concurrent use.
type Filter struct {
	assetRoots []string
	skipRoots  []string
	keywords   []string
	classifier mediatypes.Classifier
}

// New builds a Filter. Roots are cleaned and made absolute; empty entries are
// dropped, as are empty ignore keywords.
func New(cfg Config) *Filter {
	f := &Filter{
		assetRoots: cleanRoots(cfg.AssetRoots),
		skipRoots:  cleanRoots(cfg.SkipRoots),
		classifier: mediatypes.Classifier{Images: cfg.ImageExtensions, Videos: cfg.VideoExtensions},
	}
	for _, kw := range cfg.IgnoreKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			f.keywords = append(f.keywords, kw)
		}
	}
	return f
}

func cleanRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		out = append(out, filepath.Clean(r))
	}
	return out
}

// ShouldWatch reports whether path is an indexable file. Checks run in order
// and the first failure wins: extension, skip roots, ignore keywords, asset
// roots. Callers must not pass directories.
func (f *Filter) ShouldWatch(path string) bool {
	if f.classifier.TypeOf(path) == mediatypes.FileTypeOther {
		logging.Debug("Skipping %s: extension not indexed", path)
		return false
	}

	clean := filepath.Clean(path)
	for _, root := range f.skipRoots {
		if IsUnder(clean, root) {
			logging.Debug("Skipping %s: under skip path %s", path, root)
			return false
		}
	}

	lower := strings.ToLower(clean)
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			logging.Debug("Skipping %s: contains ignore keyword %q", path, kw)
			return false
		}
	}

	for _, root := range f.assetRoots {
		if IsUnder(clean, root) {
			return true
		}
	}
	logging.Debug("Skipping %s: not under any asset path", path)
	return false
}

// TypeOf classifies path by extension using the filter's extension sets.
func (f *Filter) TypeOf(path string) mediatypes.FileType {
	return f.classifier.TypeOf(path)
}

// AssetRoots returns the cleaned asset roots.
func (f *Filter) AssetRoots() []string {
	return append([]string(nil), f.assetRoots...)
}

// IsSkipped reports whether dir is at or below a skip root, letting directory
// walks prune whole subtrees.
func (f *Filter) IsSkipped(dir string) bool {
	clean := filepath.Clean(dir)
	for _, root := range f.skipRoots {
		if IsUnder(clean, root) {
			return true
		}
	}
	return false
}

// IsUnder reports whether path equals root or lies below it. Both must be
// clean. "/a/bc" is not under "/a/b".
func IsUnder(path, root string) bool {
	if path == root {
		return true
	}
	if root == string(filepath.Separator) {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
