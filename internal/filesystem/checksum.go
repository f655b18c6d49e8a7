package filesystem

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// minReliableModTime is the earliest modification time treated as genuine.
// Zero values and epoch-adjacent stamps come from filesystems that do not
// track mtimes (some FUSE and SMB mounts report 1970-01-01).
var minReliableModTime = time.Date(1971, 1, 1, 0, 0, 0, 0, time.UTC)

// Identity is the change-detection signal recorded for an indexed file.
type Identity struct {
	ModTime  time.Time
	Checksum string
}

// IdentityOf returns the modification time of info. When that time is not
// reliable it falls back to now and a content checksum of path.
func IdentityOf(path string, info os.FileInfo) (Identity, error) {
	mtime := info.ModTime()
	if ReliableModTime(mtime) {
		return Identity{ModTime: mtime}, nil
	}

	sum, err := Checksum(path)
	if err != nil {
		return Identity{}, fmt.Errorf("checksum fallback for %s: %w", path, err)
	}
	return Identity{ModTime: time.Now(), Checksum: sum}, nil
}

// ReliableModTime reports whether t can be trusted for change detection.
func ReliableModTime(t time.Time) bool {
	return !t.IsZero() && !t.Before(minReliableModTime)
}

// Checksum returns the hex xxhash64 digest of the file contents.
func Checksum(path string) (string, error) {
	f, err := OpenWithRetry(path, DefaultRetryConfig())
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	return ChecksumReader(f)
}

// ChecksumReader returns the hex xxhash64 digest of everything read from r.
func ChecksumReader(r io.Reader) (string, error) {
	d := xxhash.New()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return strconv.FormatUint(d.Sum64(), 16), nil
}
