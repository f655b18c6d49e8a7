// Package assets defines the indexed record types, the Store interface that
// persists them, and the Vector type shared by indexing and search.
//
// Paths are absolute, cleaned file-system paths and are the natural key of
// both images and videos. Re-indexing a path overwrites its record.
package assets
