// Package database implements assets.Store on SQLite (the default) and on
// PostgreSQL with the pgvector extension.
//
// Both backends keep three tables: images with one vector each, videos, and
// video_frames owned by their video with ON DELETE CASCADE. Re-extracting a
// video replaces its whole frame set in one transaction. A small metadata
// table records the embedding dimension and the time of the last rescan.
//
// The SQLite database runs in WAL mode and serializes writers behind a
// mutex; vectors are stored as little-endian float32 blobs.
package database
