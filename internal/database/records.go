package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"material-search/internal/assets"
)

// UpsertImage inserts or replaces the record for path.
func (s *SQLiteStore) UpsertImage(ctx context.Context, path string, modTime time.Time, checksum string, vector assets.Vector) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_image", start, err) }()

	blob, err := vector.MarshalBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO images (path, mod_time, checksum, features, updated_at)
	VALUES (?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		mod_time = excluded.mod_time,
		checksum = excluded.checksum,
		features = excluded.features,
		updated_at = strftime('%s', 'now')
	`, path, modTime.Unix(), checksum, blob)
	return err
}

// UpsertVideo inserts or replaces the record for path and swaps in the new
// frame set inside one transaction.
func (s *SQLiteStore) UpsertVideo(ctx context.Context, path string, modTime time.Time, checksum string, frames []assets.FrameVector) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_video", start, err) }()

	blobs := make([][]byte, len(frames))
	for i, f := range frames {
		if blobs[i], err = f.Vector.MarshalBinary(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin video upsert: %w", err)
	}
	err = endTx(tx, replaceVideo(ctx, tx, path, modTime, checksum, frames, blobs))
	return err
}

func replaceVideo(ctx context.Context, tx *sql.Tx, path string, modTime time.Time, checksum string, frames []assets.FrameVector, blobs [][]byte) error {
	var videoID int64
	err := tx.QueryRowContext(ctx, `
	INSERT INTO videos (path, mod_time, checksum, updated_at)
	VALUES (?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		mod_time = excluded.mod_time,
		checksum = excluded.checksum,
		updated_at = strftime('%s', 'now')
	RETURNING id
	`, path, modTime.Unix(), checksum).Scan(&videoID)
	if err != nil {
		return fmt.Errorf("upsert video row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM video_frames WHERE video_id = ?", videoID); err != nil {
		return fmt.Errorf("clear frames: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO video_frames (video_id, frame_index, features) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare frame insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, f := range frames {
		if _, err := stmt.ExecContext(ctx, videoID, f.Index, blobs[i]); err != nil {
			return fmt.Errorf("insert frame %d: %w", f.Index, err)
		}
	}
	return nil
}

// DeleteImageByPath removes the image record. Missing paths are not an error.
func (s *SQLiteStore) DeleteImageByPath(ctx context.Context, path string) error {
	return s.deleteByPath(ctx, "delete_image", "DELETE FROM images WHERE path = ?", path)
}

// DeleteVideoByPath removes the video record and, by cascade, its frames.
func (s *SQLiteStore) DeleteVideoByPath(ctx context.Context, path string) error {
	return s.deleteByPath(ctx, "delete_video", "DELETE FROM videos WHERE path = ?", path)
}

func (s *SQLiteStore) deleteByPath(ctx context.Context, operation, query, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, query, path)
	return err
}

// ImageCount returns the number of indexed images.
func (s *SQLiteStore) ImageCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "count_images", "SELECT COUNT(*) FROM images")
}

// VideoCount returns the number of indexed videos.
func (s *SQLiteStore) VideoCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "count_videos", "SELECT COUNT(*) FROM videos")
}

// VideoFrameCount returns the number of stored video frames.
func (s *SQLiteStore) VideoFrameCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "count_video_frames", "SELECT COUNT(*) FROM video_frames")
}

func (s *SQLiteStore) count(ctx context.Context, operation, query string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int64
	err = s.db.QueryRowContext(ctx, query).Scan(&n)
	return n, err
}

// ExistsVideo reports whether path is an indexed video.
func (s *SQLiteStore) ExistsVideo(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("exists_video", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err = s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM videos WHERE path = ?)", path).Scan(&exists)
	return exists, err
}

// GetImageState returns the stored modification time and checksum.
func (s *SQLiteStore) GetImageState(ctx context.Context, path string) (assets.FileState, error) {
	return s.fileState(ctx, "get_image_state", "SELECT mod_time, checksum FROM images WHERE path = ?", path)
}

// GetVideoState returns the stored modification time and checksum.
func (s *SQLiteStore) GetVideoState(ctx context.Context, path string) (assets.FileState, error) {
	return s.fileState(ctx, "get_video_state", "SELECT mod_time, checksum FROM videos WHERE path = ?", path)
}

func (s *SQLiteStore) fileState(ctx context.Context, operation, query, path string) (assets.FileState, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		modTime int64
		state   assets.FileState
	)
	err = s.db.QueryRowContext(ctx, query, path).Scan(&modTime, &state.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return assets.FileState{}, assets.ErrNotFound
	}
	if err != nil {
		return assets.FileState{}, err
	}
	state.ModTime = time.Unix(modTime, 0)
	return state, nil
}

// ImagePathByID returns the path of image id.
func (s *SQLiteStore) ImagePathByID(ctx context.Context, id int64) (string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("image_path_by_id", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var path string
	err = s.db.QueryRowContext(ctx, "SELECT path FROM images WHERE id = ?", id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", assets.ErrNotFound
	}
	return path, err
}

// ImageVectorByID returns the stored vector of image id.
func (s *SQLiteStore) ImageVectorByID(ctx context.Context, id int64) (assets.Vector, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("image_vector_by_id", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var blob []byte
	err = s.db.QueryRowContext(ctx, "SELECT features FROM images WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, assets.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v assets.Vector
	err = v.UnmarshalBinary(blob)
	return v, err
}
