package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"material-search/internal/assets"
	"material-search/internal/logging"
)

// PostgresStore keeps records in PostgreSQL with pgvector columns.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgres connects to databaseURL and creates the schema for vectors of
// dimension dim.
func NewPostgres(ctx context.Context, databaseURL string, dim int) (*PostgresStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, dim: dim}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully (postgres, dim=%d)", dim)
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema(s.dim))
	return err
}

func postgresSchema(dim int) string {
	return fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS images (
		id          BIGSERIAL PRIMARY KEY,
		path        TEXT NOT NULL UNIQUE,
		mod_time    TIMESTAMPTZ NOT NULL,
		checksum    TEXT NOT NULL DEFAULT '',
		features    vector(%[1]d) NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_images_mod_time ON images(mod_time);

	CREATE TABLE IF NOT EXISTS videos (
		id          BIGSERIAL PRIMARY KEY,
		path        TEXT NOT NULL UNIQUE,
		mod_time    TIMESTAMPTZ NOT NULL,
		checksum    TEXT NOT NULL DEFAULT '',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_videos_mod_time ON videos(mod_time);

	CREATE TABLE IF NOT EXISTS video_frames (
		id           BIGSERIAL PRIMARY KEY,
		video_id     BIGINT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		frame_index  BIGINT NOT NULL,
		features     vector(%[1]d) NOT NULL,
		UNIQUE(video_id, frame_index)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT
	);
	`, dim)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertImage inserts or replaces the record for path.
func (s *PostgresStore) UpsertImage(ctx context.Context, path string, modTime time.Time, checksum string, vector assets.Vector) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_image", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx, `
	INSERT INTO images (path, mod_time, checksum, features, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (path) DO UPDATE SET
		mod_time = EXCLUDED.mod_time,
		checksum = EXCLUDED.checksum,
		features = EXCLUDED.features,
		updated_at = NOW()
	`, path, modTime.Truncate(time.Second), checksum, pgvector.NewVector(vector))
	return err
}

// UpsertVideo inserts or replaces the record for path and its frame set in
// one transaction.
func (s *PostgresStore) UpsertVideo(ctx context.Context, path string, modTime time.Time, checksum string, frames []assets.FrameVector) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_video", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var videoID int64
		if err := tx.QueryRow(ctx, `
		INSERT INTO videos (path, mod_time, checksum, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (path) DO UPDATE SET
			mod_time = EXCLUDED.mod_time,
			checksum = EXCLUDED.checksum,
			updated_at = NOW()
		RETURNING id
		`, path, modTime.Truncate(time.Second), checksum).Scan(&videoID); err != nil {
			return fmt.Errorf("upsert video row: %w", err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM video_frames WHERE video_id = $1", videoID); err != nil {
			return fmt.Errorf("clear frames: %w", err)
		}

		batch := &pgx.Batch{}
		for _, f := range frames {
			batch.Queue("INSERT INTO video_frames (video_id, frame_index, features) VALUES ($1, $2, $3)",
				videoID, f.Index, pgvector.NewVector(f.Vector))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert frames: %w", err)
		}
		return nil
	})
	return err
}

// DeleteImageByPath removes the image record. Missing paths are not an error.
func (s *PostgresStore) DeleteImageByPath(ctx context.Context, path string) error {
	return s.exec(ctx, "delete_image", "DELETE FROM images WHERE path = $1", path)
}

// DeleteVideoByPath removes the video record and, by cascade, its frames.
func (s *PostgresStore) DeleteVideoByPath(ctx context.Context, path string) error {
	return s.exec(ctx, "delete_video", "DELETE FROM videos WHERE path = $1", path)
}

func (s *PostgresStore) exec(ctx context.Context, operation, query string, args ...any) error {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

// ImageCount returns the number of indexed images.
func (s *PostgresStore) ImageCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "count_images", "SELECT COUNT(*) FROM images")
}

// VideoCount returns the number of indexed videos.
func (s *PostgresStore) VideoCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "count_videos", "SELECT COUNT(*) FROM videos")
}

// VideoFrameCount returns the number of stored video frames.
func (s *PostgresStore) VideoFrameCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "count_video_frames", "SELECT COUNT(*) FROM video_frames")
}

func (s *PostgresStore) count(ctx context.Context, operation, query string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int64
	err = s.pool.QueryRow(ctx, query).Scan(&n)
	return n, err
}

// ExistsVideo reports whether path is an indexed video.
func (s *PostgresStore) ExistsVideo(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("exists_video", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err = s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM videos WHERE path = $1)", path).Scan(&exists)
	return exists, err
}

// GetImageState returns the stored modification time and checksum.
func (s *PostgresStore) GetImageState(ctx context.Context, path string) (assets.FileState, error) {
	return s.fileState(ctx, "get_image_state", "SELECT mod_time, checksum FROM images WHERE path = $1", path)
}

// GetVideoState returns the stored modification time and checksum.
func (s *PostgresStore) GetVideoState(ctx context.Context, path string) (assets.FileState, error) {
	return s.fileState(ctx, "get_video_state", "SELECT mod_time, checksum FROM videos WHERE path = $1", path)
}

func (s *PostgresStore) fileState(ctx context.Context, operation, query, path string) (assets.FileState, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var state assets.FileState
	err = s.pool.QueryRow(ctx, query, path).Scan(&state.ModTime, &state.Checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return assets.FileState{}, assets.ErrNotFound
	}
	return state, err
}

// ImagePathByID returns the path of image id.
func (s *PostgresStore) ImagePathByID(ctx context.Context, id int64) (string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("image_path_by_id", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var path string
	err = s.pool.QueryRow(ctx, "SELECT path FROM images WHERE id = $1", id).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", assets.ErrNotFound
	}
	return path, err
}

// ImageVectorByID returns the stored vector of image id.
func (s *PostgresStore) ImageVectorByID(ctx context.Context, id int64) (assets.Vector, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("image_vector_by_id", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var v pgvector.Vector
	err = s.pool.QueryRow(ctx, "SELECT features FROM images WHERE id = $1", id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, assets.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return assets.Vector(v.Slice()), nil
}

// ListImagePaths returns every indexed image path.
func (s *PostgresStore) ListImagePaths(ctx context.Context) ([]string, error) {
	return s.listPaths(ctx, "list_image_paths", "SELECT path FROM images")
}

// ListVideoPaths returns every indexed video path.
func (s *PostgresStore) ListVideoPaths(ctx context.Context) ([]string, error) {
	return s.listPaths(ctx, "list_video_paths", "SELECT path FROM videos")
}

func (s *PostgresStore) listPaths(ctx context.Context, operation, query string) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return paths, err
}

// ListImageVectors returns the vectors of every image matching filter.
func (s *PostgresStore) ListImageVectors(ctx context.Context, filter assets.Filter) ([]assets.ImageVector, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_image_vectors", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	where, args := postgresDialect.whereClause(filter, "path", "mod_time")
	rows, err := s.pool.Query(ctx, "SELECT id, path, mod_time, features FROM images"+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []assets.ImageVector
	for rows.Next() {
		var (
			iv assets.ImageVector
			v  pgvector.Vector
		)
		if err = rows.Scan(&iv.ID, &iv.Path, &iv.ModTime, &v); err != nil {
			return nil, err
		}
		iv.Vector = v.Slice()
		out = append(out, iv)
	}
	err = rows.Err()
	return out, err
}

// ListVideoFrames returns the frames of every video matching filter, grouped
// per video and ordered by frame index.
func (s *PostgresStore) ListVideoFrames(ctx context.Context, filter assets.Filter) ([]assets.VideoFrames, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_video_frames", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	where, args := postgresDialect.whereClause(filter, "v.path", "v.mod_time")
	rows, err := s.pool.Query(ctx, `
	SELECT v.id, v.path, v.mod_time, f.frame_index, f.features
	FROM video_frames f
	JOIN videos v ON v.id = f.video_id`+where+`
	ORDER BY v.id, f.frame_index`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []assets.VideoFrames
	for rows.Next() {
		var (
			id      int64
			path    string
			modTime time.Time
			frame   assets.FrameVector
			v       pgvector.Vector
		)
		if err = rows.Scan(&id, &path, &modTime, &frame.Index, &v); err != nil {
			return nil, err
		}
		frame.Vector = v.Slice()
		out = appendFrame(out, id, path, modTime, frame)
	}
	err = rows.Err()
	return out, err
}

// GetMetadata retrieves a metadata value by key.
func (s *PostgresStore) GetMetadata(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value *string
	err := s.pool.QueryRow(ctx, "SELECT value FROM metadata WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errNoKey
	}
	if err != nil || value == nil {
		return "", err
	}
	return *value, nil
}

// SetMetadata sets a metadata key-value pair.
func (s *PostgresStore) SetMetadata(ctx context.Context, key, value string) error {
	return s.exec(ctx, "set_metadata", `
	INSERT INTO metadata (key, value) VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
}

// LastScan returns when the last full rescan finished.
func (s *PostgresStore) LastScan(ctx context.Context) (time.Time, error) {
	return lastScan(ctx, s)
}

// SetLastScan records when a full rescan finished.
func (s *PostgresStore) SetLastScan(ctx context.Context, t time.Time) error {
	return setLastScan(ctx, s, t)
}
