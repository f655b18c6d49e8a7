package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"material-search/internal/assets"
)

// dialect captures the SQL differences between the two backends.
type dialect struct {
	// placeholder returns the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// contains is a format string taking the column and a placeholder for a
	// lower-cased needle.
	contains string
	// timeArg converts a filter bound to the stored representation.
	timeArg func(t time.Time) any
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	contains:    "instr(lower(%s), %s) > 0",
	timeArg:     func(t time.Time) any { return t.Unix() },
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	contains:    "strpos(lower(%s), %s) > 0",
	timeArg:     func(t time.Time) any { return t },
}

// whereClause renders f against the given path and mod_time columns. It
// returns an empty string when the filter is open.
func (d dialect) whereClause(f assets.Filter, pathCol, timeCol string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}

	if needle := strings.TrimSpace(f.PathContains); needle != "" {
		conds = append(conds, fmt.Sprintf(d.contains, pathCol, next(strings.ToLower(needle))))
	}
	if !f.ModifiedFrom.IsZero() {
		conds = append(conds, fmt.Sprintf("%s >= %s", timeCol, next(d.timeArg(f.ModifiedFrom))))
	}
	if !f.ModifiedTo.IsZero() {
		conds = append(conds, fmt.Sprintf("%s <= %s", timeCol, next(d.timeArg(f.ModifiedTo))))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListImagePaths returns every indexed image path.
func (s *SQLiteStore) ListImagePaths(ctx context.Context) ([]string, error) {
	return s.listPaths(ctx, "list_image_paths", "SELECT path FROM images")
}

// ListVideoPaths returns every indexed video path.
func (s *SQLiteStore) ListVideoPaths(ctx context.Context) ([]string, error) {
	return s.listPaths(ctx, "list_video_paths", "SELECT path FROM videos")
}

func (s *SQLiteStore) listPaths(ctx context.Context, operation, query string) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err = rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	err = rows.Err()
	return paths, err
}

// ListImageVectors returns the vectors of every image matching filter.
func (s *SQLiteStore) ListImageVectors(ctx context.Context, filter assets.Filter) ([]assets.ImageVector, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_image_vectors", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	where, args := sqliteDialect.whereClause(filter, "path", "mod_time")
	rows, err := s.db.QueryContext(ctx, "SELECT id, path, mod_time, features FROM images"+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []assets.ImageVector
	for rows.Next() {
		var (
			iv      assets.ImageVector
			modTime int64
			blob    []byte
		)
		if err = rows.Scan(&iv.ID, &iv.Path, &modTime, &blob); err != nil {
			return nil, err
		}
		if err = iv.Vector.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("image %d: %w", iv.ID, err)
		}
		iv.ModTime = time.Unix(modTime, 0)
		out = append(out, iv)
	}
	err = rows.Err()
	return out, err
}

// ListVideoFrames returns the frames of every video matching filter, grouped
// per video and ordered by frame index.
func (s *SQLiteStore) ListVideoFrames(ctx context.Context, filter assets.Filter) ([]assets.VideoFrames, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_video_frames", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	where, args := sqliteDialect.whereClause(filter, "v.path", "v.mod_time")
	query := `
	SELECT v.id, v.path, v.mod_time, f.frame_index, f.features
	FROM video_frames f
	JOIN videos v ON v.id = f.video_id` + where + `
	ORDER BY v.id, f.frame_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []assets.VideoFrames
	for rows.Next() {
		var (
			id, modTime int64
			path        string
			frame       assets.FrameVector
			blob        []byte
		)
		if err = rows.Scan(&id, &path, &modTime, &frame.Index, &blob); err != nil {
			return nil, err
		}
		if err = frame.Vector.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("video %d frame %d: %w", id, frame.Index, err)
		}
		out = appendFrame(out, id, path, time.Unix(modTime, 0), frame)
	}
	err = rows.Err()
	return out, err
}

// appendFrame adds frame to the last group when it belongs to the same
// video, otherwise it starts a new group. Rows must be ordered by video.
func appendFrame(groups []assets.VideoFrames, id int64, path string, modTime time.Time, frame assets.FrameVector) []assets.VideoFrames {
	if n := len(groups); n > 0 && groups[n-1].ID == id {
		groups[n-1].Frames = append(groups[n-1].Frames, frame)
		return groups
	}
	return append(groups, assets.VideoFrames{
		ID:      id,
		Path:    path,
		ModTime: modTime,
		Frames:  []assets.FrameVector{frame},
	})
}
