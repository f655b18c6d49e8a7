package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	keyLastScan     = "last_scan"
	keyEmbeddingDim = "embedding_dim"
)

// ErrDimensionMismatch means the store was built with a different model.
var ErrDimensionMismatch = errors.New("stored vectors use a different embedding dimension")

// errNoKey is returned by GetMetadata for a missing key.
var errNoKey = errors.New("metadata key not found")

// metadataStore is the key-value table both backends carry.
type metadataStore interface {
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

// GetMetadata retrieves a metadata value by key.
func (s *SQLiteStore) GetMetadata(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNoKey
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// SetMetadata sets a metadata key-value pair.
func (s *SQLiteStore) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LastScan returns when the last full rescan finished. Returns zero time if
// never run.
func (s *SQLiteStore) LastScan(ctx context.Context) (time.Time, error) {
	return lastScan(ctx, s)
}

// SetLastScan records when a full rescan finished.
func (s *SQLiteStore) SetLastScan(ctx context.Context, t time.Time) error {
	return setLastScan(ctx, s, t)
}

func lastScan(ctx context.Context, m metadataStore) (time.Time, error) {
	value, err := m.GetMetadata(ctx, keyLastScan)
	if errors.Is(err, errNoKey) || (err == nil && value == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

func setLastScan(ctx context.Context, m metadataStore, t time.Time) error {
	if t.IsZero() {
		return m.SetMetadata(ctx, keyLastScan, "")
	}
	return m.SetMetadata(ctx, keyLastScan, t.UTC().Format(time.RFC3339))
}

// ensureDimension records dim on first use and rejects a different one
// afterwards, so swapping models never mixes incomparable vectors.
func ensureDimension(ctx context.Context, m metadataStore, dim int) error {
	if dim <= 0 {
		return nil
	}
	value, err := m.GetMetadata(ctx, keyEmbeddingDim)
	if errors.Is(err, errNoKey) || (err == nil && value == "") {
		return m.SetMetadata(ctx, keyEmbeddingDim, strconv.Itoa(dim))
	}
	if err != nil {
		return err
	}
	stored, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("corrupt %s metadata %q: %w", keyEmbeddingDim, value, err)
	}
	if stored != dim {
		return fmt.Errorf("%w: store has %d, model produces %d", ErrDimensionMismatch, stored, dim)
	}
	return nil
}
