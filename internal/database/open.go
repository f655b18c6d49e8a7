package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"material-search/internal/assets"
	"material-search/internal/logging"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultFileName is the SQLite database file created inside the data dir.
const DefaultFileName = "assets.db"

// Config selects and locates the asset store.
type Config struct {
	Driver string
	// Dir holds the SQLite file.
	Dir string
	// URL is the PostgreSQL connection string.
	URL string
	// Dimension is the embedding size the store must hold.
	Dimension int
}

// Store is an assets.Store that also tracks rescans.
type Store interface {
	assets.Store
	LastScan(ctx context.Context) (time.Time, error)
	SetLastScan(ctx context.Context, t time.Time) error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open connects to the configured backend and checks that it was built for
// the same embedding dimension.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store interface {
			Store
			metadataStore
		}
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite, "sqlite3":
		if cfg.Dir == "" {
			return nil, errors.New("database directory is not set")
		}
		store, err = NewSQLite(ctx, filepath.Join(cfg.Dir, DefaultFileName))
	case DriverPostgres, "postgresql", "pgvector":
		if cfg.URL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}
		store, err = NewPostgres(ctx, cfg.URL, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := ensureDimension(ctx, store, cfg.Dimension); err != nil {
		if closeErr := store.Close(); closeErr != nil {
			logging.Error("failed to close database: %v", closeErr)
		}
		return nil, err
	}
	return store, nil
}
