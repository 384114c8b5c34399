package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bilancio/internal/kv"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the durable kv.Store implementation.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ kv.Store      = (*SQLiteRepository)(nil)
	_ kv.UserLister = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Get implements kv.Reader
func (r *SQLiteRepository) Get(ctx context.Context, userKey, dataKey string) ([]byte, error) {
	blob, _, err := r.GetVersioned(ctx, userKey, dataKey)
	return blob, err
}

// GetVersioned implements kv.Versioned
func (r *SQLiteRepository) GetVersioned(ctx context.Context, userKey, dataKey string) ([]byte, int64, error) {
	b, err := r.queries.GetBlob(ctx, userKey, dataKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%s/%s: %w", userKey, dataKey, kv.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get blob: %w", err)
	}
	return b.Blob, b.Version, nil
}

// SetIfVersion implements kv.Versioned
func (r *SQLiteRepository) SetIfVersion(ctx context.Context, userKey, dataKey string, blob []byte, version int64) (int64, error) {
	if strings.TrimSpace(userKey) == "" || strings.TrimSpace(dataKey) == "" {
		return 0, fmt.Errorf("user and data key are required")
	}
	if blob == nil {
		blob = []byte("null")
	}

	var (
		next int64
		err  error
	)
	if version == 0 {
		next, err = r.queries.InsertBlobIfAbsent(ctx, userKey, dataKey, blob)
	} else {
		next, err = r.queries.UpdateBlobIfVersion(ctx, userKey, dataKey, blob, version)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s/%s expected version %d: %w", userKey, dataKey, version, kv.ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("conditional write: %w", err)
	}
	return next, nil
}

// Set implements kv.Writer
func (r *SQLiteRepository) Set(ctx context.Context, userKey, dataKey string, blob []byte) error {
	if strings.TrimSpace(userKey) == "" || strings.TrimSpace(dataKey) == "" {
		return fmt.Errorf("user and data key are required")
	}
	if blob == nil {
		blob = []byte("null")
	}
	version, err := r.queries.UpsertBlob(ctx, userKey, dataKey, blob)
	if err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}

	slog.DebugContext(ctx, "Period blob saved to SQLite",
		"user", userKey,
		"key", dataKey,
		"version", version,
		"size", len(blob))
	return nil
}

// ListByPrefix implements kv.Lister
func (r *SQLiteRepository) ListByPrefix(ctx context.Context, userKey, prefix string) (map[string][]byte, error) {
	rows, err := r.queries.ListBlobsByPrefix(ctx, userKey, prefix)
	if err != nil {
		return nil, fmt.Errorf("list blobs for %s with prefix %q: %w", userKey, prefix, err)
	}
	out := make(map[string][]byte, len(rows))
	for _, row := range rows {
		out[row.DataKey] = row.Blob
	}
	return out, nil
}

// Users implements kv.UserLister
func (r *SQLiteRepository) Users(ctx context.Context) ([]string, error) {
	users, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
