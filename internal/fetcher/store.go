// Package fetcher downloads grid images and commits them to a
// content-addressed local store, deduplicated by hash.
package fetcher

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gridskin/gridskin/internal/models"
)

// Store persists CachedImage metadata in SQLite next to the image files in
// the cache directory. The content hash is the primary key, so at most one
// row (and one file) exists per distinct image content.
type Store struct {
	db  *sql.DB
	dir string
}

// NewStore opens or creates the image store rooted at dir. The directory and
// metadata database are created if they do not exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, "images.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open image database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, dir: dir}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cached_images (
		content_hash TEXT PRIMARY KEY,
		local_path TEXT NOT NULL,
		byte_size INTEGER NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cached_images_fetched_at ON cached_images(fetched_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Dir returns the cache directory holding the image files.
func (s *Store) Dir() string { return s.dir }

// Get returns the cached image for hash, or nil when absent. A row whose
// file has gone missing on disk is treated as absent and removed.
func (s *Store) Get(ctx context.Context, hash string) (*models.CachedImage, error) {
	var img models.CachedImage
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, local_path, byte_size, fetched_at
		 FROM cached_images WHERE content_hash = ?`, hash,
	).Scan(&img.ContentHash, &img.LocalPath, &img.ByteSize, &img.FetchedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(img.LocalPath); statErr != nil {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cached_images WHERE content_hash = ?`, hash)
		return nil, nil
	}
	return &img, nil
}

// Put records a committed image. The file at img.LocalPath must already be
// fully written.
func (s *Store) Put(ctx context.Context, img *models.CachedImage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cached_images (content_hash, local_path, byte_size, fetched_at)
		 VALUES (?, ?, ?, ?)`,
		img.ContentHash, img.LocalPath, img.ByteSize, img.FetchedAt,
	)
	return err
}

// Count returns the number of cached images.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_images`).Scan(&count)
	return count, err
}

// Close closes the metadata database.
func (s *Store) Close() error {
	return s.db.Close()
}

// now is stubbed in tests for deterministic timestamps.
var now = time.Now
