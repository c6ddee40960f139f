package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	prompt       TEXT NOT NULL DEFAULT '',
	loras        TEXT NOT NULL DEFAULT '',
	gen_settings TEXT NOT NULL DEFAULT '',
	image_size   TEXT NOT NULL,
	tags         TEXT NOT NULL DEFAULT '',
	favorite     INTEGER NOT NULL DEFAULT 0,
	compressed   INTEGER NOT NULL DEFAULT 0,
	hash         TEXT NOT NULL DEFAULT '',
	thumb_small  TEXT NOT NULL DEFAULT '',
	thumb_medium TEXT NOT NULL DEFAULT '',
	thumb_large  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_images_created_at ON images(created_at);
CREATE INDEX IF NOT EXISTS idx_images_favorite ON images(favorite);
`

const selectColumns = `id, filename, created_at, prompt, loras, gen_settings, image_size,
	tags, favorite, compressed, hash, thumb_small, thumb_medium, thumb_large`

// Store keeps the library metadata in SQLite
type Store struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open opens (or creates) the database at path and migrates the schema
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Put inserts or replaces an image record
func (s *Store) Put(ctx context.Context, img Image) error {
	if img.ID == "" {
		return fmt.Errorf("image id is required")
	}
	if _, _, err := img.Size(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO images (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, img.ID, img.Filename, img.CreatedAt, img.Prompt, img.Loras, img.GenSettings, img.ImageSize,
		img.Tags, img.Favorite, img.Compressed, img.Hash,
		img.Thumbnails.Small, img.Thumbnails.Medium, img.Thumbnails.Large)
	if err != nil {
		return fmt.Errorf("failed to put image %s: %w", img.ID, err)
	}
	return nil
}

// Get retrieves an image by id
func (s *Store) Get(ctx context.Context, id string) (*Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id string) (*Image, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", id, err)
	}
	return img, nil
}

// List returns the images carrying every tag in tags, newest first.
// An empty tags slice returns the whole library.
func (s *Store) List(ctx context.Context, tags []string) ([]Image, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return all, nil
	}

	matched := make([]Image, 0, len(all))
	for _, img := range all {
		if img.HasAllTags(tags) {
			matched = append(matched, img)
		}
	}
	return matched, nil
}

// Update applies a patch to an image and returns the updated record
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*Image, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := patch.Apply(*current)

	_, err = s.conn.ExecContext(ctx, `
		UPDATE images SET tags = ?, prompt = ?, favorite = ? WHERE id = ?
	`, updated.Tags, updated.Prompt, updated.Favorite, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update image %s: %w", id, err)
	}
	return &updated, nil
}

// TagCounts returns the tag frequency map over the whole library
func (s *Store) TagCounts(ctx context.Context) (TagCounts, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return CountTags(all), nil
}

// Stats returns the library summary with the topN most used tags
func (s *Store) Stats(ctx context.Context, topN int) (Stats, error) {
	all, err := s.all(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(all, topN), nil
}

func (s *Store) all(ctx context.Context) ([]Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `SELECT `+selectColumns+` FROM images ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	images := []Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*Image, error) {
	var img Image
	err := row.Scan(&img.ID, &img.Filename, &img.CreatedAt, &img.Prompt, &img.Loras, &img.GenSettings,
		&img.ImageSize, &img.Tags, &img.Favorite, &img.Compressed, &img.Hash,
		&img.Thumbnails.Small, &img.Thumbnails.Medium, &img.Thumbnails.Large)
	if err != nil {
		return nil, err
	}
	return &img, nil
}
