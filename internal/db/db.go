package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// MediaRecord is one finished link in the catalog.
type MediaRecord struct {
	ID            int64
	CanonicalLink string
	RawLink       string
	Platform      string
	Title         string
	Uploader      string
	MediaType     string
	VideoPath     string
	AudioPath     string
	Strategy      string
	FileSize      int64
	RunID         string
	CreatedAt     time.Time
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS media (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    canonical_link  TEXT NOT NULL UNIQUE,
    raw_link        TEXT NOT NULL DEFAULT '',
    platform        TEXT NOT NULL DEFAULT '',
    title           TEXT NOT NULL DEFAULT '',
    uploader        TEXT NOT NULL DEFAULT '',
    media_type      TEXT NOT NULL DEFAULT 'video',
    video_path      TEXT NOT NULL DEFAULT '',
    audio_path      TEXT NOT NULL DEFAULT '',
    strategy        TEXT NOT NULL DEFAULT '',
    file_size       INTEGER NOT NULL DEFAULT 0,
    run_id          TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_media_run_id ON media(run_id);
CREATE INDEX IF NOT EXISTS idx_media_created_at ON media(created_at);
`

const selectColumns = `id, canonical_link, raw_link, platform, title, uploader, media_type,
	video_path, audio_path, strategy, file_size, run_id, created_at`

// ErrNotInitialized is returned by methods called on a nil catalog.
var ErrNotInitialized = errors.New("catalog not initialized")

// DB wraps an SQLite connection for the media catalog.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog at %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := sqlDB.Exec(createTableSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: sqlDB}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Record inserts or replaces the entry for record.CanonicalLink and returns
// its row ID.
func (d *DB) Record(record MediaRecord) (int64, error) {
	if d == nil || d.db == nil {
		return 0, ErrNotInitialized
	}
	if record.CanonicalLink == "" {
		return 0, errors.New("catalog record without a canonical link")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO media (
			canonical_link, raw_link, platform, title, uploader, media_type,
			video_path, audio_path, strategy, file_size, run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(canonical_link) DO UPDATE SET
			raw_link=excluded.raw_link, platform=excluded.platform,
			title=excluded.title, uploader=excluded.uploader,
			media_type=excluded.media_type,
			video_path=excluded.video_path, audio_path=excluded.audio_path,
			strategy=excluded.strategy, file_size=excluded.file_size,
			run_id=excluded.run_id, created_at=datetime('now')
	`,
		record.CanonicalLink, record.RawLink, record.Platform, record.Title, record.Uploader, record.MediaType,
		record.VideoPath, record.AudioPath, record.Strategy, record.FileSize, record.RunID,
	)
	if err != nil {
		return 0, fmt.Errorf("recording %s: %w", record.CanonicalLink, err)
	}

	// LastInsertId is unreliable for ON CONFLICT DO UPDATE; query the actual row ID.
	var id int64
	if err := d.db.QueryRow("SELECT id FROM media WHERE canonical_link = ?", record.CanonicalLink).Scan(&id); err != nil {
		return 0, fmt.Errorf("querying recorded id: %w", err)
	}
	return id, nil
}

// Lookup returns the entry for a canonical link. ok is false when the link
// was never recorded.
func (d *DB) Lookup(canonical string) (record MediaRecord, ok bool, err error) {
	if d == nil || d.db == nil {
		return MediaRecord{}, false, ErrNotInitialized
	}
	row := d.db.QueryRow("SELECT "+selectColumns+" FROM media WHERE canonical_link = ?", canonical)
	record, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaRecord{}, false, nil
	}
	if err != nil {
		return MediaRecord{}, false, fmt.Errorf("looking up %s: %w", canonical, err)
	}
	return record, true, nil
}

// List returns catalog entries, newest first.
func (d *DB) List(limit, offset int) ([]MediaRecord, error) {
	if d == nil || d.db == nil {
		return nil, ErrNotInitialized
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := d.db.Query("SELECT "+selectColumns+`
		FROM media
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var records []MediaRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the total number of catalog entries.
func (d *DB) Count() (int, error) {
	if d == nil || d.db == nil {
		return 0, ErrNotInitialized
	}

	var count int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM media").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting catalog: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (MediaRecord, error) {
	var r MediaRecord
	err := s.Scan(
		&r.ID, &r.CanonicalLink, &r.RawLink, &r.Platform, &r.Title, &r.Uploader, &r.MediaType,
		&r.VideoPath, &r.AudioPath, &r.Strategy, &r.FileSize, &r.RunID, &r.CreatedAt,
	)
	return r, err
}
