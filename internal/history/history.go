// Package history stores watch progress in a local SQLite database, one row
// per episode.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"anistream/internal/media"
)

// Entry is one saved episode position.
type Entry struct {
	media.Progress
	UpdatedAt time.Time
}

// Percent returns the watched share of the episode, 0 when the duration is
// unknown.
func (e Entry) Percent() float64 {
	if e.Duration <= 0 {
		return 0
	}
	return e.Position / e.Duration * 100
}

// Store is the progress database. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS progress (
	source     TEXT NOT NULL,
	ref        TEXT NOT NULL,
	episode    REAL NOT NULL,
	token      TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	position   REAL NOT NULL DEFAULT 0,
	duration   REAL NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (source, ref, episode)
);
CREATE INDEX IF NOT EXISTS progress_updated ON progress (updated_at DESC);`

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const saveQuery = `
INSERT INTO progress (source, ref, episode, token, title, position, duration, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, ref, episode) DO UPDATE SET
	token = excluded.token,
	title = excluded.title,
	position = excluded.position,
	duration = excluded.duration,
	updated_at = excluded.updated_at;`

// Save inserts or updates the position of one episode.
func (s *Store) Save(ctx context.Context, p media.Progress) error {
	if p.Source == "" || p.Ref == "" {
		return fmt.Errorf("saving progress: source and ref are required")
	}
	if _, err := s.db.ExecContext(ctx, saveQuery,
		p.Source, p.Ref, p.Episode, p.Token, p.Title, p.Position, p.Duration,
		s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}

const selectColumns = `SELECT source, ref, episode, token, title, position, duration, updated_at FROM progress`

// Get returns the saved position of one episode. ok is false when there is
// none.
func (s *Store) Get(ctx context.Context, source, ref string, episode float64) (e Entry, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE source = ? AND ref = ? AND episode = ?`, source, ref, episode)
	e, err = scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("fetching progress: %w", err)
	}
	return e, true, nil
}

// Recent returns the latest entry of every title, most recent first. A
// limit of 0 or less returns all of them.
func (s *Store) Recent(ctx context.Context, limit int) (entries []Entry, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("listing history: %w", err)
		}
	}()

	q := selectColumns + ` p WHERE updated_at = (
		SELECT MAX(updated_at) FROM progress WHERE source = p.source AND ref = p.ref
	) ORDER BY updated_at DESC, episode DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Remove deletes every entry of one title.
func (s *Store) Remove(ctx context.Context, source, ref string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE source = ? AND ref = ?`, source, ref); err != nil {
		return fmt.Errorf("removing progress: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Entry, error) {
	var e Entry
	var updated int64
	if err := row.Scan(&e.Source, &e.Ref, &e.Episode, &e.Token, &e.Title, &e.Position, &e.Duration, &updated); err != nil {
		return Entry{}, err
	}
	e.UpdatedAt = time.UnixMilli(updated)
	return e, nil
}

// FormatForDisplay renders entries as picker lines.
func FormatForDisplay(entries []Entry) []string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("[%s] %s - Episode %s", e.Source, e.Title, media.FormatNumber(e.Episode))
		if e.Position > 0 {
			line += fmt.Sprintf(" [%.0f%%]", e.Percent())
		}
		items = append(items, line)
	}
	return items
}
