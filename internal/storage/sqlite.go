package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested entry does not exist.
var ErrNotFound = errors.New("not found")

// dateLayout is the canonical storage format for entry dates.
const dateLayout = "2006-01-02"

// Store wraps a SQLite database holding journal entries.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "quillback.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for components that need raw SQL access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// SaveEntry inserts a journal entry and returns its assigned id.
// The entry date must be unique; inserting a duplicate date fails.
func (s *Store) SaveEntry(e Entry) (int64, error) {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO entries (entry_date, content, tags, created_at)
		VALUES (?, ?, ?, ?)`,
		e.Date.Format(dateLayout), e.Content, e.Tags, createdAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("inserting entry for %s: %w", e.Date.Format(dateLayout), err)
	}
	return res.LastInsertId()
}

// HasEntryForDate reports whether an entry already exists for the given date.
// Import uses this to deduplicate; one entry per day.
func (s *Store) HasEntryForDate(date time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM entries WHERE entry_date = ?", date.Format(dateLayout)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking entry for %s: %w", date.Format(dateLayout), err)
	}
	return count > 0, nil
}

// GetEntry returns the entry with the given id, or ErrNotFound.
func (s *Store) GetEntry(id int64) (Entry, error) {
	row := s.db.QueryRow(`
		SELECT id, entry_date, content, tags, created_at
		FROM entries WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("getting entry %d: %w", id, err)
	}
	return e, nil
}

// GetEntriesByIDs returns the entries matching the given ids, in the order the
// database yields them. Missing ids are silently absent from the result.
func (s *Store) GetEntriesByIDs(ctx context.Context, ids []int64) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	queryArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		queryArgs[i] = id
	}
	query := `SELECT id, entry_date, content, tags, created_at
		FROM entries WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying entries by ids: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListEntries returns all entries, newest first.
func (s *Store) ListEntries() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, entry_date, content, tags, created_at
		FROM entries ORDER BY entry_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// DeleteEntry removes the entry with the given id, or returns ErrNotFound.
func (s *Store) DeleteEntry(id int64) error {
	res, err := s.db.Exec("DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchEntries performs a case-insensitive substring search over entry
// content, newest first. This is the plain keyword search; semantic search
// lives in the retrieval package.
func (s *Store) SearchEntries(q string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, entry_date, content, tags, created_at
		FROM entries WHERE content LIKE ?
		ORDER BY entry_date DESC LIMIT ?`,
		"%"+q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// CountEntries returns the total number of stored entries.
func (s *Store) CountEntries() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var entryDate, createdAt string
	var tags sql.NullString
	if err := row.Scan(&e.ID, &entryDate, &e.Content, &tags, &createdAt); err != nil {
		return Entry{}, err
	}

	d, err := time.Parse(dateLayout, entryDate)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing entry_date %q: %w", entryDate, err)
	}
	e.Date = d
	e.Tags = tags.String

	// created_at may come back in either RFC3339 (written by us) or the
	// SQLite CURRENT_TIMESTAMP default format.
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, createdAt); err == nil {
			e.CreatedAt = t
			break
		}
	}
	return e, nil
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
