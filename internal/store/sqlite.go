package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Page is one persisted fetch result. Error is set instead of Fields for
// URLs that failed terminally; error-flagged records stay in the dataset
// rather than crashing the run.
type Page struct {
	RunID      string
	URL        string
	FetchedAt  time.Time
	StatusCode int
	Fields     Record
	Error      string
}

// DB is a SQLite-backed page store.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path, enabling WAL and the
// single-writer pool SQLite wants.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &DB{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *DB) Path() string { return s.path }

func (s *DB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		fetched_at DATETIME NOT NULL,
		status_code INTEGER,
		fields TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// SavePages inserts pages in one transaction.
func (s *DB) SavePages(ctx context.Context, pages []Page) error {
	if len(pages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pages (run_id, url, fetched_at, status_code, fields, error)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range pages {
		var fields []byte
		if p.Fields != nil {
			fields, err = json.Marshal(p.Fields)
			if err != nil {
				return fmt.Errorf("marshal fields for %s: %w", p.URL, err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			p.RunID, p.URL, p.FetchedAt.UTC(), p.StatusCode, string(fields), p.Error,
		); err != nil {
			return fmt.Errorf("insert page %s: %w", p.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadPages returns the pages recorded for runID in insertion order.
func (s *DB) LoadPages(ctx context.Context, runID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, url, fetched_at, status_code, fields, error
		 FROM pages WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pages []Page
	for rows.Next() {
		var (
			p      Page
			fields string
		)
		if err := rows.Scan(&p.RunID, &p.URL, &p.FetchedAt, &p.StatusCode, &fields, &p.Error); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if fields != "" {
			if err := json.Unmarshal([]byte(fields), &p.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal fields for %s: %w", p.URL, err)
			}
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}
