package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gigmail/internal/model"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one pipeline execution as kept in the ledger.
type Run struct {
	ID         string
	Site       string
	RunDate    string
	Query      []string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Error      string
	Rows       int
}

// Listing is a ledger entry for one listing URL across runs.
type Listing struct {
	model.ListingRow
	FirstRunID string
	LastRunID  string
	SeenCount  int
}

// SQLiteStore is the run ledger backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	site        TEXT NOT NULL,
	run_date    TEXT NOT NULL,
	query       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	row_count   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	run_id     TEXT NOT NULL,
	id         TEXT NOT NULL,
	sender     TEXT NOT NULL DEFAULT '',
	date       TEXT NOT NULL DEFAULT '',
	row_count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS listings (
	url          TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	date         TEXT NOT NULL,
	first_run_id TEXT NOT NULL,
	last_run_id  TEXT NOT NULL,
	seen_count   INTEGER NOT NULL DEFAULT 1
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartRun records a run in the running state.
func (s *SQLiteStore) StartRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, site, run_date, query, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Site, r.RunDate, strings.Join(r.Query, " "), r.StartedAt.UTC().Format(time.RFC3339), StatusRunning)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun sets the final status of a run. runErr may be nil.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, finished time.Time, rows int, runErr error) error {
	status, msg := StatusOK, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, error = ?, row_count = ? WHERE id = ?
	`, finished.UTC().Format(time.RFC3339), status, msg, rows, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update run: unknown run %s", id)
	}
	return nil
}

// GetRun loads one run.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	var query, started, finished string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, site, run_date, query, started_at, finished_at, status, error, row_count
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Site, &r.RunDate, &query, &started, &finished, &r.Status, &r.Error, &r.Rows)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return Run{}, err
	}
	r.Query = strings.Fields(query)
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	if finished != "" {
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	}
	return r, nil
}

// UpsertMessages stores the messages processed by a run.
func (s *SQLiteStore) UpsertMessages(ctx context.Context, runID string, msgs []model.ProcessedMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (run_id, id, sender, date, row_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, id) DO UPDATE SET
			sender    = excluded.sender,
			date      = excluded.date,
			row_count = excluded.row_count
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, runID, m.ID, m.Sender, m.Date, m.RowCount); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadMessages returns the messages of one run.
func (s *SQLiteStore) LoadMessages(ctx context.Context, runID string) ([]model.ProcessedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sender, date, row_count FROM messages WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ProcessedMessage
	for rows.Next() {
		var m model.ProcessedMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Date, &m.RowCount); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpsertListings stores rows keyed by URL. A URL seen again keeps its first
// run, takes the newest title and date, and bumps its seen count.
func (s *SQLiteStore) UpsertListings(ctx context.Context, runID string, rows []model.ListingRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings (url, title, date, first_run_id, last_run_id, seen_count)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(url) DO UPDATE SET
			title       = excluded.title,
			date        = excluded.date,
			last_run_id = excluded.last_run_id,
			seen_count  = listings.seen_count + 1
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.URL, r.Title, r.Date, runID, runID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadListings returns every listing ordered by date, then URL.
func (s *SQLiteStore) LoadListings(ctx context.Context) ([]Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT url, title, date, first_run_id, last_run_id, seen_count FROM listings ORDER BY date, url")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.URL, &l.Title, &l.Date, &l.FirstRunID, &l.LastRunID, &l.SeenCount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountListings(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&count)
	return count, err
}
