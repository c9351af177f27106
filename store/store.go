// Package store persists run history in SQLite and exports batches as
// timestamped JSON files.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/carnet/scrape"
	"github.com/hazyhaar/carnet/trending"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword    TEXT NOT NULL,
	started_at TEXT NOT NULL,
	attempted  INTEGER NOT NULL,
	succeeded  INTEGER NOT NULL,
	skipped    INTEGER NOT NULL,
	errored    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	run_id        INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	note_id       TEXT NOT NULL,
	title         TEXT NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	like_count    TEXT NOT NULL DEFAULT '0',
	body          TEXT NOT NULL DEFAULT '',
	collect_count TEXT NOT NULL DEFAULT '',
	comment_count TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	publish_time  TEXT NOT NULL DEFAULT '',
	author        TEXT NOT NULL DEFAULT '',
	detail_url    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	captured_at   TEXT NOT NULL,
	PRIMARY KEY (run_id, note_id)
);

CREATE TABLE IF NOT EXISTS topics (
	collected_at TEXT NOT NULL,
	name         TEXT NOT NULL,
	rank         TEXT NOT NULL DEFAULT '',
	heat         INTEGER NOT NULL DEFAULT 0,
	frequency    INTEGER NOT NULL DEFAULT 0,
	source       TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_topics_collected ON topics(collected_at);
`

// Store wraps the run-history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with WAL,
// busy_timeout, and foreign_keys applied via EXEC.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own database.
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveBatch records one run and its notes, returning the run ID.
func (s *Store) SaveBatch(ctx context.Context, batch *scrape.BatchResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (keyword, started_at, attempted, succeeded, skipped, errored)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		batch.Keyword, batch.StartedAt.UTC().Format(time.RFC3339),
		batch.Attempted, batch.Succeeded, batch.Skipped, batch.Errored)
	if err != nil {
		return 0, fmt.Errorf("store: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO notes (run_id, note_id, title, url, like_count, body,
		    collect_count, comment_count, tags, publish_time, author,
		    detail_url, status, error, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, note_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare notes: %w", err)
	}
	defer stmt.Close()

	for _, rec := range batch.Records {
		tags, err := json.Marshal(rec.Detail.Tags)
		if err != nil {
			return 0, fmt.Errorf("store: marshal tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, rec.ID, rec.Title, rec.URL, rec.LikeCount,
			rec.Detail.Body, rec.Detail.CollectCount, rec.Detail.CommentCount,
			string(tags), rec.Detail.PublishTime, rec.Detail.Author,
			rec.Detail.DetailURL, rec.Detail.Status.String(), rec.Detail.Err,
			rec.CapturedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return 0, fmt.Errorf("store: insert note %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return runID, nil
}

// SaveTopics appends one trending collection, all rows sharing a timestamp.
func (s *Store) SaveTopics(ctx context.Context, topics []trending.Topic) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	collectedAt := time.Now().UTC().Format(time.RFC3339)
	for _, t := range topics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO topics (collected_at, name, rank, heat, frequency, source, url)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			collectedAt, t.Name, t.Rank, t.Heat, t.Frequency, string(t.Source), t.URL,
		); err != nil {
			return fmt.Errorf("store: insert topic %s: %w", t.Name, err)
		}
	}
	return tx.Commit()
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID        int64     `json:"id"`
	Keyword   string    `json:"keyword"`
	StartedAt time.Time `json:"started_at"`
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Errored   int       `json:"errored"`
}

// Runs lists runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, keyword, started_at, attempted, succeeded, skipped, errored
		 FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		if err := rows.Scan(&r.ID, &r.Keyword, &started,
			&r.Attempted, &r.Succeeded, &r.Skipped, &r.Errored); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunNotes returns a run's notes in insertion order.
func (s *Store) RunNotes(ctx context.Context, runID int64) ([]*scrape.SummaryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id, title, url, like_count, body, collect_count,
		    comment_count, tags, publish_time, author, detail_url, status,
		    error, captured_at
		 FROM notes WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query notes: %w", err)
	}
	defer rows.Close()

	var out []*scrape.SummaryRecord
	for rows.Next() {
		rec := &scrape.SummaryRecord{}
		var tags, status, captured string
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.URL, &rec.LikeCount,
			&rec.Detail.Body, &rec.Detail.CollectCount, &rec.Detail.CommentCount,
			&tags, &rec.Detail.PublishTime, &rec.Detail.Author,
			&rec.Detail.DetailURL, &status, &rec.Detail.Err, &captured); err != nil {
			return nil, fmt.Errorf("store: scan note: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &rec.Detail.Tags); err != nil {
			return nil, fmt.Errorf("store: tags of %s: %w", rec.ID, err)
		}
		rec.Detail.Status = scrape.ParseStatus(status)
		rec.CapturedAt, _ = time.Parse(time.RFC3339, captured)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ExportJSON writes v to dir/<prefix>_<timestamp>.json and returns the path.
func ExportJSON(dir, prefix string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: mkdir export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", prefix, time.Now().Format("20060102_150405")))
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("store: marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store: write export: %w", err)
	}
	return path, nil
}
