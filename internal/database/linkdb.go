// Package database stores crawl results in a SQLite file.
//
// Each run is one row in runs; its discovered links are rows in links keyed
// by run id. A file can hold any number of runs.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/amosWeiskopf/linkcrawl/internal/models"
)

// ErrRunNotFound is returned when a run id has no stored result.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LinkDB is a SQLite store of crawl results.
type LinkDB struct {
	db   *sql.DB
	path string
}

// Options configures LinkDB behavior.
type Options struct {
	// CreateIfNotExists creates the file and its directory when missing.
	CreateIfNotExists bool

	// EnableWAL enables write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database file at path.
func Open(path string, opts Options) (*LinkDB, error) {
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", path)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	db, err := sql.Open("sqlite", path+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ldb := &LinkDB{db: db, path: path}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := ldb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return ldb, nil
}

// Path returns the database file path.
func (ldb *LinkDB) Path() string {
	return ldb.path
}

// Close closes the database connection.
func (ldb *LinkDB) Close() error {
	return ldb.db.Close()
}

func (ldb *LinkDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		pages_fetched INTEGER NOT NULL,
		peak_in_flight INTEGER NOT NULL,
		max_concurrency INTEGER NOT NULL,
		total_links INTEGER NOT NULL,
		seeds TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		host TEXT NOT NULL,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_links_run ON links(run_id);
	CREATE INDEX IF NOT EXISTS idx_links_host ON links(host);
	`
	_, err := ldb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveResult stores result and its links in one transaction.
func (ldb *LinkDB) SaveResult(ctx context.Context, result *models.CrawlResult) error {
	seedsJSON, err := json.Marshal(result.Seeds)
	if err != nil {
		return fmt.Errorf("failed to serialize seeds: %w", err)
	}
	var summaryJSON sql.NullString
	if result.Summary != nil {
		data, err := json.Marshal(result.Summary)
		if err != nil {
			return fmt.Errorf("failed to serialize summary: %w", err)
		}
		summaryJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := ldb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, strategy, started_at, finished_at, pages_fetched, peak_in_flight, max_concurrency, total_links, seeds, summary)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID,
		result.Strategy,
		result.StartedAt.UTC().Format(timeLayout),
		result.FinishedAt.UTC().Format(timeLayout),
		result.PagesFetched,
		result.PeakInFlight,
		result.MaxConcurrency,
		result.TotalLinks,
		string(seedsJSON),
		summaryJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO links (run_id, url, host) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer stmt.Close()

	for _, link := range result.Links {
		if _, err := stmt.ExecContext(ctx, result.RunID, link, hostOf(link)); err != nil {
			return fmt.Errorf("failed to insert link %s: %w", link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// LoadResult retrieves a stored run with its links in display order.
func (ldb *LinkDB) LoadResult(ctx context.Context, runID string) (*models.CrawlResult, error) {
	var (
		result            models.CrawlResult
		started, finished string
		seedsJSON         string
		summaryJSON       sql.NullString
	)
	err := ldb.db.QueryRowContext(ctx, `
	SELECT run_id, strategy, started_at, finished_at, pages_fetched, peak_in_flight, max_concurrency, total_links, seeds, summary
	FROM runs WHERE run_id = ?
	`, runID).Scan(
		&result.RunID,
		&result.Strategy,
		&started,
		&finished,
		&result.PagesFetched,
		&result.PeakInFlight,
		&result.MaxConcurrency,
		&result.TotalLinks,
		&seedsJSON,
		&summaryJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	result.StartedAt = parseTimestamp(started)
	result.FinishedAt = parseTimestamp(finished)
	if err := json.Unmarshal([]byte(seedsJSON), &result.Seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seeds: %w", err)
	}
	if summaryJSON.Valid {
		result.Summary = &models.Summary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), result.Summary); err != nil {
			return nil, fmt.Errorf("failed to parse summary: %w", err)
		}
	}

	result.Links, err = ldb.Links(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Links returns the links stored for runID ordered by URL.
func (ldb *LinkDB) Links(ctx context.Context, runID string) ([]string, error) {
	rows, err := ldb.db.QueryContext(ctx, `SELECT url FROM links WHERE run_id = ? ORDER BY url`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	links := make([]string, 0)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// RunIDs returns stored run ids, most recent first.
func (ldb *LinkDB) RunIDs(ctx context.Context) ([]string, error) {
	rows, err := ldb.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
