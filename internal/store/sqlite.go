package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/boardwatch/internal/model"
)

// Ensure SQLiteStore implements model.JobStore.
var _ model.JobStore = (*SQLiteStore)(nil)

// SQLiteStore keeps seen records in a SQLite database. Records are loaded
// into memory at open; Append inserts inside a single transaction so a
// failed batch leaves the database untouched.
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu      sync.RWMutex
	records []model.JobRecord
	index   map[string]struct{}
}

const createJobsTable = `CREATE TABLE IF NOT EXISTS jobs (
	seq                INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint        TEXT NOT NULL UNIQUE,
	title              TEXT NOT NULL,
	company            TEXT NOT NULL,
	location           TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL DEFAULT '',
	salary             TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	job_type           TEXT NOT NULL DEFAULT '',
	posted_at          TEXT NOT NULL DEFAULT '',
	extracted_at       DATETIME NOT NULL,
	source             TEXT NOT NULL DEFAULT '',
	application_type   TEXT NOT NULL DEFAULT '',
	application_target TEXT NOT NULL DEFAULT ''
)`

const createMetaTable = `CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// OpenSQLiteStore opens (or creates) a SQLite database at dbPath and loads
// the stored records.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &model.StorageError{Path: dbPath, Op: "load", Err: fmt.Errorf("opening sqlite db: %w", err)}
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &model.StorageError{Path: dbPath, Op: "load", Err: fmt.Errorf("pinging sqlite db: %w", err)}
	}

	for _, stmt := range []string{createJobsTable, createMetaTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, &model.StorageError{Path: dbPath, Op: "load", Err: fmt.Errorf("creating schema: %w", err)}
		}
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.reload(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) reload(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint, title, company, location, url, salary,
		description, job_type, posted_at, extracted_at, source, application_type, application_target
		FROM jobs ORDER BY seq`)
	if err != nil {
		return &model.StorageError{Path: s.path, Op: "load", Err: fmt.Errorf("querying jobs: %w", err)}
	}
	defer rows.Close()

	var records []model.JobRecord
	for rows.Next() {
		var r model.JobRecord
		if err := rows.Scan(&r.Fingerprint, &r.Title, &r.Company, &r.Location, &r.URL, &r.Salary,
			&r.Description, &r.JobType, &r.PostedAt, &r.ExtractedAt, &r.Source,
			&r.ApplicationType, &r.ApplicationTarget); err != nil {
			return &model.StorageError{Path: s.path, Op: "load", Err: fmt.Errorf("scanning job: %w", err)}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return &model.StorageError{Path: s.path, Op: "load", Err: err}
	}

	s.mu.Lock()
	s.records = records
	s.index = make(map[string]struct{}, len(records))
	for _, r := range records {
		s.index[r.Fingerprint] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// Contains reports whether a record with the fingerprint has been stored.
func (s *SQLiteStore) Contains(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[fingerprint]
	return ok
}

// Records returns all records in insertion order.
func (s *SQLiteStore) Records() []model.JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.JobRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records.
func (s *SQLiteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Append inserts new records in one transaction and returns the ones it
// added. Existing fingerprints are a no-op. The in-memory view keeps the
// append even if the commit fails.
func (s *SQLiteStore) Append(ctx context.Context, records []model.JobRecord) ([]model.JobRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var claimed []model.JobRecord
	s.mu.Lock()
	for _, r := range records {
		if _, ok := s.index[r.Fingerprint]; ok {
			continue
		}
		s.index[r.Fingerprint] = struct{}{}
		s.records = append(s.records, r)
		claimed = append(claimed, r)
	}
	s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return claimed, &model.StorageError{Path: s.path, Op: "persist", Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO jobs (fingerprint, title, company,
		location, url, salary, description, job_type, posted_at, extracted_at, source,
		application_type, application_target) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return claimed, &model.StorageError{Path: s.path, Op: "persist", Err: fmt.Errorf("prepare insert: %w", err)}
	}
	defer stmt.Close()

	// Rows another process inserted first affect nothing and are not ours to report.
	added := make([]model.JobRecord, 0, len(claimed))
	for _, r := range claimed {
		res, err := stmt.ExecContext(ctx, r.Fingerprint, r.Title, r.Company, r.Location, r.URL,
			r.Salary, r.Description, r.JobType, r.PostedAt, r.ExtractedAt.UTC(), r.Source,
			r.ApplicationType, r.ApplicationTarget)
		if err != nil {
			return claimed, &model.StorageError{Path: s.path, Op: "persist", Err: fmt.Errorf("inserting %s: %w", r.Fingerprint, err)}
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			added = append(added, r)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('last_run', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return claimed, &model.StorageError{Path: s.path, Op: "persist", Err: fmt.Errorf("recording last run: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return claimed, &model.StorageError{Path: s.path, Op: "persist", Err: fmt.Errorf("commit: %w", err)}
	}
	return added, nil
}

// LastRun returns the time of the last committed Append, zero if never.
func (s *SQLiteStore) LastRun() time.Time {
	var raw string
	if err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'last_run'").Scan(&raw); err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Prune deletes records extracted before cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE extracted_at < ?", cutoff.UTC())
	if err != nil {
		return 0, &model.StorageError{Path: s.path, Op: "prune", Err: fmt.Errorf("deleting jobs older than %v: %w", cutoff, err)}
	}
	n, _ := res.RowsAffected()
	if err := s.reload(ctx); err != nil {
		return int(n), err
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
