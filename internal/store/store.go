package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/m-voss/devcell/protocol"
)

// Sentinel errors
var (
	ErrNotFound = errors.New("not found")
)

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
// Handles wrapped errors from database/sql.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// Store persists per-project run state. The lifecycle controller only
// writes to it; the in-memory session stays the source of truth.
type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS projects (
	project_id TEXT PRIMARY KEY,
	state      TEXT NOT NULL DEFAULT 'idle',
	url        TEXT NOT NULL DEFAULT '',
	port       INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_state ON projects(state);
`

// dsnWithPragmas returns a connection string with WAL, busy_timeout, and perf
// pragmas applied to every new connection by the driver.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsnWithPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetState upserts the record for a project. URL and port are stored as
// given; idle and error transitions pass empty values.
func (s *Store) SetState(projectID string, state protocol.ProjectState, url string, port int) error {
	err := retryOnBusy(func() error {
		_, e := s.db.Exec(
			`INSERT INTO projects (project_id, state, url, port, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(project_id) DO UPDATE SET
			   state = excluded.state, url = excluded.url,
			   port = excluded.port, updated_at = excluded.updated_at`,
			projectID, string(state), url, port, time.Now().UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("upserting project state: %w", err)
	}
	return nil
}

func (s *Store) Get(projectID string) (*protocol.ProjectStatus, error) {
	row := s.db.QueryRow(
		`SELECT project_id, state, url, port, updated_at
		 FROM projects WHERE project_id = ?`, projectID,
	)
	st, err := scanProject(row)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, projectID)
	}
	return st, nil
}

func (s *Store) List() ([]*protocol.ProjectStatus, error) {
	rows, err := s.db.Query(
		`SELECT project_id, state, url, port, updated_at
		 FROM projects ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var result []*protocol.ProjectStatus
	for rows.Next() {
		st, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}
	return result, nil
}

func (s *Store) Delete(projectID string) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(`DELETE FROM projects WHERE project_id = ?`, projectID)
		return e
	})
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, projectID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProject(row scannable) (*protocol.ProjectStatus, error) {
	var st protocol.ProjectStatus
	var state string
	err := row.Scan(&st.ProjectID, &state, &st.URL, &st.Port, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	st.State = protocol.ProjectState(state)
	return &st, nil
}
