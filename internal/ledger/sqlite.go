// Package ledger records which pipeline nodes ran, so a rerun can skip the
// ones that already finished with the same command.
package ledger

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Status of a node execution
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Execution is the last recorded execution of a node
type Execution struct {
	Workflow    string
	Node        string
	Index       int
	Fingerprint string
	Status      Status
	ExitCode    int
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Ledger is a SQLite backed execution record
type Ledger struct {
	db *sql.DB
}

// Open opens (and creates if needed) the ledger at path
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// nodes of one workflow are written from several workers
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workflow TEXT NOT NULL,
		node TEXT NOT NULL,
		idx INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		UNIQUE(workflow, node, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Begin marks a node as running, replacing any earlier record
func (l *Ledger) Begin(workflow, node string, idx int, fingerprint string) error {
	_, err := l.db.Exec(
		`INSERT INTO executions (workflow, node, idx, fingerprint, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workflow, node, idx) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			status = excluded.status,
			exit_code = 0,
			started_at = excluded.started_at,
			completed_at = NULL`,
		workflow, node, idx, fingerprint, StatusRunning, time.Now().UTC(),
	)
	return err
}

// Complete marks a node as finished successfully
func (l *Ledger) Complete(workflow, node string, idx int) error {
	return l.finish(workflow, node, idx, StatusCompleted, 0)
}

// Fail marks a node as failed with the exit code of its command
func (l *Ledger) Fail(workflow, node string, idx int, exitCode int) error {
	return l.finish(workflow, node, idx, StatusFailed, exitCode)
}

func (l *Ledger) finish(workflow, node string, idx int, status Status, exitCode int) error {
	_, err := l.db.Exec(
		`UPDATE executions SET status = ?, exit_code = ?, completed_at = ?
		 WHERE workflow = ? AND node = ? AND idx = ?`,
		status, exitCode, time.Now().UTC(), workflow, node, idx,
	)
	return err
}

// Lookup returns the record of a node, or nil if it never ran
func (l *Ledger) Lookup(workflow, node string, idx int) (*Execution, error) {
	e := &Execution{}
	var completedAt sql.NullTime

	err := l.db.QueryRow(
		`SELECT workflow, node, idx, fingerprint, status, exit_code, started_at, completed_at
		 FROM executions WHERE workflow = ? AND node = ? AND idx = ?`,
		workflow, node, idx,
	).Scan(&e.Workflow, &e.Node, &e.Index, &e.Fingerprint, &e.Status, &e.ExitCode, &e.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return e, nil
}

// Done reports whether a node completed with the given fingerprint
func (l *Ledger) Done(workflow, node string, idx int, fingerprint string) (bool, error) {
	e, err := l.Lookup(workflow, node, idx)
	if err != nil || e == nil {
		return false, err
	}
	return e.Status == StatusCompleted && e.Fingerprint == fingerprint, nil
}

// List returns all records of a workflow ordered by node and index
func (l *Ledger) List(workflow string) ([]*Execution, error) {
	rows, err := l.db.Query(
		`SELECT workflow, node, idx, fingerprint, status, exit_code, started_at, completed_at
		 FROM executions WHERE workflow = ? ORDER BY node, idx`,
		workflow,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		e := &Execution{}
		var completedAt sql.NullTime
		if err := rows.Scan(&e.Workflow, &e.Node, &e.Index, &e.Fingerprint, &e.Status, &e.ExitCode, &e.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}
		execs = append(execs, e)
	}

	return execs, rows.Err()
}
