// Package journal records CLI operations and their per-file outcomes in a
// local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"dsync-go/internal/config"
	"dsync-go/internal/journal/migrations"
)

const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation is one journaled CLI invocation.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// Result is the outcome of one file within an operation.
type Result struct {
	OperationID int64
	Path        string
	OK          bool
	Message     string
	RecordedAt  time.Time
}

// SQLiteJournal stores operations in SQLite.
type SQLiteJournal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the journal at path and migrates it.
// path may be ":memory:".
func Open(path string) (*SQLiteJournal, error) {
	// The DSN flag applies foreign keys to every pooled connection.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal %s: %w", path, err)
	}
	return &SQLiteJournal{db: db, path: path, now: time.Now}, nil
}

// NewJournalFromConfig opens the journal selected by cfg.Type.
func NewJournalFromConfig(cfg config.JournalConfig) (*SQLiteJournal, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite journal")
		}
		return Open(cfg.Path)
	case "memory":
		return Open(":memory:")
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}

func (j *SQLiteJournal) Path() string { return j.path }

// StartOperation inserts a running operation and returns it.
func (j *SQLiteJournal) StartOperation(ctx context.Context, operation, parameters string) (*Operation, error) {
	op := &Operation{
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  j.now().UTC(),
		Status:     StatusRunning,
	}
	res, err := j.db.ExecContext(ctx,
		"INSERT INTO operations (operation, parameters, started_at, status) VALUES (?, ?, ?, ?)",
		op.Operation, op.Parameters, op.StartedAt, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

// RecordResult stores the outcome of one file. A nil err means success.
func (j *SQLiteJournal) RecordResult(ctx context.Context, operationID int64, path string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_, dbErr := j.db.ExecContext(ctx,
		"INSERT INTO file_results (operation_id, path, ok, message, recorded_at) VALUES (?, ?, ?, ?, ?)",
		operationID, path, err == nil, msg, j.now().UTC())
	if dbErr != nil {
		return fmt.Errorf("recording result for %s: %w", path, dbErr)
	}
	return nil
}

// FinishOperation sets the final status and finish time.
func (j *SQLiteJournal) FinishOperation(ctx context.Context, id int64, status string) error {
	res, err := j.db.ExecContext(ctx,
		"UPDATE operations SET finished_at = ?, status = ? WHERE id = ?",
		j.now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// RecentOperations returns up to limit operations, newest first.
func (j *SQLiteJournal) RecentOperations(ctx context.Context, limit int) ([]*Operation, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, operation, parameters, started_at, finished_at, status FROM operations ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		var op Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = &finished.Time
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Results returns the file results of one operation in recording order.
func (j *SQLiteJournal) Results(ctx context.Context, operationID int64) ([]*Result, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT operation_id, path, ok, message, recorded_at FROM file_results WHERE operation_id = ? ORDER BY id",
		operationID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.OperationID, &r.Path, &r.OK, &r.Message, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return results, nil
}

// CheckMigrations verifies the schema is up to date.
func (j *SQLiteJournal) CheckMigrations() error {
	return migrations.CheckStatus(j.db)
}

func (j *SQLiteJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
