// Package history keeps an audit trail of remote calls in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const schema = `CREATE TABLE IF NOT EXISTS remote_call_history(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	correlation_id TEXT,
	os_type TEXT,
	ip TEXT,
	port INTEGER,
	username TEXT,
	mode TEXT,
	use_bastion INTEGER,
	status TEXT,
	error_code TEXT,
	error_message TEXT,
	steps INTEGER,
	started_at TIMESTAMP,
	duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_remote_call_history_started ON remote_call_history(started_at);`

const defaultRecentLimit = 50

// Repo stores history entries in a SQLite database.
type Repo struct{ db *sql.DB }

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	repo := NewRepo(db)
	if err := repo.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepo wraps an open database.
func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// Migrate creates the history table when missing.
func (r *Repo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate history db: %w", err)
	}
	return nil
}

// SaveBatch inserts entries in one transaction.
func (r *Repo) SaveBatch(ctx context.Context, entries []ports.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO remote_call_history(
		correlation_id,os_type,ip,port,username,mode,use_bastion,status,error_code,error_message,steps,started_at,duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		startedAt := e.StartedAt
		if startedAt.IsZero() {
			startedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			e.CorrelationID, e.OSType, e.IP, e.Port, e.Username, e.Mode, e.UseBastion,
			e.Status, e.ErrorCode, e.ErrorMessage, e.Steps, startedAt.UTC(), e.DurationMS,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert history entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history batch: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]ports.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,correlation_id,os_type,ip,port,username,mode,use_bastion,status,error_code,error_message,steps,started_at,duration_ms
		FROM remote_call_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var list []ports.HistoryEntry
	for rows.Next() {
		var e ports.HistoryEntry
		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.OSType, &e.IP, &e.Port, &e.Username, &e.Mode, &e.UseBastion,
			&e.Status, &e.ErrorCode, &e.ErrorMessage, &e.Steps, &e.StartedAt, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Prune deletes all but the newest keep rows and reports how many were removed.
func (r *Repo) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM remote_call_history WHERE id IN (
		SELECT id FROM remote_call_history ORDER BY id DESC LIMIT -1 OFFSET ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the database.
func (r *Repo) Close() error { return r.db.Close() }

var _ ports.HistoryStore = (*Repo)(nil)
