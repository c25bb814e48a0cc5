package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/genmesh/core"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Index on audit_snapshots(reason, finished_at)
const currentSchemaVersion = 1

// Store persists generation results and audit snapshots.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Find implements core.ResultStore.
func (s *Store) Find(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM results WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find result %s: %w", key, err)
	}
	return data, true, nil
}

// Insert implements core.ResultStore. An existing key is overwritten.
func (s *Store) Insert(ctx context.Context, key string, data []byte) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (key, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data, now, now)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", key, err)
	}
	return nil
}

// Delete removes a stored result.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete result %s: %w", key, err)
	}
	return nil
}

// Append implements core.AuditSink. A second snapshot for the same context
// id is rejected by the primary key.
func (s *Store) Append(ctx context.Context, snap core.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_snapshots (id, reason, status, total_cost, snapshot, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.Reason, snap.Status.String(), snap.Usage.Total, string(body),
		snap.CreatedAt.UnixMilli(), snap.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("append snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// SnapshotRecord is the stored form of a snapshot. Snapshot.Status is not
// decoded (it is stored by name); use Status.
type SnapshotRecord struct {
	ID        string
	Reason    string
	Status    string
	TotalCost float64
	Snapshot  json.RawMessage
}

// Snapshots returns the most recent snapshots, optionally filtered by
// reason (empty means all), newest first.
func (s *Store) Snapshots(ctx context.Context, reason string, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reason, status, total_cost, snapshot
		FROM audit_snapshots
		WHERE (? = '' OR reason = ?)
		ORDER BY finished_at DESC, id
		LIMIT ?
	`, reason, reason, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var body string
		if err := rows.Scan(&rec.ID, &rec.Reason, &rec.Status, &rec.TotalCost, &body); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		rec.Snapshot = json.RawMessage(body)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// TotalCost sums the cost of every audited context with the given reason
// (empty means all).
func (s *Store) TotalCost(ctx context.Context, reason string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(total_cost) FROM audit_snapshots WHERE (? = '' OR reason = ?)`,
		reason, reason,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cost: %w", err)
	}
	return total.Float64, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_audit_reason_finished
			ON audit_snapshots(reason, finished_at)
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}
