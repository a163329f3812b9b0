package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"transfer-rates/internal/rates"
	"transfer-rates/pkg/raterr"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS rate_current (
	id         INT PRIMARY KEY,
	version    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	tree       JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS rate_history (
	id          UUID PRIMARY KEY,
	archived_at TIMESTAMPTZ NOT NULL,
	archived_by TEXT NOT NULL,
	version     BIGINT NOT NULL,
	tree        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS rate_history_archived_at_idx ON rate_history (archived_at DESC);
`

// currentRowID pins the single rate_current row.
const currentRowID = 1

// Postgres persists the tree in two tables: one single-row table for the
// current snapshot, one append-only table for history. Commit runs in a
// transaction with the current row locked, so the version check and the
// archive-then-write sequence are atomic.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects, verifies connectivity, and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Current(ctx context.Context) (*rates.Tree, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT version, updated_at, tree FROM rate_current WHERE id = $1`, currentRowID)
	tree, err := scanTree(row)
	if err == sql.ErrNoRows {
		return rates.NewTree(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current tree: %w", err)
	}
	return tree, nil
}

func (p *Postgres) Commit(ctx context.Context, next *rates.Tree, reason string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT version, updated_at, tree FROM rate_current WHERE id = $1 FOR UPDATE`, currentRowID)
	cur, err := scanTree(row)
	if err == sql.ErrNoRows {
		cur = rates.NewTree()
	} else if err != nil {
		return fmt.Errorf("failed to lock current tree: %w", err)
	}

	if next.Version != cur.Version {
		return raterr.Concurrency("tree version %d is stale, current is %d", next.Version, cur.Version)
	}

	now := time.Now().UTC()
	curJSON, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rate_history (id, archived_at, archived_by, version, tree) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), now, reason, cur.Version, curJSON); err != nil {
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}

	next.Version = cur.Version + 1
	next.UpdatedAt = now
	if !next.UpdatedAt.After(cur.UpdatedAt) {
		next.UpdatedAt = cur.UpdatedAt.Add(time.Microsecond)
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rate_current (id, version, updated_at, tree) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET version = $2, updated_at = $3, tree = $4`,
		currentRowID, next.Version, next.UpdatedAt, nextJSON); err != nil {
		return fmt.Errorf("failed to write current tree: %w", err)
	}

	return tx.Commit()
}

func (p *Postgres) History(ctx context.Context, limit int) ([]rates.HistoryEntry, error) {
	query := `SELECT id, archived_at, archived_by, tree FROM rate_history ORDER BY archived_at DESC, version DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []rates.HistoryEntry
	for rows.Next() {
		var entry rates.HistoryEntry
		var treeJSON []byte
		if err := rows.Scan(&entry.ID, &entry.ArchivedAt, &entry.ArchivedBy, &treeJSON); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Snapshot = &rates.Tree{}
		if err := json.Unmarshal(treeJSON, entry.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTree(row rowScanner) (*rates.Tree, error) {
	var version int64
	var updatedAt time.Time
	var treeJSON []byte
	if err := row.Scan(&version, &updatedAt, &treeJSON); err != nil {
		return nil, err
	}
	tree := &rates.Tree{}
	if err := json.Unmarshal(treeJSON, tree); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	tree.Version = version
	tree.UpdatedAt = updatedAt
	return tree, nil
}
