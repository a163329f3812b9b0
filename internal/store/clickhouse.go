package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"transfer-rates/internal/rates"
	"transfer-rates/pkg/raterr"
)

// chCurrentID pins the single current row; ReplacingMergeTree keyed on id
// keeps the highest version for it.
var chCurrentID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

const chSchema = `
CREATE TABLE IF NOT EXISTS rate_trees (
	id          UUID,
	version     Int64,
	is_current  UInt8,
	archived_by String,
	archived_at DateTime64(3, 'UTC'),
	updated_at  DateTime64(3, 'UTC'),
	tree        String
) ENGINE = ReplacingMergeTree(version)
ORDER BY id
`

// ClickHouseConfig holds connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultClickHouseConfig returns development defaults.
func DefaultClickHouseConfig() *ClickHouseConfig {
	return &ClickHouseConfig{
		Host:     "localhost",
		Port:     9000,
		Database: "transfer_rates",
		Username: "default",
	}
}

// ClickHouse persists trees in a single ReplacingMergeTree table: one pinned
// row for the current snapshot, append-only rows for history. ClickHouse has
// no transactions, so the version check on commit is best-effort; the Store
// contract's stale-version rejection still holds for well-behaved callers.
type ClickHouse struct {
	conn clickhouse.Conn
}

// OpenClickHouse connects and ensures the schema.
func OpenClickHouse(ctx context.Context, cfg *ClickHouseConfig) (*ClickHouse, error) {
	if cfg == nil {
		cfg = DefaultClickHouseConfig()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, chSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

// Close closes the connection.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

func (c *ClickHouse) Current(ctx context.Context) (*rates.Tree, error) {
	row := c.conn.QueryRow(ctx, `
		SELECT version, updated_at, tree
		FROM rate_trees FINAL
		WHERE id = ? AND is_current = 1
		LIMIT 1`, chCurrentID)

	var version int64
	var updatedAt time.Time
	var treeJSON string
	if err := row.Scan(&version, &updatedAt, &treeJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rates.NewTree(), nil
		}
		return nil, fmt.Errorf("failed to load current tree: %w", err)
	}
	tree := &rates.Tree{}
	if err := json.Unmarshal([]byte(treeJSON), tree); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	tree.Version = version
	tree.UpdatedAt = updatedAt
	return tree, nil
}

func (c *ClickHouse) Commit(ctx context.Context, next *rates.Tree, reason string) error {
	cur, err := c.Current(ctx)
	if err != nil {
		return err
	}
	if next.Version != cur.Version {
		return raterr.Concurrency("tree version %d is stale, current is %d", next.Version, cur.Version)
	}

	now := time.Now().UTC()
	curJSON, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := c.conn.Exec(ctx, `
		INSERT INTO rate_trees (id, version, is_current, archived_by, archived_at, updated_at, tree)
		VALUES (?, ?, 0, ?, ?, ?, ?)`,
		uuid.New(), cur.Version, reason, now, cur.UpdatedAt, string(curJSON)); err != nil {
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}

	next.Version = cur.Version + 1
	next.UpdatedAt = now
	if !next.UpdatedAt.After(cur.UpdatedAt) {
		next.UpdatedAt = cur.UpdatedAt.Add(time.Millisecond)
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}
	if err := c.conn.Exec(ctx, `
		INSERT INTO rate_trees (id, version, is_current, archived_by, archived_at, updated_at, tree)
		VALUES (?, ?, 1, '', ?, ?, ?)`,
		chCurrentID, next.Version, now, next.UpdatedAt, string(nextJSON)); err != nil {
		return fmt.Errorf("failed to write current tree: %w", err)
	}
	return nil
}

func (c *ClickHouse) History(ctx context.Context, limit int) ([]rates.HistoryEntry, error) {
	query := `
		SELECT id, archived_at, archived_by, tree
		FROM rate_trees FINAL
		WHERE is_current = 0
		ORDER BY archived_at DESC, version DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []rates.HistoryEntry
	for rows.Next() {
		var entry rates.HistoryEntry
		var treeJSON string
		if err := rows.Scan(&entry.ID, &entry.ArchivedAt, &entry.ArchivedBy, &treeJSON); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Snapshot = &rates.Tree{}
		if err := json.Unmarshal([]byte(treeJSON), entry.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
