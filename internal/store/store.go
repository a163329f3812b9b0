// Package store persists the single current rate tree plus an append-only
// history of archived snapshots.
package store

import (
	"context"

	"transfer-rates/internal/rates"
)

// Store is the only path through which the current tree changes.
//
// Commit is one atomic unit: archive the existing current tree as a
// HistoryEntry tagged with reason, then write next as the new current with
// a refreshed UpdatedAt and Version advanced by one. next.Version must
// equal the stored version; a stale version fails with a retryable
// concurrency error and changes nothing. On success next's Version and
// UpdatedAt are updated in place to the committed values.
type Store interface {
	// Current returns a private copy of the current tree. The tree is
	// created empty at first use.
	Current(ctx context.Context) (*rates.Tree, error)

	// Commit archives the current tree and replaces it with next. reason
	// is an opaque audit tag ("add-city", "bulk-upload", ...).
	Commit(ctx context.Context, next *rates.Tree, reason string) error

	// History returns archived snapshots, newest first. limit <= 0 returns
	// everything.
	History(ctx context.Context, limit int) ([]rates.HistoryEntry, error)
}
