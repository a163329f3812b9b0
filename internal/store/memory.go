package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"transfer-rates/internal/rates"
	"transfer-rates/pkg/raterr"
)

// Memory keeps the current tree and its history in process memory. It is
// the canonical backend for tests and single-node deployments; commits are
// serialized under a mutex on top of the version check.
type Memory struct {
	mu      sync.Mutex
	current *rates.Tree
	history []rates.HistoryEntry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Current(ctx context.Context) (*rates.Tree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureCurrent().Clone(), nil
}

func (m *Memory) Commit(ctx context.Context, next *rates.Tree, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.ensureCurrent()
	if next.Version != cur.Version {
		return raterr.Concurrency("tree version %d is stale, current is %d", next.Version, cur.Version)
	}

	now := time.Now().UTC()
	m.history = append(m.history, rates.HistoryEntry{
		ID:         uuid.New(),
		Snapshot:   cur.Clone(),
		ArchivedAt: now,
		ArchivedBy: reason,
	})

	next.Version = cur.Version + 1
	next.UpdatedAt = now
	if !next.UpdatedAt.After(cur.UpdatedAt) {
		next.UpdatedAt = cur.UpdatedAt.Add(time.Microsecond)
	}
	m.current = next.Clone()
	return nil
}

func (m *Memory) History(ctx context.Context, limit int) ([]rates.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]rates.HistoryEntry, 0, len(m.history))
	for i := len(m.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		entry := m.history[i]
		entry.Snapshot = entry.Snapshot.Clone()
		out = append(out, entry)
	}
	return out, nil
}

func (m *Memory) ensureCurrent() *rates.Tree {
	if m.current == nil {
		m.current = rates.NewTree()
	}
	return m.current
}
