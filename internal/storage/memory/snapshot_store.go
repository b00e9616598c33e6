package memory

import (
	"context"
	"sort"
	"sync"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
// Snapshots sit outside the transactional state: they are best-effort
// history, not part of any valuation transaction.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.PoolValueSnapshot // keyed by pool_id
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string][]*domain.PoolValueSnapshot)}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot point.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.PoolValueSnapshot) error {
	if snap == nil || snap.PoolID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *snap
	s.data[snap.PoolID] = append(s.data[snap.PoolID], &cp)
	return nil
}

// GetByPoolID retrieves all snapshots for a pool, ordered by timestamp ASC.
func (s *SnapshotStore) GetByPoolID(_ context.Context, poolID string) ([]*domain.PoolValueSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(poolID, func(*domain.PoolValueSnapshot) bool { return true }), nil
}

// GetByTimeRange retrieves snapshots for a pool within [start, end] (inclusive).
func (s *SnapshotStore) GetByTimeRange(_ context.Context, poolID string, start, end int64) ([]*domain.PoolValueSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(poolID, func(p *domain.PoolValueSnapshot) bool {
		return p.TimestampMs >= start && p.TimestampMs <= end
	}), nil
}

func (s *SnapshotStore) collect(poolID string, keep func(*domain.PoolValueSnapshot) bool) []*domain.PoolValueSnapshot {
	var out []*domain.PoolValueSnapshot
	for _, p := range s.data[poolID] {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out
}
