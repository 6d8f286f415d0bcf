package memory

import (
	"context"
	"sort"
	"sync"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
)

// SnapshotIndex is an in-memory implementation of storage.SnapshotIndex.
type SnapshotIndex struct {
	mu   sync.RWMutex
	data map[string]*domain.Snapshot // keyed by snapshot id
}

// NewSnapshotIndex creates a new in-memory snapshot index.
func NewSnapshotIndex() *SnapshotIndex {
	return &SnapshotIndex{
		data: make(map[string]*domain.Snapshot),
	}
}

// Compile-time interface check.
var _ storage.SnapshotIndex = (*SnapshotIndex)(nil)

// Insert adds a new snapshot row. The metadata blob is not retained in
// memory; the snapshot columns carry everything this implementation serves.
func (s *SnapshotIndex) Insert(_ context.Context, snap *domain.Snapshot, _ *domain.Metadata) error {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}
	if !snap.AnalysisType.IsValid() || !snap.MarketCondition.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snap.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[snap.ID] = cloneSnapshot(snap)
	return nil
}

// GetByID retrieves a snapshot by its id. Returns ErrNotFound if not exists.
func (s *SnapshotIndex) GetByID(_ context.Context, id string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return cloneSnapshot(snap), nil
}

// Query retrieves snapshots matching the filter, ordered by timestamp DESC,
// id DESC.
func (s *SnapshotIndex) Query(_ context.Context, filter storage.SnapshotFilter) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Snapshot
	for _, snap := range s.data {
		if matchesSnapshotFilter(snap, filter) {
			result = append(result, cloneSnapshot(snap))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].ID > result[j].ID
	})

	if limit := filter.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func matchesSnapshotFilter(snap *domain.Snapshot, f storage.SnapshotFilter) bool {
	if f.Ticker != "" && snap.Ticker != f.Ticker {
		return false
	}
	if f.Start != nil && snap.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && snap.Timestamp.After(*f.End) {
		return false
	}
	if f.MarketCondition != "" && snap.MarketCondition != f.MarketCondition {
		return false
	}
	if f.AnalysisType != "" && snap.AnalysisType != f.AnalysisType {
		return false
	}
	if f.MinQualityScore != nil && snap.DataQualityScore < *f.MinQualityScore {
		return false
	}
	return true
}

// cloneSnapshot copies a snapshot including its slice fields so callers
// never share backing arrays with the store.
func cloneSnapshot(snap *domain.Snapshot) *domain.Snapshot {
	out := *snap
	out.Timeframes = append([]string(nil), snap.Timeframes...)
	out.Tags = append([]string(nil), snap.Tags...)
	return &out
}
