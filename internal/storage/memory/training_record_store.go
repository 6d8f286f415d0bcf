package memory

import (
	"context"
	"sort"
	"sync"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
)

// TrainingRecordStore is an in-memory implementation of
// storage.TrainingRecordStore.
type TrainingRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TrainingRecord // keyed by record id
}

// NewTrainingRecordStore creates a new in-memory training record store.
func NewTrainingRecordStore() *TrainingRecordStore {
	return &TrainingRecordStore{
		data: make(map[string]*domain.TrainingRecord),
	}
}

// Compile-time interface check.
var _ storage.TrainingRecordStore = (*TrainingRecordStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if the id exists.
func (s *TrainingRecordStore) Insert(_ context.Context, r *domain.TrainingRecord) error {
	if r == nil || r.ID == "" || r.SnapshotID == "" {
		return storage.ErrInvalidInput
	}
	if !r.ConversationType.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ID] = cloneRecord(r)
	return nil
}

// InsertBulk adds multiple records. Fails the entire batch on any duplicate.
func (s *TrainingRecordStore) InsertBulk(_ context.Context, records []*domain.TrainingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.ID == "" || r.SnapshotID == "" || !r.ConversationType.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[r.ID]; dup {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.data[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.ID] = struct{}{}
	}

	for _, r := range records {
		s.data[r.ID] = cloneRecord(r)
	}
	return nil
}

// GetByID retrieves a record by its id. Returns ErrNotFound if not exists.
func (s *TrainingRecordStore) GetByID(_ context.Context, id string) (*domain.TrainingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return cloneRecord(r), nil
}

// GetBySnapshotID retrieves all records for one snapshot, ordered by
// creation time ASC, id ASC.
func (s *TrainingRecordStore) GetBySnapshotID(_ context.Context, snapshotID string) ([]*domain.TrainingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TrainingRecord
	for _, r := range s.data {
		if r.SnapshotID == snapshotID {
			result = append(result, cloneRecord(r))
		}
	}

	sortRecordsAsc(result)
	return result, nil
}

// Query retrieves records matching the filter, ordered by creation time
// DESC, id DESC.
func (s *TrainingRecordStore) Query(_ context.Context, filter storage.TrainingRecordFilter) ([]*domain.TrainingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TrainingRecord
	for _, r := range s.data {
		if matchesRecordFilter(r, filter) {
			result = append(result, cloneRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit := filter.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// GetAll retrieves every record, ordered by creation time ASC, id ASC.
func (s *TrainingRecordStore) GetAll(_ context.Context) ([]*domain.TrainingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TrainingRecord, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, cloneRecord(r))
	}

	sortRecordsAsc(result)
	return result, nil
}

// SetHumanValidated flips the validation flag on an existing record.
func (s *TrainingRecordStore) SetHumanValidated(_ context.Context, id string, validated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	r.HumanValidated = validated
	return nil
}

func matchesRecordFilter(r *domain.TrainingRecord, f storage.TrainingRecordFilter) bool {
	if f.SnapshotID != "" && r.SnapshotID != f.SnapshotID {
		return false
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if r.ConversationType == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinQualityScore != nil && r.QualityScore < *f.MinQualityScore {
		return false
	}
	if f.OnlyValidated && !r.HumanValidated {
		return false
	}
	return true
}

func sortRecordsAsc(records []*domain.TrainingRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// cloneRecord copies a record including its context map so callers never
// share state with the store.
func cloneRecord(r *domain.TrainingRecord) *domain.TrainingRecord {
	out := *r
	if r.Context != nil {
		out.Context = make(map[string]any, len(r.Context))
		for k, v := range r.Context {
			out.Context[k] = v
		}
	}
	return &out
}
