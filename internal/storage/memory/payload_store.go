package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
)

// PayloadStore is an in-memory implementation of storage.PayloadStore.
// Payloads round-trip through JSON so stored blobs are detached from the
// caller's maps, matching the filesystem store's serialization contract.
type PayloadStore struct {
	mu   sync.RWMutex
	data map[string][]byte // keyed by location
}

// NewPayloadStore creates a new in-memory payload store.
func NewPayloadStore() *PayloadStore {
	return &PayloadStore{
		data: make(map[string][]byte),
	}
}

// Compile-time interface check.
var _ storage.PayloadStore = (*PayloadStore)(nil)

// Write persists the payload under the snapshot id.
func (s *PayloadStore) Write(_ context.Context, id string, payload domain.RawPayload) (string, error) {
	if id == "" || payload == nil {
		return "", storage.ErrInvalidInput
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	location := id + ".snap"

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[location] = doc

	return location, nil
}

// Read loads a payload from a previously returned location.
func (s *PayloadStore) Read(_ context.Context, location string) (domain.RawPayload, error) {
	if location == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	doc, exists := s.data[location]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrPayloadUnavailable, location)
	}

	var payload domain.RawPayload
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrPayloadUnavailable, location, err)
	}

	return payload, nil
}

// Drop removes a stored payload. Test helper for simulating blob loss.
func (s *PayloadStore) Drop(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, location)
}
