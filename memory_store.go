package household

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in memory HouseholdStore. Guests use one, and it backs
// tests and examples.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string][]json.RawMessage
}

var (
	_ HouseholdStore   = (*MemoryStore)(nil)
	_ HouseholdUpdater = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: map[string]map[string][]json.RawMessage{}}
}

// List implements HouseholdStore
func (s *MemoryStore) List(_ context.Context, householdID, collection string) ([]json.RawMessage, error) {
	if householdID == "" {
		return nil, ErrHouseholdNotSet
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneRecords(s.partitions[householdID][collection]), nil
}

// Replace implements HouseholdStore
func (s *MemoryStore) Replace(_ context.Context, householdID, collection string, records []json.RawMessage) error {
	if householdID == "" {
		return ErrHouseholdNotSet
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	partition, ok := s.partitions[householdID]
	if !ok {
		partition = map[string][]json.RawMessage{}
		s.partitions[householdID] = partition
	}
	partition[collection] = cloneRecords(records)
	return nil
}

// Update implements HouseholdUpdater. fn runs under the write lock.
func (s *MemoryStore) Update(_ context.Context, householdID, collection string, fn func([]json.RawMessage) ([]json.RawMessage, error)) error {
	if householdID == "" {
		return ErrHouseholdNotSet
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(cloneRecords(s.partitions[householdID][collection]))
	if err != nil {
		return err
	}

	partition, ok := s.partitions[householdID]
	if !ok {
		partition = map[string][]json.RawMessage{}
		s.partitions[householdID] = partition
	}
	partition[collection] = cloneRecords(next)
	return nil
}

func cloneRecords(records []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, len(records))
	for i, r := range records {
		out[i] = append(json.RawMessage(nil), r...)
	}
	return out
}
