package memory

import (
	"context"
	"sync"

	"soltrader/internal/domain"
	"soltrader/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	rows []*domain.FeatureRow
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{}
}

// InsertBulk appends one scan's feature rows.
func (s *FeatureStore) InsertBulk(_ context.Context, rows []*domain.FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r == nil || r.Address == "" {
			return storage.ErrInvalidInput
		}
		copy := *r
		s.rows = append(s.rows, &copy)
	}
	return nil
}

// All returns every archived row in insertion order. Test helper.
func (s *FeatureStore) All() []*domain.FeatureRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.FeatureRow, 0, len(s.rows))
	for _, r := range s.rows {
		copy := *r
		result = append(result, &copy)
	}
	return result
}

var _ storage.FeatureStore = (*FeatureStore)(nil)
