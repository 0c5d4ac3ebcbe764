package memory

import (
	"context"
	"sort"
	"sync"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

// RoundStore is an in-memory implementation of storage.RoundStore.
type RoundStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Round // keyed by round ID
}

// NewRoundStore creates a new in-memory round store.
func NewRoundStore() *RoundStore {
	return &RoundStore{
		data: make(map[string]*domain.Round),
	}
}

// Insert adds a new round. Returns ErrDuplicateKey if the ID exists.
func (s *RoundStore) Insert(_ context.Context, r *domain.Round) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ID] = r.Clone()
	return nil
}

// Update replaces the stored round. Returns ErrNotFound if not exists.
func (s *RoundStore) Update(_ context.Context, r *domain.Round) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; !exists {
		return storage.ErrNotFound
	}

	s.data[r.ID] = r.Clone()
	return nil
}

// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
func (s *RoundStore) GetByID(_ context.Context, roundID string) (*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[roundID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return r.Clone(), nil
}

// List retrieves all rounds, ordered by created_at ASC.
func (s *RoundStore) List(_ context.Context) ([]*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Round, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, r.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

var _ storage.RoundStore = (*RoundStore)(nil)
