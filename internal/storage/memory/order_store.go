package memory

import (
	"context"
	"sort"
	"sync"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

// OrderStore is an in-memory implementation of storage.OrderStore.
type OrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Order // keyed by roundID|buyer
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		data: make(map[string]*domain.Order),
	}
}

func orderKey(roundID, buyer string) string {
	return roundID + "|" + buyer
}

// Upsert inserts the order on first purchase and replaces it afterwards.
func (s *OrderStore) Upsert(_ context.Context, o *domain.Order) error {
	if o == nil || o.RoundID == "" || o.Buyer == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[orderKey(o.RoundID, o.Buyer)] = o.Clone()
	return nil
}

// Get retrieves the order for (round, buyer). Returns ErrNotFound if not exists.
func (s *OrderStore) Get(_ context.Context, roundID, buyer string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[orderKey(roundID, buyer)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return o.Clone(), nil
}

// ListByRound retrieves all orders for a round, ordered by buyer ASC.
func (s *OrderStore) ListByRound(_ context.Context, roundID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Order
	for _, o := range s.data {
		if o.RoundID == roundID {
			result = append(result, o.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Buyer < result[j].Buyer
	})

	return result, nil
}

var _ storage.OrderStore = (*OrderStore)(nil)
