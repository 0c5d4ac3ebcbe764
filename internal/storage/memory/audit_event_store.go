package memory

import (
	"context"
	"sort"
	"sync"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

// AuditEventStore is an in-memory implementation of storage.AuditEventStore.
type AuditEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AuditEvent // keyed by event_id
	seq  []string                      // insertion order, for stable listing
}

// NewAuditEventStore creates a new in-memory audit event store.
func NewAuditEventStore() *AuditEventStore {
	return &AuditEventStore{
		data: make(map[string]*domain.AuditEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *AuditEventStore) Insert(_ context.Context, e *domain.AuditEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *e
	s.data[e.EventID] = &copy
	s.seq = append(s.seq, e.EventID)
	return nil
}

// ListByRound retrieves all events for a round, ordered by timestamp ASC
// with insertion order breaking ties.
func (s *AuditEventStore) ListByRound(_ context.Context, roundID string) ([]*domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AuditEvent
	for _, id := range s.seq {
		e := s.data[id]
		if e.RoundID == roundID {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

var _ storage.AuditEventStore = (*AuditEventStore)(nil)
