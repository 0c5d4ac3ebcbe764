package storage

import (
	"context"

	"token-raise-service/internal/domain"
)

// RoundStore provides access to rounds storage.
type RoundStore interface {
	// Insert adds a new round. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, r *domain.Round) error

	// Update replaces the stored round. Returns ErrNotFound if not exists.
	Update(ctx context.Context, r *domain.Round) error

	// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, roundID string) (*domain.Round, error)

	// List retrieves all rounds, ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.Round, error)
}

// OrderStore provides access to orders storage.
type OrderStore interface {
	// Upsert inserts the order on first purchase and replaces it afterwards.
	Upsert(ctx context.Context, o *domain.Order) error

	// Get retrieves the order for (round, buyer). Returns ErrNotFound if not exists.
	Get(ctx context.Context, roundID, buyer string) (*domain.Order, error)

	// ListByRound retrieves all orders for a round, ordered by buyer ASC.
	ListByRound(ctx context.Context, roundID string) ([]*domain.Order, error)
}

// AuditEventStore provides access to the append-only audit trail.
type AuditEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.AuditEvent) error

	// ListByRound retrieves all events for a round, ordered by timestamp ASC.
	ListByRound(ctx context.Context, roundID string) ([]*domain.AuditEvent, error)
}
