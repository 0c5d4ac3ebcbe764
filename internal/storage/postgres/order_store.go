package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Upsert inserts the order on first purchase and replaces it afterwards.
// (round_id, buyer) is the primary key.
func (s *OrderStore) Upsert(ctx context.Context, o *domain.Order) error {
	query := `
		INSERT INTO orders (
			round_id, buyer, coin_contributed, token_purchased, token_released,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (round_id, buyer) DO UPDATE SET
			coin_contributed = EXCLUDED.coin_contributed,
			token_purchased = EXCLUDED.token_purchased,
			token_released = EXCLUDED.token_released,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		o.RoundID,
		o.Buyer,
		int64(o.CoinContributed),
		int64(o.TokenPurchased),
		int64(o.TokenReleased),
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}

// Get retrieves the order for (round, buyer). Returns ErrNotFound if not exists.
func (s *OrderStore) Get(ctx context.Context, roundID, buyer string) (*domain.Order, error) {
	query := `
		SELECT round_id, buyer, coin_contributed, token_purchased, token_released,
		       created_at, updated_at
		FROM orders
		WHERE round_id = $1 AND buyer = $2
	`

	row := s.pool.QueryRow(ctx, query, roundID, buyer)
	o, err := scanOrder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListByRound retrieves all orders for a round, ordered by buyer ASC.
func (s *OrderStore) ListByRound(ctx context.Context, roundID string) ([]*domain.Order, error) {
	query := `
		SELECT round_id, buyer, coin_contributed, token_purchased, token_released,
		       created_at, updated_at
		FROM orders
		WHERE round_id = $1
		ORDER BY buyer ASC
	`

	rows, err := s.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

// scanOrder scans a single row into Order.
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var contributed, purchased, released int64

	err := row.Scan(
		&o.RoundID,
		&o.Buyer,
		&contributed,
		&purchased,
		&released,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.CoinContributed = uint64(contributed)
	o.TokenPurchased = uint64(purchased)
	o.TokenReleased = uint64(released)
	return &o, nil
}
