package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

func TestOrderStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	o := &domain.Order{
		RoundID:         "round-1",
		Buyer:           "alice",
		CoinContributed: 500,
		TokenPurchased:  1_000,
		TokenReleased:   0,
		CreatedAt:       1_700_000_000_000,
		UpdatedAt:       1_700_000_000_000,
	}
	require.NoError(t, store.Upsert(ctx, o))

	got, err := store.Get(ctx, "round-1", "alice")
	require.NoError(t, err)

	assert.Equal(t, o.RoundID, got.RoundID)
	assert.Equal(t, o.Buyer, got.Buyer)
	assert.Equal(t, o.CoinContributed, got.CoinContributed)
	assert.Equal(t, o.TokenPurchased, got.TokenPurchased)
	assert.Equal(t, o.TokenReleased, got.TokenReleased)
	assert.Equal(t, o.CreatedAt, got.CreatedAt)
	assert.Equal(t, o.UpdatedAt, got.UpdatedAt)
}

func TestOrderStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	o := &domain.Order{
		RoundID:         "round-1",
		Buyer:           "alice",
		CoinContributed: 500,
		TokenPurchased:  1_000,
		CreatedAt:       1_700_000_000_000,
		UpdatedAt:       1_700_000_000_000,
	}
	require.NoError(t, store.Upsert(ctx, o))

	// Second buy accumulates into the same row.
	o.CoinContributed = 800
	o.TokenPurchased = 1_600
	o.TokenReleased = 200
	o.UpdatedAt = 1_700_000_001_000
	require.NoError(t, store.Upsert(ctx, o))

	got, err := store.Get(ctx, "round-1", "alice")
	require.NoError(t, err)

	assert.Equal(t, uint64(800), got.CoinContributed)
	assert.Equal(t, uint64(1_600), got.TokenPurchased)
	assert.Equal(t, uint64(200), got.TokenReleased)
	assert.Equal(t, int64(1_700_000_000_000), got.CreatedAt)
	assert.Equal(t, int64(1_700_000_001_000), got.UpdatedAt)
}

func TestOrderStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	_, err := store.Get(ctx, "round-1", "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrderStore_ListByRound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	buyers := []string{"carol", "alice", "bob"}
	for i, buyer := range buyers {
		o := &domain.Order{
			RoundID:         "round-list",
			Buyer:           buyer,
			CoinContributed: uint64(100 * (i + 1)),
			TokenPurchased:  uint64(200 * (i + 1)),
			CreatedAt:       1_700_000_000_000,
			UpdatedAt:       1_700_000_000_000,
		}
		require.NoError(t, store.Upsert(ctx, o))
	}

	// Same buyer in another round must not leak in.
	other := &domain.Order{
		RoundID:         "round-other",
		Buyer:           "alice",
		CoinContributed: 999,
		TokenPurchased:  999,
		CreatedAt:       1_700_000_000_000,
		UpdatedAt:       1_700_000_000_000,
	}
	require.NoError(t, store.Upsert(ctx, other))

	orders, err := store.ListByRound(ctx, "round-list")
	require.NoError(t, err)
	require.Len(t, orders, 3)

	// Ordered by buyer ASC.
	assert.Equal(t, "alice", orders[0].Buyer)
	assert.Equal(t, "bob", orders[1].Buyer)
	assert.Equal(t, "carol", orders[2].Buyer)
}

func TestOrderStore_ListByRoundEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	orders, err := store.ListByRound(ctx, "round-empty")
	require.NoError(t, err)
	assert.Empty(t, orders)
}
