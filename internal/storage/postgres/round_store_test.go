package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

func testRound(id string) *domain.Round {
	return &domain.Round{
		ID:             id,
		Owner:          "ownerPrincipal",
		Kind:           domain.RoundKindPublic,
		Phase:          domain.PhaseInit,
		SoftCap:        1_000,
		HardCap:        10_000,
		SwapRatioCoin:  1,
		SwapRatioToken: 2,
		CoinDecimals:   6,
		TokenDecimals:  9,
		StartTime:      1_700_000_000_000,
		EndTime:        1_700_000_100_000,

		DefaultAllocationCap: 5_000,
		AllocationOverrides:  map[string]uint64{"whale": 8_000},

		WhitelistEnabled: true,
		Whitelist:        map[string]struct{}{"alice": {}, "bob": {}},
		RequireKYC:       true,

		Vesting: &domain.VestingSchedule{
			Kind:          domain.VestingMilestoneUnlockFirst,
			TGE:           1_700_000_200_000,
			CliffDuration: 1_000,
			UnlockPercent: 20_000,
			Milestones: []domain.VestingMilestone{
				{Time: 1_700_000_300_000, Percent: 30_000},
				{Time: 1_700_000_400_000, Percent: 50_000},
			},
		},

		CreatedAt: 1_699_999_000_000,
		UpdatedAt: 1_699_999_000_000,
	}
}

func TestRoundStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRoundStore(pool)

	r := testRound("round-insert-1")
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByID(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Owner, got.Owner)
	assert.Equal(t, r.Kind, got.Kind)
	assert.Equal(t, r.Phase, got.Phase)
	assert.Equal(t, r.SoftCap, got.SoftCap)
	assert.Equal(t, r.HardCap, got.HardCap)
	assert.Equal(t, r.SwapRatioCoin, got.SwapRatioCoin)
	assert.Equal(t, r.SwapRatioToken, got.SwapRatioToken)
	assert.Equal(t, r.CoinDecimals, got.CoinDecimals)
	assert.Equal(t, r.TokenDecimals, got.TokenDecimals)
	assert.Equal(t, r.StartTime, got.StartTime)
	assert.Equal(t, r.EndTime, got.EndTime)
	assert.Equal(t, r.DefaultAllocationCap, got.DefaultAllocationCap)
	assert.Equal(t, r.AllocationOverrides, got.AllocationOverrides)
	assert.Equal(t, r.WhitelistEnabled, got.WhitelistEnabled)
	assert.Equal(t, r.Whitelist, got.Whitelist)
	assert.Equal(t, r.RequireKYC, got.RequireKYC)
	require.NotNil(t, got.Vesting)
	assert.Equal(t, *r.Vesting, *got.Vesting)
	assert.Equal(t, r.CreatedAt, got.CreatedAt)
	assert.Equal(t, r.UpdatedAt, got.UpdatedAt)
}

func TestRoundStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRoundStore(pool)

	r := testRound("round-dup")
	require.NoError(t, store.Insert(ctx, r))

	err := store.Insert(ctx, r)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRoundStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRoundStore(pool)

	_, err := store.GetByID(ctx, "nonexistent-round")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRoundStore_Update(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRoundStore(pool)

	r := testRound("round-update")
	require.NoError(t, store.Insert(ctx, r))

	r.Phase = domain.PhaseRaising
	r.RaisedValue = 2_500
	r.TotalSold = 5_000
	r.ParticipantCount = 3
	r.Whitelist["carol"] = struct{}{}
	delete(r.AllocationOverrides, "whale")
	r.UpdatedAt = 1_699_999_500_000
	require.NoError(t, store.Update(ctx, r))

	got, err := store.GetByID(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseRaising, got.Phase)
	assert.Equal(t, uint64(2_500), got.RaisedValue)
	assert.Equal(t, uint64(5_000), got.TotalSold)
	assert.Equal(t, uint64(3), got.ParticipantCount)
	assert.Contains(t, got.Whitelist, "carol")
	assert.Empty(t, got.AllocationOverrides)
	assert.Equal(t, int64(1_699_999_500_000), got.UpdatedAt)
}

func TestRoundStore_UpdateNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRoundStore(pool)

	err := store.Update(ctx, testRound("never-inserted"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRoundStore_List(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRoundStore(pool)

	first := testRound("round-list-1")
	first.CreatedAt = 1_000
	second := testRound("round-list-2")
	second.CreatedAt = 2_000
	third := testRound("round-list-3")
	third.CreatedAt = 3_000

	// Insert out of order; List returns them by created_at ASC.
	require.NoError(t, store.Insert(ctx, second))
	require.NoError(t, store.Insert(ctx, third))
	require.NoError(t, store.Insert(ctx, first))

	rounds, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Equal(t, "round-list-1", rounds[0].ID)
	assert.Equal(t, "round-list-2", rounds[1].ID)
	assert.Equal(t, "round-list-3", rounds[2].ID)
}

func TestRoundStore_UnconfiguredRound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRoundStore(pool)

	// A freshly created round has no caps, empty maps and no vesting.
	r := &domain.Round{
		ID:                  "round-bare",
		Owner:               "ownerPrincipal",
		Kind:                domain.RoundKindSeed,
		Phase:               domain.PhaseInit,
		AllocationOverrides: map[string]uint64{},
		Whitelist:           map[string]struct{}{},
		CreatedAt:           1_699_999_000_000,
		UpdatedAt:           1_699_999_000_000,
	}
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByID(ctx, r.ID)
	require.NoError(t, err)

	assert.Nil(t, got.Vesting)
	assert.NotNil(t, got.AllocationOverrides)
	assert.Empty(t, got.AllocationOverrides)
	assert.NotNil(t, got.Whitelist)
	assert.Empty(t, got.Whitelist)
}
