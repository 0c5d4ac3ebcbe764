package memory

import (
	"context"
	"errors"
	"testing"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

func TestRoundStore_InsertAndGet(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	round := &domain.Round{
		ID:        "round1",
		Owner:     "owner1",
		Kind:      domain.RoundKindSeed,
		Phase:     domain.PhaseInit,
		SoftCap:   1000,
		HardCap:   10000,
		CreatedAt: 100,
	}

	if err := store.Insert(ctx, round); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "round1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.HardCap != 10000 {
		t.Errorf("HardCap mismatch: got %d, want 10000", got.HardCap)
	}
}

func TestRoundStore_DuplicateKey(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	round := &domain.Round{ID: "round1", Owner: "owner1"}
	if err := store.Insert(ctx, round); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, round)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestRoundStore_UpdateMissing(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	err := store.Update(ctx, &domain.Round{ID: "nonexistent"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRoundStore_Update(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	round := &domain.Round{ID: "round1", Phase: domain.PhaseInit}
	if err := store.Insert(ctx, round); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	round.Phase = domain.PhaseRaising
	round.RaisedValue = 500
	if err := store.Update(ctx, round); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetByID(ctx, "round1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Phase != domain.PhaseRaising || got.RaisedValue != 500 {
		t.Errorf("update not applied: phase=%s raised=%d", got.Phase, got.RaisedValue)
	}
}

func TestRoundStore_DefensiveCopy(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	round := &domain.Round{
		ID:                  "round1",
		AllocationOverrides: map[string]uint64{"alice": 100},
	}
	if err := store.Insert(ctx, round); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	round.AllocationOverrides["alice"] = 999

	got, _ := store.GetByID(ctx, "round1")
	if got.AllocationOverrides["alice"] != 100 {
		t.Errorf("store state aliased caller map: %d", got.AllocationOverrides["alice"])
	}
}

func TestRoundStore_List(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	for _, r := range []*domain.Round{
		{ID: "b", CreatedAt: 200},
		{ID: "a", CreatedAt: 100},
		{ID: "c", CreatedAt: 300},
	} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	rounds, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(rounds))
	}
	if rounds[0].ID != "a" || rounds[2].ID != "c" {
		t.Errorf("rounds not ordered by created_at: %s, %s, %s", rounds[0].ID, rounds[1].ID, rounds[2].ID)
	}
}
