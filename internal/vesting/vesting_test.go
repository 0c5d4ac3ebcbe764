package vesting

import (
	"errors"
	"testing"

	"token-raise-service/internal/domain"
)

const tge = int64(1_700_000_000_000)

func TestClaimablePercent_LinearUnlockFirst(t *testing.T) {
	// 20% unlock at TGE, no cliff, remainder over 1000ms.
	s := &domain.VestingSchedule{
		Kind:           domain.VestingLinearUnlockFirst,
		TGE:            tge,
		CliffDuration:  0,
		UnlockPercent:  20_000,
		LinearDuration: 1000,
	}

	cases := []struct {
		name string
		now  int64
		want uint64
	}{
		{"before tge", tge - 1, 0},
		{"at tge", tge, 20_000},
		{"halfway", tge + 500, 60_000},
		{"full duration", tge + 1000, 100_000},
		{"past full", tge + 50_000, 100_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClaimablePercent(s, tc.now); got != tc.want {
				t.Errorf("ClaimablePercent(%d) = %d, want %d", tc.now, got, tc.want)
			}
		})
	}
}

func TestClaimablePercent_LinearCliffFirst(t *testing.T) {
	s := &domain.VestingSchedule{
		Kind:           domain.VestingLinearCliffFirst,
		TGE:            tge,
		CliffDuration:  100,
		UnlockPercent:  10_000,
		LinearDuration: 900,
	}

	// Nothing accrues before cliff end, not even the unlock.
	if got := ClaimablePercent(s, tge+99); got != 0 {
		t.Errorf("before cliff end: got %d, want 0", got)
	}
	if got := ClaimablePercent(s, tge+100); got != 10_000 {
		t.Errorf("at cliff end: got %d, want 10000", got)
	}
	// 450/900 of the remaining 90%.
	if got := ClaimablePercent(s, tge+550); got != 55_000 {
		t.Errorf("half linear: got %d, want 55000", got)
	}
	if got := ClaimablePercent(s, tge+1000); got != 100_000 {
		t.Errorf("full: got %d, want 100000", got)
	}
}

func TestClaimablePercent_MilestoneUnlockFirst(t *testing.T) {
	s := &domain.VestingSchedule{
		Kind:          domain.VestingMilestoneUnlockFirst,
		TGE:           tge,
		CliffDuration: 200,
		UnlockPercent: 25_000,
		Milestones: []domain.VestingMilestone{
			{Time: tge + 300, Percent: 25_000},
			{Time: tge + 600, Percent: 25_000},
			{Time: tge + 900, Percent: 25_000},
		},
	}

	cases := []struct {
		now  int64
		want uint64
	}{
		{tge - 1, 0},
		{tge, 25_000},        // unlock only, cliff pending
		{tge + 250, 25_000},  // cliff passed, no milestone reached
		{tge + 300, 50_000},  // first milestone
		{tge + 899, 75_000},  // second milestone
		{tge + 900, 100_000}, // all milestones
	}
	for _, tc := range cases {
		if got := ClaimablePercent(s, tc.now); got != tc.want {
			t.Errorf("ClaimablePercent(%d) = %d, want %d", tc.now, got, tc.want)
		}
	}
}

func TestClaimablePercent_MilestoneCliffFirst(t *testing.T) {
	s := &domain.VestingSchedule{
		Kind:          domain.VestingMilestoneCliffFirst,
		TGE:           tge,
		CliffDuration: 500,
		UnlockPercent: 40_000,
		Milestones: []domain.VestingMilestone{
			{Time: tge + 100, Percent: 30_000},
			{Time: tge + 800, Percent: 30_000},
		},
	}

	// Unlock and already-dated milestones withheld until cliff end.
	if got := ClaimablePercent(s, tge+499); got != 0 {
		t.Errorf("before cliff: got %d, want 0", got)
	}
	// At cliff end the unlock and the first milestone (dated earlier) release together.
	if got := ClaimablePercent(s, tge+500); got != 70_000 {
		t.Errorf("at cliff end: got %d, want 70000", got)
	}
	if got := ClaimablePercent(s, tge+800); got != 100_000 {
		t.Errorf("final: got %d, want 100000", got)
	}
}

func TestClaimablePercent_NonDecreasing(t *testing.T) {
	schedules := []*domain.VestingSchedule{
		{Kind: domain.VestingLinearUnlockFirst, TGE: tge, CliffDuration: 50, UnlockPercent: 5_000, LinearDuration: 700},
		{Kind: domain.VestingLinearCliffFirst, TGE: tge, CliffDuration: 130, UnlockPercent: 12_500, LinearDuration: 333},
		{Kind: domain.VestingMilestoneUnlockFirst, TGE: tge, CliffDuration: 40, UnlockPercent: 10_000,
			Milestones: []domain.VestingMilestone{{Time: tge + 60, Percent: 45_000}, {Time: tge + 61, Percent: 45_000}}},
	}

	for _, s := range schedules {
		var prev uint64
		for now := tge - 10; now <= tge+1200; now++ {
			got := ClaimablePercent(s, now)
			if got < prev {
				t.Fatalf("kind %s: percent decreased at now=%d: %d -> %d", s.Kind, now, prev, got)
			}
			if got > domain.FullPercent {
				t.Fatalf("kind %s: percent above 100%% at now=%d: %d", s.Kind, now, got)
			}
			prev = got
		}
	}
}

func TestValidate(t *testing.T) {
	now := tge - 1000

	base := func() *domain.VestingSchedule {
		return &domain.VestingSchedule{
			Kind:           domain.VestingLinearUnlockFirst,
			TGE:            tge,
			CliffDuration:  10,
			UnlockPercent:  20_000,
			LinearDuration: 100,
		}
	}

	if err := Validate(base(), now); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}

	s := base()
	s.TGE = now
	if err := Validate(s, now); !errors.Is(err, ErrTGENotFuture) {
		t.Errorf("past tge: got %v, want ErrTGENotFuture", err)
	}

	s = base()
	s.LinearDuration = 0
	if err := Validate(s, now); !errors.Is(err, ErrLinearDuration) {
		t.Errorf("zero linear duration: got %v, want ErrLinearDuration", err)
	}

	s = base()
	s.UnlockPercent = domain.FullPercent + 1
	if err := Validate(s, now); !errors.Is(err, ErrPercentRange) {
		t.Errorf("oversized unlock: got %v, want ErrPercentRange", err)
	}

	s = base()
	s.Kind = domain.VestingMilestoneUnlockFirst
	s.Milestones = []domain.VestingMilestone{
		{Time: tge + 100, Percent: 30_000},
		{Time: tge + 100, Percent: 30_000},
	}
	if err := Validate(s, now); !errors.Is(err, ErrMilestoneOrder) {
		t.Errorf("duplicate milestone time: got %v, want ErrMilestoneOrder", err)
	}

	s = base()
	s.Kind = domain.VestingMilestoneUnlockFirst
	s.Milestones = []domain.VestingMilestone{
		{Time: tge + 100, Percent: 50_000},
		{Time: tge + 200, Percent: 50_000},
	}
	if err := Validate(s, now); !errors.Is(err, ErrPercentSum) {
		t.Errorf("sum over 100%%: got %v, want ErrPercentSum", err)
	}
}

func TestValidateStart(t *testing.T) {
	s := &domain.VestingSchedule{
		Kind:          domain.VestingMilestoneUnlockFirst,
		TGE:           tge,
		UnlockPercent: 20_000,
		Milestones: []domain.VestingMilestone{
			{Time: tge + 100, Percent: 40_000},
			{Time: tge + 200, Percent: 30_000},
		},
	}
	// 90% accounted for: must be rejected for milestone kinds.
	if err := ValidateStart(s); err == nil {
		t.Error("expected error for sum != 100%")
	}

	s.Milestones = append(s.Milestones, domain.VestingMilestone{Time: tge + 300, Percent: 10_000})
	if err := ValidateStart(s); err != nil {
		t.Errorf("exact 100%% rejected: %v", err)
	}

	// Linear kinds are not bound by the exact-sum rule.
	lin := &domain.VestingSchedule{Kind: domain.VestingLinearCliffFirst, TGE: tge, UnlockPercent: 20_000, LinearDuration: 10}
	if err := ValidateStart(lin); err != nil {
		t.Errorf("linear kind rejected: %v", err)
	}
}

func TestAppendMilestone(t *testing.T) {
	s := &domain.VestingSchedule{
		Kind:          domain.VestingMilestoneCliffFirst,
		TGE:           tge,
		UnlockPercent: 10_000,
		Milestones:    []domain.VestingMilestone{{Time: tge + 100, Percent: 40_000}},
	}

	if err := AppendMilestone(s, domain.VestingMilestone{Time: tge + 50, Percent: 10_000}); !errors.Is(err, ErrMilestoneOrder) {
		t.Errorf("out-of-order append: got %v, want ErrMilestoneOrder", err)
	}
	if len(s.Milestones) != 1 {
		t.Fatalf("failed append mutated schedule: %d milestones", len(s.Milestones))
	}

	if err := AppendMilestone(s, domain.VestingMilestone{Time: tge + 200, Percent: 60_000}); !errors.Is(err, ErrPercentSum) {
		t.Errorf("sum-violating append: got %v, want ErrPercentSum", err)
	}
	if len(s.Milestones) != 1 {
		t.Fatalf("failed append mutated schedule: %d milestones", len(s.Milestones))
	}

	if err := AppendMilestone(s, domain.VestingMilestone{Time: tge + 200, Percent: 50_000}); err != nil {
		t.Fatalf("valid append failed: %v", err)
	}
	if len(s.Milestones) != 2 {
		t.Fatalf("expected 2 milestones, got %d", len(s.Milestones))
	}
}
