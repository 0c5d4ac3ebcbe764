// Package vesting computes the claimable percentage of a purchased
// allocation for a point in time, and validates vesting schedules.
package vesting

import (
	"errors"
	"fmt"

	"token-raise-service/internal/domain"
)

// Validation errors.
var (
	ErrMilestoneOrder = errors.New("milestone times must be strictly increasing")
	ErrPercentSum     = errors.New("unlock percent plus milestone percents exceeds 100%")
	ErrPercentRange   = errors.New("percent out of range")
	ErrTGENotFuture   = errors.New("tge must be in the future")
	ErrCliffNegative  = errors.New("cliff duration must be >= 0")
	ErrLinearDuration = errors.New("linear duration must be > 0")
	ErrKindUnknown    = errors.New("unknown vesting kind")
)

// Validate checks a schedule against now (the clock value at configuration
// time). It enforces the structural invariants only; the exact-100% rule for
// milestone kinds is checked separately at start-raising via ValidateStart.
func Validate(s *domain.VestingSchedule, now int64) error {
	if !s.Kind.Valid() {
		return ErrKindUnknown
	}
	if s.TGE <= now {
		return fmt.Errorf("%w: tge=%d now=%d", ErrTGENotFuture, s.TGE, now)
	}
	if s.CliffDuration < 0 {
		return ErrCliffNegative
	}
	if s.UnlockPercent > domain.FullPercent {
		return fmt.Errorf("%w: unlock=%d", ErrPercentRange, s.UnlockPercent)
	}
	if !s.Kind.Milestone() && s.LinearDuration <= 0 {
		return ErrLinearDuration
	}
	return validateMilestones(s)
}

// ValidateStart enforces the start-raising gate: milestone kinds must account
// for exactly 100%, otherwise tokens would be locked up or over-released.
func ValidateStart(s *domain.VestingSchedule) error {
	if !s.Kind.Milestone() {
		return nil
	}
	if sum := s.MilestonePercentSum(); sum != domain.FullPercent {
		return fmt.Errorf("milestone percents sum to %d, want %d", sum, domain.FullPercent)
	}
	return nil
}

// AppendMilestone adds one milestone and re-validates ordering and the
// percent sum over the whole schedule.
func AppendMilestone(s *domain.VestingSchedule, m domain.VestingMilestone) error {
	if n := len(s.Milestones); n > 0 && m.Time <= s.Milestones[n-1].Time {
		return fmt.Errorf("%w: %d after %d", ErrMilestoneOrder, m.Time, s.Milestones[n-1].Time)
	}
	s.Milestones = append(s.Milestones, m)
	if err := validateMilestones(s); err != nil {
		s.Milestones = s.Milestones[:len(s.Milestones)-1]
		return err
	}
	return nil
}

func validateMilestones(s *domain.VestingSchedule) error {
	var prev int64
	for i, m := range s.Milestones {
		if i > 0 && m.Time <= prev {
			return fmt.Errorf("%w: index %d", ErrMilestoneOrder, i)
		}
		prev = m.Time
		if m.Percent > domain.FullPercent {
			return fmt.Errorf("%w: milestone %d percent=%d", ErrPercentRange, i, m.Percent)
		}
	}
	if s.MilestonePercentSum() > domain.FullPercent {
		return fmt.Errorf("%w: sum=%d", ErrPercentSum, s.MilestonePercentSum())
	}
	return nil
}

// ClaimablePercent returns the released percentage (FullPercent scale) for
// the schedule at now. It is non-decreasing in now and clamped to [0, 100%].
func ClaimablePercent(s *domain.VestingSchedule, now int64) uint64 {
	var percent uint64

	cliffEnd := s.TGE + s.CliffDuration

	switch s.Kind {
	case domain.VestingMilestoneUnlockFirst:
		if now >= s.TGE {
			percent += s.UnlockPercent
		}
		if now >= cliffEnd {
			percent += milestonePrefixSum(s.Milestones, now)
		}

	case domain.VestingMilestoneCliffFirst:
		if now >= cliffEnd {
			percent += s.UnlockPercent
			percent += milestonePrefixSum(s.Milestones, now)
		}

	case domain.VestingLinearUnlockFirst:
		if now >= s.TGE {
			percent += s.UnlockPercent
		}
		if now >= cliffEnd {
			percent += linearAccrual(now-cliffEnd, s.UnlockPercent, s.LinearDuration)
		}

	case domain.VestingLinearCliffFirst:
		if now >= cliffEnd {
			percent += s.UnlockPercent
			percent += linearAccrual(now-cliffEnd, s.UnlockPercent, s.LinearDuration)
		}
	}

	if percent > domain.FullPercent {
		percent = domain.FullPercent
	}
	return percent
}

// milestonePrefixSum sums percents of milestones whose time has passed.
// Milestones are sorted, so the scan stops at the first future one.
func milestonePrefixSum(milestones []domain.VestingMilestone, now int64) uint64 {
	var sum uint64
	for _, m := range milestones {
		if m.Time > now {
			break
		}
		sum += m.Percent
	}
	return sum
}

// linearAccrual returns elapsed * (100% - unlock) / duration.
// elapsed is capped at duration so the product stays far below uint64 range.
func linearAccrual(elapsed int64, unlock uint64, duration int64) uint64 {
	if elapsed <= 0 || duration <= 0 {
		return 0
	}
	if elapsed > duration {
		elapsed = duration
	}
	remainder := domain.FullPercent - unlock
	return uint64(elapsed) * remainder / uint64(duration)
}
