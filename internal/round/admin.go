package round

import (
	"context"
	"fmt"
	"time"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/identity"
	"token-raise-service/internal/vesting"
)

// ConfigureParams carries the one-time round configuration. All fields are
// set together in Init; none can change once raising starts.
type ConfigureParams struct {
	SoftCap uint64
	HardCap uint64

	SwapRatioCoin  uint64
	SwapRatioToken uint64
	CoinDecimals   uint8
	TokenDecimals  uint8

	StartTime int64
	EndTime   int64

	DefaultAllocationCap uint64
	WhitelistEnabled     bool
	RequireKYC           bool

	Vesting *domain.VestingSchedule
}

// Configure sets caps, swap ratio, raising window and vesting on a round in
// Init. The phase does not change.
func (s *Service) Configure(ctx context.Context, cap identity.AdminCap, roundID string, p ConfigureParams) (err error) {
	defer s.observe(domain.OpConfigure, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if err = requirePhase(r, domain.PhaseInit); err != nil {
		return err
	}

	now := s.clock.Now()
	if p.SoftCap == 0 || p.SoftCap >= p.HardCap {
		return fmt.Errorf("%w: need 0 < soft cap < hard cap, got %d/%d", ErrConfig, p.SoftCap, p.HardCap)
	}
	if p.SwapRatioCoin == 0 || p.SwapRatioToken == 0 {
		return fmt.Errorf("%w: swap ratio components must be > 0", ErrConfig)
	}
	if p.CoinDecimals == 0 || p.TokenDecimals == 0 {
		return fmt.Errorf("%w: decimals must be > 0", ErrConfig)
	}
	if p.StartTime <= now {
		return fmt.Errorf("%w: start time %d must be in the future (now %d)", ErrConfig, p.StartTime, now)
	}
	if p.EndTime <= p.StartTime {
		return fmt.Errorf("%w: end time %d must be after start time %d", ErrConfig, p.EndTime, p.StartTime)
	}
	if p.DefaultAllocationCap == 0 || p.DefaultAllocationCap > p.HardCap {
		return fmt.Errorf("%w: default allocation cap %d must be in (0, hard cap]", ErrConfig, p.DefaultAllocationCap)
	}
	if p.Vesting != nil {
		if err = vesting.Validate(p.Vesting, now); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	r.SoftCap = p.SoftCap
	r.HardCap = p.HardCap
	r.SwapRatioCoin = p.SwapRatioCoin
	r.SwapRatioToken = p.SwapRatioToken
	r.CoinDecimals = p.CoinDecimals
	r.TokenDecimals = p.TokenDecimals
	r.StartTime = p.StartTime
	r.EndTime = p.EndTime
	r.DefaultAllocationCap = p.DefaultAllocationCap
	r.WhitelistEnabled = p.WhitelistEnabled
	r.RequireKYC = p.RequireKYC
	if p.Vesting != nil {
		r.Vesting = p.Vesting.Clone()
	}
	r.UpdatedAt = now

	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:     r.ID,
		Op:          domain.OpConfigure,
		Timestamp:   now,
		Amount:      p.HardCap,
		PhaseBefore: domain.PhaseInit.String(),
		PhaseAfter:  domain.PhaseInit.String(),
	})
	return nil
}

// SetAllocationOverride adds or replaces an investor's contribution ceiling.
// Overrides are phase-independent; the cap is checked on every buy against
// the investor's cumulative contribution.
func (s *Service) SetAllocationOverride(ctx context.Context, cap identity.AdminCap, roundID, investor string, amount uint64) (err error) {
	defer s.observe(domain.OpSetAllocation, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if r.HardCap == 0 {
		return fmt.Errorf("%w: round is not configured", ErrConfig)
	}
	if amount == 0 || amount >= r.HardCap {
		return fmt.Errorf("%w: override %d must be in (0, hard cap)", ErrConfig, amount)
	}
	if investor == "" {
		return fmt.Errorf("%w: investor required", ErrConfig)
	}

	now := s.clock.Now()
	// Add-or-replace: drop any stale entry before writing the new one.
	delete(r.AllocationOverrides, investor)
	r.AllocationOverrides[investor] = amount
	r.UpdatedAt = now

	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpSetAllocation,
		Actor:     investor,
		Timestamp: now,
		Amount:    amount,
	})
	return nil
}

// ClearAllocationOverride removes an investor's override, reverting them to
// the round default.
func (s *Service) ClearAllocationOverride(ctx context.Context, cap identity.AdminCap, roundID, investor string) (err error) {
	defer s.observe(domain.OpClearAllocation, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if _, ok := r.AllocationOverrides[investor]; !ok {
		return fmt.Errorf("%w: no override for investor", ErrZeroEffect)
	}

	now := s.clock.Now()
	delete(r.AllocationOverrides, investor)
	r.UpdatedAt = now

	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpClearAllocation,
		Actor:     investor,
		Timestamp: now,
	})
	return nil
}

// AddWhitelist admits investors in bulk.
func (s *Service) AddWhitelist(ctx context.Context, cap identity.AdminCap, roundID string, investors []string) (err error) {
	defer s.observe(domain.OpAddWhitelist, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	if len(investors) == 0 {
		return fmt.Errorf("%w: empty investor list", ErrZeroEffect)
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}

	now := s.clock.Now()
	var added uint64
	for _, inv := range investors {
		if inv == "" {
			return fmt.Errorf("%w: empty investor address", ErrConfig)
		}
		if _, ok := r.Whitelist[inv]; !ok {
			r.Whitelist[inv] = struct{}{}
			added++
		}
	}
	if added == 0 {
		return fmt.Errorf("%w: all investors already whitelisted", ErrZeroEffect)
	}
	r.UpdatedAt = now

	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpAddWhitelist,
		Timestamp: now,
		Amount:    added,
	})
	return nil
}

// RemoveWhitelist revokes admissions in bulk.
func (s *Service) RemoveWhitelist(ctx context.Context, cap identity.AdminCap, roundID string, investors []string) (err error) {
	defer s.observe(domain.OpRemoveWhitelist, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	if len(investors) == 0 {
		return fmt.Errorf("%w: empty investor list", ErrZeroEffect)
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}

	now := s.clock.Now()
	var removed uint64
	for _, inv := range investors {
		if _, ok := r.Whitelist[inv]; ok {
			delete(r.Whitelist, inv)
			removed++
		}
	}
	if removed == 0 {
		return fmt.Errorf("%w: no listed investors in request", ErrZeroEffect)
	}
	r.UpdatedAt = now

	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpRemoveWhitelist,
		Timestamp: now,
		Amount:    removed,
	})
	return nil
}

// AppendMilestone adds one vesting milestone before raising starts. The
// whole schedule is re-validated, including the percent sum.
func (s *Service) AppendMilestone(ctx context.Context, cap identity.AdminCap, roundID string, m domain.VestingMilestone) (err error) {
	defer s.observe(domain.OpAppendMilestone, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if err = requirePhase(r, domain.PhaseInit); err != nil {
		return err
	}
	if r.Vesting == nil {
		return fmt.Errorf("%w: vesting schedule is not configured", ErrConfig)
	}
	if err = vesting.AppendMilestone(r.Vesting, m); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	now := s.clock.Now()
	r.UpdatedAt = now
	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpAppendMilestone,
		Timestamp: now,
		Amount:    m.Percent,
	})
	return nil
}

// ResetMilestones clears the milestone list while the round is still in Init.
func (s *Service) ResetMilestones(ctx context.Context, cap identity.AdminCap, roundID string) (err error) {
	defer s.observe(domain.OpResetMilestones, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if err = requirePhase(r, domain.PhaseInit); err != nil {
		return err
	}
	if r.Vesting == nil || len(r.Vesting.Milestones) == 0 {
		return fmt.Errorf("%w: no milestones to reset", ErrZeroEffect)
	}

	now := s.clock.Now()
	cleared := uint64(len(r.Vesting.Milestones))
	r.Vesting.Milestones = nil
	r.UpdatedAt = now

	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpResetMilestones,
		Timestamp: now,
		Amount:    cleared,
	})
	return nil
}

// ChangeOwner hands the round to a new owner principal.
func (s *Service) ChangeOwner(ctx context.Context, cap identity.AdminCap, roundID, newOwner string) (err error) {
	defer s.observe(domain.OpChangeOwner, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	if newOwner == "" {
		return fmt.Errorf("%w: new owner required", ErrConfig)
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if r.Owner == newOwner {
		return fmt.Errorf("%w: already owned by %s", ErrZeroEffect, newOwner)
	}

	now := s.clock.Now()
	r.Owner = newOwner
	r.UpdatedAt = now

	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpChangeOwner,
		Actor:     newOwner,
		Timestamp: now,
	})
	return nil
}
