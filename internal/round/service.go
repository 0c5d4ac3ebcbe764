// Package round implements the fundraising round lifecycle: phase
// transitions, cap enforcement, order bookkeeping and vesting-gated claims.
//
// Every operation against a round executes under that round's lock and is
// all-or-nothing: state is mutated on clones and persisted only after every
// check has passed, so a rejected operation leaves no trace. The audit event
// is recorded after the state commit, never on abort.
package round

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"token-raise-service/internal/custody"
	"token-raise-service/internal/domain"
	"token-raise-service/internal/idhash"
	"token-raise-service/internal/identity"
	"token-raise-service/internal/kyc"
	"token-raise-service/internal/observability"
	"token-raise-service/internal/storage"
	"token-raise-service/internal/vesting"
)

// EventPublisher receives every recorded audit event, e.g. for streaming
// to websocket subscribers.
type EventPublisher interface {
	Publish(e *domain.AuditEvent)
}

// Options for creating a Service.
type Options struct {
	// Required stores
	Rounds storage.RoundStore
	Orders storage.OrderStore
	Audit  storage.AuditEventStore

	// Collaborators
	Vault    *custody.Vault
	KYC      kyc.Oracle
	Clock    Clock
	AdminCap identity.AdminCap

	// Optional
	Metrics   *observability.Metrics
	Publisher EventPublisher
	Logger    *log.Logger
}

// Service drives rounds through their lifecycle. It owns all mutation of
// round and order state; reads go through the same stores.
type Service struct {
	rounds storage.RoundStore
	orders storage.OrderStore
	audit  storage.AuditEventStore

	vault    *custody.Vault
	oracle   kyc.Oracle
	clock    Clock
	adminCap identity.AdminCap

	metrics   *observability.Metrics
	publisher EventPublisher
	logger    *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	eventSeq atomic.Uint64
}

// New creates a Service. Rounds, Orders and Audit are required; the other
// collaborators default to in-process implementations.
func New(opts Options) *Service {
	s := &Service{
		rounds:    opts.Rounds,
		orders:    opts.Orders,
		audit:     opts.Audit,
		vault:     opts.Vault,
		oracle:    opts.KYC,
		clock:     opts.Clock,
		adminCap:  opts.AdminCap,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		locks:     make(map[string]*sync.Mutex),
	}
	if s.vault == nil {
		s.vault = custody.NewVault()
	}
	if s.oracle == nil {
		s.oracle = kyc.AllowAll{}
	}
	if s.clock == nil {
		s.clock = WallClock{}
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

// lockRound serializes operations touching one round.
func (s *Service) lockRound(roundID string) func() {
	s.mu.Lock()
	l, ok := s.locks[roundID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roundID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) requireAdmin(cap identity.AdminCap) error {
	if !s.adminCap.Equal(cap) {
		return fmt.Errorf("%w: invalid admin capability", ErrPermission)
	}
	return nil
}

func requirePhase(r *domain.Round, want domain.Phase) error {
	if r.Phase != want {
		return fmt.Errorf("%w: phase is %s, operation requires %s", ErrPhase, r.Phase, want)
	}
	return nil
}

// CreateRound mints a new round owned by owner. The round starts in Init
// with no configuration.
func (s *Service) CreateRound(ctx context.Context, cap identity.AdminCap, owner string, kind domain.RoundKind) (r *domain.Round, err error) {
	defer s.observe(domain.OpCreateRound, time.Now(), &err)

	if err = s.requireAdmin(cap); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: owner required", ErrConfig)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown round kind %d", ErrConfig, int(kind))
	}

	now := s.clock.Now()
	r = &domain.Round{
		ID:                  idhash.ComputeRoundID(owner, kind.String(), now, s.eventSeq.Add(1)),
		Owner:               owner,
		Kind:                kind,
		Phase:               domain.PhaseInit,
		AllocationOverrides: make(map[string]uint64),
		Whitelist:           make(map[string]struct{}),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err = s.rounds.Insert(ctx, r); err != nil {
		return nil, fmt.Errorf("insert round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:     r.ID,
		Op:          domain.OpCreateRound,
		Actor:       owner,
		Timestamp:   now,
		PhaseBefore: domain.PhaseInit.String(),
		PhaseAfter:  domain.PhaseInit.String(),
	})
	return r.Clone(), nil
}

// StartRaising moves a configured round from Init to Raising. For milestone
// vesting kinds the unlock plus milestone percents must account for exactly
// 100%, otherwise tokens would end up locked or over-released.
func (s *Service) StartRaising(ctx context.Context, cap identity.AdminCap, roundID string) (err error) {
	defer s.observe(domain.OpStartRaising, time.Now(), &err)
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
	if r.HardCap == 0 {
		return fmt.Errorf("%w: round is not configured", ErrConfig)
	}
	if r.Vesting == nil {
		return fmt.Errorf("%w: vesting schedule is not configured", ErrConfig)
	}
	if err = vesting.ValidateStart(r.Vesting); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	now := s.clock.Now()
	r.TotalSold = 0
	r.RaisedValue = 0
	r.ParticipantCount = 0
	r.Phase = domain.PhaseRaising
	r.UpdatedAt = now
	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:     r.ID,
		Op:          domain.OpStartRaising,
		Timestamp:   now,
		PhaseBefore: domain.PhaseInit.String(),
		PhaseAfter:  domain.PhaseRaising.String(),
	})
	s.updateGauges(r)
	return nil
}

// Buy records a purchase for buyer. It enforces the raising window, the
// whitelist and KYC gates, the buyer's allocation cap over their cumulative
// contribution, and the round hard cap. An amount that would push the raise
// past the hard cap rejects the whole operation; an amount that lands
// exactly on the hard cap closes raising into Claiming.
func (s *Service) Buy(ctx context.Context, roundID, buyer string, amount uint64) (o *domain.Order, err error) {
	defer s.observe(domain.OpBuy, time.Now(), &err)
	defer s.lockRound(roundID)()

	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("load round: %w", err)
	}
	if err = requirePhase(r, domain.PhaseRaising); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if now < r.StartTime || now > r.EndTime {
		return nil, fmt.Errorf("%w: outside raising window [%d, %d] at %d", ErrPhase, r.StartTime, r.EndTime, now)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", ErrZeroEffect)
	}
	if !r.Whitelisted(buyer) {
		return nil, fmt.Errorf("%w: buyer not whitelisted", ErrPermission)
	}
	if r.RequireKYC {
		ok, kerr := s.oracle.HasKYC(ctx, buyer)
		if kerr != nil {
			return nil, fmt.Errorf("kyc check: %w", kerr)
		}
		if !ok {
			return nil, fmt.Errorf("%w: buyer lacks KYC attestation", ErrPermission)
		}
	}

	tokenAmount, err := ConvertCoinToToken(amount, r.SwapRatioCoin, r.SwapRatioToken, r.CoinDecimals, r.TokenDecimals)
	if err != nil {
		return nil, err
	}
	if tokenAmount == 0 {
		return nil, fmt.Errorf("%w: amount converts to zero tokens", ErrZeroEffect)
	}

	// RaisedValue never exceeds HardCap, so the subtraction cannot wrap.
	// Bounding amount by the remaining room up front also keeps the
	// cumulative sums below 2^64.
	if room := r.HardCap - r.RaisedValue; amount > room {
		return nil, fmt.Errorf("%w: amount %d exceeds remaining hard-cap room %d", ErrCapacity, amount, room)
	}

	order, err := s.orders.Get(ctx, roundID, buyer)
	newOrder := false
	switch {
	case errors.Is(err, storage.ErrNotFound):
		newOrder = true
		order = &domain.Order{RoundID: roundID, Buyer: buyer, CreatedAt: now}
	case err != nil:
		return nil, fmt.Errorf("load order: %w", err)
	}

	contributed := order.CoinContributed + amount
	if cap := r.EffectiveCap(buyer); contributed > cap {
		return nil, fmt.Errorf("%w: cumulative contribution %d exceeds allocation cap %d", ErrCapacity, contributed, cap)
	}
	raised := r.RaisedValue + amount

	raisedBefore, soldBefore, phaseBefore := r.RaisedValue, r.TotalSold, r.Phase

	order.CoinContributed = contributed
	order.TokenPurchased += tokenAmount
	order.UpdatedAt = now

	r.RaisedValue = raised
	r.TotalSold += tokenAmount
	if newOrder {
		r.ParticipantCount++
	}
	if raised == r.HardCap {
		r.Phase = domain.PhaseClaiming
	}
	r.UpdatedAt = now

	if err = s.orders.Upsert(ctx, order); err != nil {
		return nil, fmt.Errorf("upsert order: %w", err)
	}
	if err = s.rounds.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update round: %w", err)
	}
	if err = s.vault.Deposit(roundID, custody.AssetCoin, amount); err != nil {
		return nil, fmt.Errorf("custody deposit: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:      r.ID,
		Op:           domain.OpBuy,
		Actor:        buyer,
		Timestamp:    now,
		Amount:       amount,
		RaisedBefore: raisedBefore,
		RaisedAfter:  r.RaisedValue,
		SoldBefore:   soldBefore,
		SoldAfter:    r.TotalSold,
		PhaseBefore:  phaseBefore.String(),
		PhaseAfter:   r.Phase.String(),
	})
	if s.metrics != nil {
		s.metrics.BuysTotal.Inc()
	}
	s.updateGauges(r)
	return order.Clone(), nil
}

// EndRaising closes the raising phase. The round moves to Refunding when the
// soft cap was missed, to Claiming otherwise. Early close is allowed once
// the soft cap is met; otherwise the raising window must have fully elapsed.
func (s *Service) EndRaising(ctx context.Context, cap identity.AdminCap, roundID string) (err error) {
	defer s.observe(domain.OpEndRaising, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if err = requirePhase(r, domain.PhaseRaising); err != nil {
		return err
	}

	now := s.clock.Now()
	softCapMet := r.RaisedValue >= r.SoftCap
	if softCapMet {
		if now < r.StartTime {
			return fmt.Errorf("%w: raising has not started", ErrPhase)
		}
	} else if now <= r.EndTime {
		return fmt.Errorf("%w: raising window open until %d (now %d)", ErrPhase, r.EndTime, now)
	}

	phaseBefore := r.Phase
	if softCapMet {
		r.Phase = domain.PhaseClaiming
	} else {
		r.Phase = domain.PhaseRefunding
	}
	r.UpdatedAt = now
	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:      r.ID,
		Op:           domain.OpEndRaising,
		Timestamp:    now,
		RaisedBefore: r.RaisedValue,
		RaisedAfter:  r.RaisedValue,
		SoldBefore:   r.TotalSold,
		SoldAfter:    r.TotalSold,
		PhaseBefore:  phaseBefore.String(),
		PhaseAfter:   r.Phase.String(),
	})
	return nil
}

// EndRefund closes the refund window. Investors who have not claimed their
// refund by then can no longer do so.
func (s *Service) EndRefund(ctx context.Context, cap identity.AdminCap, roundID string) (err error) {
	defer s.observe(domain.OpEndRefund, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if err = requirePhase(r, domain.PhaseRefunding); err != nil {
		return err
	}

	now := s.clock.Now()
	r.Phase = domain.PhaseRefundClosed
	r.UpdatedAt = now
	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:     r.ID,
		Op:          domain.OpEndRefund,
		Timestamp:   now,
		PhaseBefore: domain.PhaseRefunding.String(),
		PhaseAfter:  domain.PhaseRefundClosed.String(),
	})
	return nil
}

// Claim releases the vested portion of the buyer's purchase. The released
// amount is strictly monotonic and can never exceed the purchase because
// the claimable percent is clamped to 100%.
func (s *Service) Claim(ctx context.Context, roundID, buyer string) (released uint64, err error) {
	defer s.observe(domain.OpClaim, time.Now(), &err)
	defer s.lockRound(roundID)()

	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("load round: %w", err)
	}
	if err = requirePhase(r, domain.PhaseClaiming); err != nil {
		return 0, err
	}

	order, err := s.orders.Get(ctx, roundID, buyer)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("%w: no order for buyer", ErrZeroEffect)
	}
	if err != nil {
		return 0, fmt.Errorf("load order: %w", err)
	}

	now := s.clock.Now()
	percent := vesting.ClaimablePercent(r.Vesting, now)
	if percent == 0 {
		return 0, fmt.Errorf("%w: nothing vested yet", ErrZeroEffect)
	}

	entitled := entitledAmount(order.TokenPurchased, percent)
	if entitled <= order.TokenReleased {
		return 0, fmt.Errorf("%w: vested amount already claimed", ErrZeroEffect)
	}
	delta := entitled - order.TokenReleased

	if fund := s.vault.FundValue(roundID, custody.AssetToken); fund < delta {
		return 0, fmt.Errorf("%w: token fund holds %d, claim needs %d", ErrCapacity, fund, delta)
	}

	order.TokenReleased += delta
	order.UpdatedAt = now
	r.TokenFundBalance -= delta
	r.UpdatedAt = now

	if err = s.orders.Upsert(ctx, order); err != nil {
		return 0, fmt.Errorf("upsert order: %w", err)
	}
	if err = s.rounds.Update(ctx, r); err != nil {
		return 0, fmt.Errorf("update round: %w", err)
	}
	if err = s.vault.Transfer(roundID, custody.AssetToken, delta, buyer); err != nil {
		return 0, fmt.Errorf("transfer claim: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:      r.ID,
		Op:           domain.OpClaim,
		Actor:        buyer,
		Timestamp:    now,
		Amount:       delta,
		RaisedBefore: r.RaisedValue,
		RaisedAfter:  r.RaisedValue,
		SoldBefore:   r.TotalSold,
		SoldAfter:    r.TotalSold,
		PhaseBefore:  r.Phase.String(),
		PhaseAfter:   r.Phase.String(),
	})
	if s.metrics != nil {
		s.metrics.ClaimsTotal.Inc()
	}
	return delta, nil
}

// ClaimRefund returns the buyer's full cumulative contribution exactly once.
// The order's contribution is zeroed so a second call is a zero-effect error,
// and the round's totals shrink accordingly.
func (s *Service) ClaimRefund(ctx context.Context, roundID, buyer string) (refunded uint64, err error) {
	defer s.observe(domain.OpClaimRefund, time.Now(), &err)
	defer s.lockRound(roundID)()

	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("load round: %w", err)
	}
	if err = requirePhase(r, domain.PhaseRefunding); err != nil {
		return 0, err
	}

	order, err := s.orders.Get(ctx, roundID, buyer)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("%w: no order for buyer", ErrZeroEffect)
	}
	if err != nil {
		return 0, fmt.Errorf("load order: %w", err)
	}
	if order.CoinContributed == 0 {
		return 0, fmt.Errorf("%w: refund already claimed", ErrZeroEffect)
	}

	if fund := s.vault.FundValue(roundID, custody.AssetCoin); fund < order.CoinContributed {
		return 0, fmt.Errorf("%w: raised fund holds %d, refund needs %d", ErrCapacity, fund, order.CoinContributed)
	}

	now := s.clock.Now()
	refunded = order.CoinContributed
	purchased := order.TokenPurchased
	raisedBefore, soldBefore := r.RaisedValue, r.TotalSold

	order.CoinContributed = 0
	order.TokenPurchased = 0
	order.UpdatedAt = now
	r.RaisedValue -= refunded
	r.TotalSold -= purchased
	r.UpdatedAt = now

	if err = s.orders.Upsert(ctx, order); err != nil {
		return 0, fmt.Errorf("upsert order: %w", err)
	}
	if err = s.rounds.Update(ctx, r); err != nil {
		return 0, fmt.Errorf("update round: %w", err)
	}
	if err = s.vault.Transfer(roundID, custody.AssetCoin, refunded, buyer); err != nil {
		return 0, fmt.Errorf("transfer refund: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:      r.ID,
		Op:           domain.OpClaimRefund,
		Actor:        buyer,
		Timestamp:    now,
		Amount:       refunded,
		RaisedBefore: raisedBefore,
		RaisedAfter:  r.RaisedValue,
		SoldBefore:   soldBefore,
		SoldAfter:    r.TotalSold,
		PhaseBefore:  r.Phase.String(),
		PhaseAfter:   r.Phase.String(),
	})
	if s.metrics != nil {
		s.metrics.RefundsTotal.Inc()
	}
	s.updateGauges(r)
	return refunded, nil
}

// DepositTokenFund funds the claims pool. The deposit must cover at least
// the token amount the hard cap converts to, so a fully subscribed round can
// always pay out.
func (s *Service) DepositTokenFund(ctx context.Context, cap identity.AdminCap, roundID string, amount uint64) (err error) {
	defer s.observe(domain.OpDepositTokenFund, time.Now(), &err)
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
	if r.HardCap == 0 {
		return fmt.Errorf("%w: round is not configured", ErrConfig)
	}

	required, err := TokensForHardCap(r.HardCap, r.SwapRatioCoin, r.SwapRatioToken, r.CoinDecimals, r.TokenDecimals)
	if err != nil {
		return err
	}
	if amount < required {
		return fmt.Errorf("%w: deposit %d below hard-cap requirement %d", ErrConfig, amount, required)
	}
	if amount > math.MaxUint64-r.TokenFundBalance {
		return fmt.Errorf("%w: deposit %d overflows token fund balance %d", ErrCapacity, amount, r.TokenFundBalance)
	}

	now := s.clock.Now()
	r.TokenFundBalance += amount
	r.UpdatedAt = now
	if err = s.rounds.Update(ctx, r); err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	if err = s.vault.Deposit(roundID, custody.AssetToken, amount); err != nil {
		return fmt.Errorf("custody deposit: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpDepositTokenFund,
		Timestamp: now,
		Amount:    amount,
	})
	return nil
}

// DistributeRaisedFund pays raised coins out to the round owner. amount of 0
// drains the fund; a partial amount may be taken in several calls. Only the
// owner may collect, and only once the round is in a terminal phase.
func (s *Service) DistributeRaisedFund(ctx context.Context, cap identity.AdminCap, roundID, actor string, amount uint64) (paid uint64, err error) {
	defer s.observe(domain.OpDistribute, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return 0, err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("load round: %w", err)
	}
	if actor != r.Owner {
		return 0, fmt.Errorf("%w: only the round owner may distribute", ErrPermission)
	}
	if !r.Phase.Terminal() {
		return 0, fmt.Errorf("%w: phase is %s, distribution requires a closed round", ErrPhase, r.Phase)
	}

	fund := s.vault.FundValue(roundID, custody.AssetCoin)
	if fund == 0 {
		return 0, fmt.Errorf("%w: raised fund is empty", ErrZeroEffect)
	}
	if amount == 0 {
		amount = fund
	}
	if amount > fund {
		return 0, fmt.Errorf("%w: raised fund holds %d, requested %d", ErrCapacity, fund, amount)
	}

	now := s.clock.Now()
	if err = s.vault.Transfer(roundID, custody.AssetCoin, amount, r.Owner); err != nil {
		return 0, fmt.Errorf("transfer distribution: %w", err)
	}
	r.UpdatedAt = now
	if err = s.rounds.Update(ctx, r); err != nil {
		return 0, fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpDistribute,
		Actor:     actor,
		Timestamp: now,
		Amount:    amount,
	})
	return amount, nil
}

// WithdrawUnsoldToken returns the portion of the token fund not owed to
// buyers back to the owner. In Claiming the outstanding vested debt stays in
// custody; after a closed refund the whole remaining fund is unsold.
func (s *Service) WithdrawUnsoldToken(ctx context.Context, cap identity.AdminCap, roundID, actor string) (withdrawn uint64, err error) {
	defer s.observe(domain.OpWithdrawUnsold, time.Now(), &err)
	defer s.lockRound(roundID)()

	if err = s.requireAdmin(cap); err != nil {
		return 0, err
	}
	r, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("load round: %w", err)
	}
	if actor != r.Owner {
		return 0, fmt.Errorf("%w: only the round owner may withdraw", ErrPermission)
	}
	if !r.Phase.Terminal() {
		return 0, fmt.Errorf("%w: phase is %s, withdrawal requires a closed round", ErrPhase, r.Phase)
	}

	fund := s.vault.FundValue(roundID, custody.AssetToken)
	unsold := fund
	if r.Phase == domain.PhaseClaiming {
		outstanding, oerr := s.outstandingTokenDebt(ctx, roundID)
		if oerr != nil {
			return 0, oerr
		}
		if outstanding >= fund {
			unsold = 0
		} else {
			unsold = fund - outstanding
		}
	}
	if unsold == 0 {
		return 0, fmt.Errorf("%w: no unsold tokens in custody", ErrZeroEffect)
	}

	now := s.clock.Now()
	if err = s.vault.Transfer(roundID, custody.AssetToken, unsold, r.Owner); err != nil {
		return 0, fmt.Errorf("transfer unsold tokens: %w", err)
	}
	r.TokenFundBalance -= unsold
	r.UpdatedAt = now
	if err = s.rounds.Update(ctx, r); err != nil {
		return 0, fmt.Errorf("update round: %w", err)
	}

	s.emit(ctx, &domain.AuditEvent{
		RoundID:   r.ID,
		Op:        domain.OpWithdrawUnsold,
		Actor:     actor,
		Timestamp: now,
		Amount:    unsold,
	})
	return unsold, nil
}

// outstandingTokenDebt sums purchased-but-unreleased tokens across orders.
func (s *Service) outstandingTokenDebt(ctx context.Context, roundID string) (uint64, error) {
	orders, err := s.orders.ListByRound(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}
	var debt uint64
	for _, o := range orders {
		debt += o.TokenPurchased - o.TokenReleased
	}
	return debt, nil
}

// GetRound returns a copy of the round.
func (s *Service) GetRound(ctx context.Context, roundID string) (*domain.Round, error) {
	return s.rounds.GetByID(ctx, roundID)
}

// ListRounds returns all rounds ordered by creation time.
func (s *Service) ListRounds(ctx context.Context) ([]*domain.Round, error) {
	return s.rounds.List(ctx)
}

// GetOrder returns a copy of the buyer's order.
func (s *Service) GetOrder(ctx context.Context, roundID, buyer string) (*domain.Order, error) {
	return s.orders.Get(ctx, roundID, buyer)
}

// ListEvents returns the round's audit trail.
func (s *Service) ListEvents(ctx context.Context, roundID string) ([]*domain.AuditEvent, error) {
	return s.audit.ListByRound(ctx, roundID)
}

// entitledAmount computes purchased * percent / FullPercent with a wide
// intermediate. percent is clamped to FullPercent upstream, so the result
// never exceeds purchased.
func entitledAmount(purchased, percent uint64) uint64 {
	v := new(big.Int).SetUint64(purchased)
	v.Mul(v, new(big.Int).SetUint64(percent))
	v.Quo(v, new(big.Int).SetUint64(domain.FullPercent))
	return v.Uint64()
}

// emit records the audit event for a committed operation and hands it to the
// publisher. The state change has already committed, so a failed audit
// insert does not fail the operation: it is logged and counted, and the
// event is still published.
func (s *Service) emit(ctx context.Context, e *domain.AuditEvent) {
	e.EventID = idhash.ComputeEventID(e.RoundID, e.Op, s.eventSeq.Add(1), e.Timestamp)
	if err := s.audit.Insert(ctx, e); err != nil {
		s.logger.Printf("audit insert %s for round %s: %v", e.Op, e.RoundID, err)
		if s.metrics != nil {
			s.metrics.AuditEventErrors.Inc()
		}
	} else if s.metrics != nil {
		s.metrics.AuditEventsEmitted.Inc()
	}
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

func (s *Service) observe(op string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationsTotal.WithLabelValues(op).Inc()
	s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && *err != nil {
		s.metrics.OperationErrors.WithLabelValues(op, errKind(*err)).Inc()
	}
}

func (s *Service) updateGauges(r *domain.Round) {
	if s.metrics == nil {
		return
	}
	s.metrics.RaisedValue.WithLabelValues(r.ID).Set(float64(r.RaisedValue))
	s.metrics.TotalSold.WithLabelValues(r.ID).Set(float64(r.TotalSold))
	s.metrics.Participants.WithLabelValues(r.ID).Set(float64(r.ParticipantCount))
}

// errKind maps an operation error to its taxonomy label.
func errKind(err error) string {
	switch {
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrPhase):
		return "phase"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrZeroEffect):
		return "zero_effect"
	default:
		return "internal"
	}
}
