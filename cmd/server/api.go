package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/identity"
	"token-raise-service/internal/kyc"
	"token-raise-service/internal/observability"
	"token-raise-service/internal/round"
	"token-raise-service/internal/storage"
	"token-raise-service/internal/stream"
)

// adminCapHeader carries the hex admin capability on administrative requests.
const adminCapHeader = "X-Admin-Cap"

// apiServer exposes the round service over HTTP.
type apiServer struct {
	svc    *round.Service
	hub    *stream.Hub
	oracle kyc.Oracle
	logger *log.Logger
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.Handle("GET /ws", s.hub)

	mux.HandleFunc("POST /api/rounds", s.handleCreateRound)
	mux.HandleFunc("GET /api/rounds", s.handleListRounds)
	mux.HandleFunc("GET /api/rounds/{id}", s.handleGetRound)
	mux.HandleFunc("GET /api/rounds/{id}/events", s.handleListEvents)
	mux.HandleFunc("GET /api/rounds/{id}/orders/{buyer}", s.handleGetOrder)

	mux.HandleFunc("POST /api/rounds/{id}/configure", s.handleConfigure)
	mux.HandleFunc("POST /api/rounds/{id}/start", s.handleStartRaising)
	mux.HandleFunc("POST /api/rounds/{id}/end", s.handleEndRaising)
	mux.HandleFunc("POST /api/rounds/{id}/end-refund", s.handleEndRefund)
	mux.HandleFunc("POST /api/rounds/{id}/token-fund", s.handleDepositTokenFund)
	mux.HandleFunc("POST /api/rounds/{id}/distribute", s.handleDistribute)
	mux.HandleFunc("POST /api/rounds/{id}/withdraw-unsold", s.handleWithdrawUnsold)

	mux.HandleFunc("POST /api/rounds/{id}/buy", s.handleBuy)
	mux.HandleFunc("POST /api/rounds/{id}/claim", s.handleClaim)
	mux.HandleFunc("POST /api/rounds/{id}/refund", s.handleClaimRefund)

	mux.HandleFunc("PUT /api/rounds/{id}/allocations/{investor}", s.handleSetAllocation)
	mux.HandleFunc("DELETE /api/rounds/{id}/allocations/{investor}", s.handleClearAllocation)
	mux.HandleFunc("POST /api/rounds/{id}/whitelist/add", s.handleAddWhitelist)
	mux.HandleFunc("POST /api/rounds/{id}/whitelist/remove", s.handleRemoveWhitelist)
	mux.HandleFunc("POST /api/rounds/{id}/milestones", s.handleAppendMilestone)
	mux.HandleFunc("DELETE /api/rounds/{id}/milestones", s.handleResetMilestones)
	mux.HandleFunc("PUT /api/rounds/{id}/owner", s.handleChangeOwner)

	mux.HandleFunc("POST /api/kyc/attest", s.handleKYCAttest)
	mux.HandleFunc("POST /api/kyc/revoke", s.handleKYCRevoke)

	return mux
}

// adminCap extracts the capability from the request header. A missing or
// malformed header yields the zero capability, which the service rejects.
func adminCap(r *http.Request) identity.AdminCap {
	cap, err := identity.AdminCapFromHex(r.Header.Get(adminCapHeader))
	if err != nil {
		return identity.AdminCap{}
	}
	return cap
}

// roundJSON is the API rendering of a round.
type roundJSON struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Kind  string `json:"kind"`
	Phase string `json:"phase"`

	SoftCap uint64 `json:"soft_cap"`
	HardCap uint64 `json:"hard_cap"`

	SwapRatioCoin  uint64 `json:"swap_ratio_coin"`
	SwapRatioToken uint64 `json:"swap_ratio_token"`
	CoinDecimals   uint8  `json:"coin_decimals"`
	TokenDecimals  uint8  `json:"token_decimals"`

	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`

	TotalSold        uint64 `json:"total_sold"`
	RaisedValue      uint64 `json:"raised_value"`
	ParticipantCount uint64 `json:"participant_count"`
	TokenFundBalance uint64 `json:"token_fund_balance"`

	DefaultAllocationCap uint64            `json:"default_allocation_cap"`
	AllocationOverrides  map[string]uint64 `json:"allocation_overrides"`

	WhitelistEnabled bool     `json:"whitelist_enabled"`
	Whitelist        []string `json:"whitelist"`
	RequireKYC       bool     `json:"require_kyc"`

	Vesting *domain.VestingSchedule `json:"vesting,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

func toRoundJSON(r *domain.Round) *roundJSON {
	whitelist := make([]string, 0, len(r.Whitelist))
	for m := range r.Whitelist {
		whitelist = append(whitelist, m)
	}
	sort.Strings(whitelist)

	return &roundJSON{
		ID:                   r.ID,
		Owner:                r.Owner,
		Kind:                 r.Kind.String(),
		Phase:                r.Phase.String(),
		SoftCap:              r.SoftCap,
		HardCap:              r.HardCap,
		SwapRatioCoin:        r.SwapRatioCoin,
		SwapRatioToken:       r.SwapRatioToken,
		CoinDecimals:         r.CoinDecimals,
		TokenDecimals:        r.TokenDecimals,
		StartTime:            r.StartTime,
		EndTime:              r.EndTime,
		TotalSold:            r.TotalSold,
		RaisedValue:          r.RaisedValue,
		ParticipantCount:     r.ParticipantCount,
		TokenFundBalance:     r.TokenFundBalance,
		DefaultAllocationCap: r.DefaultAllocationCap,
		AllocationOverrides:  r.AllocationOverrides,
		WhitelistEnabled:     r.WhitelistEnabled,
		Whitelist:            whitelist,
		RequireKYC:           r.RequireKYC,
		Vesting:              r.Vesting,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

// orderJSON is the API rendering of an order.
type orderJSON struct {
	RoundID         string `json:"round_id"`
	Buyer           string `json:"buyer"`
	CoinContributed uint64 `json:"coin_contributed"`
	TokenPurchased  uint64 `json:"token_purchased"`
	TokenReleased   uint64 `json:"token_released"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}

func toOrderJSON(o *domain.Order) *orderJSON {
	return &orderJSON{
		RoundID:         o.RoundID,
		Buyer:           o.Buyer,
		CoinContributed: o.CoinContributed,
		TokenPurchased:  o.TokenPurchased,
		TokenReleased:   o.TokenReleased,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// eventJSON is the API rendering of an audit event.
type eventJSON struct {
	EventID      string `json:"event_id"`
	RoundID      string `json:"round_id"`
	Op           string `json:"op"`
	Actor        string `json:"actor,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	Amount       uint64 `json:"amount"`
	RaisedBefore uint64 `json:"raised_before"`
	RaisedAfter  uint64 `json:"raised_after"`
	SoldBefore   uint64 `json:"sold_before"`
	SoldAfter    uint64 `json:"sold_after"`
	PhaseBefore  string `json:"phase_before"`
	PhaseAfter   string `json:"phase_after"`
}

func toEventJSON(e *domain.AuditEvent) *eventJSON {
	return &eventJSON{
		EventID:      e.EventID,
		RoundID:      e.RoundID,
		Op:           e.Op,
		Actor:        e.Actor,
		Timestamp:    e.Timestamp,
		Amount:       e.Amount,
		RaisedBefore: e.RaisedBefore,
		RaisedAfter:  e.RaisedAfter,
		SoldBefore:   e.SoldBefore,
		SoldAfter:    e.SoldAfter,
		PhaseBefore:  e.PhaseBefore,
		PhaseAfter:   e.PhaseAfter,
	}
}

func (s *apiServer) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner string `json:"owner"`
		Kind  string `json:"kind"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	owner, err := identity.ParsePrincipal(req.Owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	kind, ok := parseRoundKind(req.Kind)
	if !ok {
		s.writeErrorStatus(w, http.StatusBadRequest, "unknown round kind: "+req.Kind)
		return
	}

	created, err := s.svc.CreateRound(r.Context(), adminCap(r), owner.String(), kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toRoundJSON(created))
}

func (s *apiServer) handleListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := s.svc.ListRounds(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]*roundJSON, 0, len(rounds))
	for _, rd := range rounds {
		out = append(out, toRoundJSON(rd))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleGetRound(w http.ResponseWriter, r *http.Request) {
	rd, err := s.svc.GetRound(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRoundJSON(rd))
}

func (s *apiServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.ListEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]*eventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, toEventJSON(e))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.GetOrder(r.Context(), r.PathValue("id"), r.PathValue("buyer"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderJSON(o))
}

func (s *apiServer) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SoftCap              uint64                  `json:"soft_cap"`
		HardCap              uint64                  `json:"hard_cap"`
		SwapRatioCoin        uint64                  `json:"swap_ratio_coin"`
		SwapRatioToken       uint64                  `json:"swap_ratio_token"`
		CoinDecimals         uint8                   `json:"coin_decimals"`
		TokenDecimals        uint8                   `json:"token_decimals"`
		StartTime            int64                   `json:"start_time"`
		EndTime              int64                   `json:"end_time"`
		DefaultAllocationCap uint64                  `json:"default_allocation_cap"`
		WhitelistEnabled     bool                    `json:"whitelist_enabled"`
		RequireKYC           bool                    `json:"require_kyc"`
		Vesting              *domain.VestingSchedule `json:"vesting"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	err := s.svc.Configure(r.Context(), adminCap(r), r.PathValue("id"), round.ConfigureParams{
		SoftCap:              req.SoftCap,
		HardCap:              req.HardCap,
		SwapRatioCoin:        req.SwapRatioCoin,
		SwapRatioToken:       req.SwapRatioToken,
		CoinDecimals:         req.CoinDecimals,
		TokenDecimals:        req.TokenDecimals,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		DefaultAllocationCap: req.DefaultAllocationCap,
		WhitelistEnabled:     req.WhitelistEnabled,
		RequireKYC:           req.RequireKYC,
		Vesting:              req.Vesting,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleStartRaising(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.StartRaising(r.Context(), adminCap(r), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleEndRaising(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.EndRaising(r.Context(), adminCap(r), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleEndRefund(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.EndRefund(r.Context(), adminCap(r), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleDepositTokenFund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.DepositTokenFund(r.Context(), adminCap(r), r.PathValue("id"), req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor  string `json:"actor"`
		Amount uint64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	actor, err := identity.ParsePrincipal(req.Actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	paid, err := s.svc.DistributeRaisedFund(r.Context(), adminCap(r), r.PathValue("id"), actor.String(), req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"paid": paid})
}

func (s *apiServer) handleWithdrawUnsold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	actor, err := identity.ParsePrincipal(req.Actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	withdrawn, err := s.svc.WithdrawUnsoldToken(r.Context(), adminCap(r), r.PathValue("id"), actor.String())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"withdrawn": withdrawn})
}

func (s *apiServer) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Buyer  string `json:"buyer"`
		Amount uint64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	buyer, err := identity.ParsePrincipal(req.Buyer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	order, err := s.svc.Buy(r.Context(), r.PathValue("id"), buyer.String(), req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderJSON(order))
}

func (s *apiServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Buyer string `json:"buyer"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	buyer, err := identity.ParsePrincipal(req.Buyer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	released, err := s.svc.Claim(r.Context(), r.PathValue("id"), buyer.String())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"released": released})
}

func (s *apiServer) handleClaimRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Buyer string `json:"buyer"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	buyer, err := identity.ParsePrincipal(req.Buyer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	refunded, err := s.svc.ClaimRefund(r.Context(), r.PathValue("id"), buyer.String())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"refunded": refunded})
}

func (s *apiServer) handleSetAllocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	investor, err := identity.ParsePrincipal(r.PathValue("investor"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.svc.SetAllocationOverride(r.Context(), adminCap(r), r.PathValue("id"), investor.String(), req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleClearAllocation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearAllocationOverride(r.Context(), adminCap(r), r.PathValue("id"), r.PathValue("investor")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	investors, ok := s.decodeInvestors(w, r)
	if !ok {
		return
	}
	if err := s.svc.AddWhitelist(r.Context(), adminCap(r), r.PathValue("id"), investors); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleRemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	investors, ok := s.decodeInvestors(w, r)
	if !ok {
		return
	}
	if err := s.svc.RemoveWhitelist(r.Context(), adminCap(r), r.PathValue("id"), investors); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleAppendMilestone(w http.ResponseWriter, r *http.Request) {
	var req domain.VestingMilestone
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.AppendMilestone(r.Context(), adminCap(r), r.PathValue("id"), req); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleResetMilestones(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ResetMilestones(r.Context(), adminCap(r), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleChangeOwner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner string `json:"owner"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	owner, err := identity.ParsePrincipal(req.Owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.svc.ChangeOwner(r.Context(), adminCap(r), r.PathValue("id"), owner.String()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *apiServer) handleKYCAttest(w http.ResponseWriter, r *http.Request) {
	s.handleKYCMutation(w, r, func(o *kyc.StaticOracle, principal string) {
		o.Attest(principal)
	})
}

func (s *apiServer) handleKYCRevoke(w http.ResponseWriter, r *http.Request) {
	s.handleKYCMutation(w, r, func(o *kyc.StaticOracle, principal string) {
		o.Revoke(principal)
	})
}

func (s *apiServer) handleKYCMutation(w http.ResponseWriter, r *http.Request, apply func(*kyc.StaticOracle, string)) {
	oracle, ok := s.oracle.(*kyc.StaticOracle)
	if !ok {
		s.writeErrorStatus(w, http.StatusConflict, "kyc oracle is not mutable")
		return
	}
	var req struct {
		Principal string `json:"principal"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	principal, err := identity.ParsePrincipal(req.Principal)
	if err != nil {
		s.writeError(w, err)
		return
	}
	apply(oracle, principal.String())
	s.writeOK(w)
}

func parseRoundKind(kind string) (domain.RoundKind, bool) {
	switch kind {
	case "SEED":
		return domain.RoundKindSeed, true
	case "PRIVATE":
		return domain.RoundKindPrivate, true
	case "PUBLIC":
		return domain.RoundKindPublic, true
	default:
		return 0, false
	}
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) decodeInvestors(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req struct {
		Investors []string `json:"investors"`
	}
	if !s.decode(w, r, &req) {
		return nil, false
	}
	out := make([]string, 0, len(req.Investors))
	for _, inv := range req.Investors {
		principal, err := identity.ParsePrincipal(inv)
		if err != nil {
			s.writeError(w, err)
			return nil, false
		}
		out = append(out, principal.String())
	}
	return out, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func (s *apiServer) writeOK(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to HTTP statuses: invalid input 400,
// missing auth 403, resource absent 404, wrong phase 409, limits 422.
func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeErrorStatus(w, http.StatusNotFound, err.Error())
	case errors.Is(err, round.ErrConfig), errors.Is(err, identity.ErrInvalidPrincipal):
		s.writeErrorStatus(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, round.ErrPermission):
		s.writeErrorStatus(w, http.StatusForbidden, err.Error())
	case errors.Is(err, round.ErrPhase):
		s.writeErrorStatus(w, http.StatusConflict, err.Error())
	case errors.Is(err, round.ErrCapacity), errors.Is(err, round.ErrZeroEffect):
		s.writeErrorStatus(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Printf("internal error: %v", err)
		s.writeErrorStatus(w, http.StatusInternalServerError, "internal error")
	}
}
