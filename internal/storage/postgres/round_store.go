package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

// RoundStore implements storage.RoundStore using PostgreSQL.
//
// Amounts are uint64 in the domain and BIGINT in the schema; values are cast
// through int64 at the boundary. The maps and the vesting schedule live in
// JSONB columns so a round row stays self-contained.
type RoundStore struct {
	pool *Pool
}

// NewRoundStore creates a new RoundStore.
func NewRoundStore(pool *Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RoundStore = (*RoundStore)(nil)

const roundColumns = `
	id, owner, kind, phase,
	soft_cap, hard_cap,
	swap_ratio_coin, swap_ratio_token, coin_decimals, token_decimals,
	start_time, end_time,
	total_sold, raised_value, participant_count, token_fund_balance,
	default_allocation_cap, allocation_overrides,
	whitelist_enabled, whitelist, require_kyc,
	vesting, created_at, updated_at
`

// Insert adds a new round. Returns ErrDuplicateKey if the ID exists.
func (s *RoundStore) Insert(ctx context.Context, r *domain.Round) error {
	query := `
		INSERT INTO rounds (` + roundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	args, err := roundArgs(r)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// Update replaces the stored round. Returns ErrNotFound if not exists.
func (s *RoundStore) Update(ctx context.Context, r *domain.Round) error {
	query := `
		UPDATE rounds SET
			owner = $2, kind = $3, phase = $4,
			soft_cap = $5, hard_cap = $6,
			swap_ratio_coin = $7, swap_ratio_token = $8,
			coin_decimals = $9, token_decimals = $10,
			start_time = $11, end_time = $12,
			total_sold = $13, raised_value = $14,
			participant_count = $15, token_fund_balance = $16,
			default_allocation_cap = $17, allocation_overrides = $18,
			whitelist_enabled = $19, whitelist = $20, require_kyc = $21,
			vesting = $22, created_at = $23, updated_at = $24
		WHERE id = $1
	`

	args, err := roundArgs(r)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
func (s *RoundStore) GetByID(ctx context.Context, roundID string) (*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, roundID)
	r, err := scanRound(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get round by id: %w", err)
	}
	return r, nil
}

// List retrieves all rounds, ordered by created_at ASC.
func (s *RoundStore) List(ctx context.Context) ([]*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []*domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return out, nil
}

// roundArgs flattens a round into query arguments in roundColumns order.
func roundArgs(r *domain.Round) ([]any, error) {
	overrides, err := json.Marshal(overridesJSON(r.AllocationOverrides))
	if err != nil {
		return nil, fmt.Errorf("marshal allocation overrides: %w", err)
	}
	whitelist, err := json.Marshal(whitelistJSON(r.Whitelist))
	if err != nil {
		return nil, fmt.Errorf("marshal whitelist: %w", err)
	}
	var vesting []byte
	if r.Vesting != nil {
		vesting, err = json.Marshal(r.Vesting)
		if err != nil {
			return nil, fmt.Errorf("marshal vesting: %w", err)
		}
	}

	return []any{
		r.ID, r.Owner, int16(r.Kind), int16(r.Phase),
		int64(r.SoftCap), int64(r.HardCap),
		int64(r.SwapRatioCoin), int64(r.SwapRatioToken),
		int16(r.CoinDecimals), int16(r.TokenDecimals),
		r.StartTime, r.EndTime,
		int64(r.TotalSold), int64(r.RaisedValue),
		int64(r.ParticipantCount), int64(r.TokenFundBalance),
		int64(r.DefaultAllocationCap), overrides,
		r.WhitelistEnabled, whitelist, r.RequireKYC,
		vesting, r.CreatedAt, r.UpdatedAt,
	}, nil
}

// scanRound scans a single row into Round.
func scanRound(row pgx.Row) (*domain.Round, error) {
	var r domain.Round
	var kind, phase, coinDecimals, tokenDecimals int16
	var softCap, hardCap, ratioCoin, ratioToken int64
	var sold, raised, participants, fund, defaultCap int64
	var overridesRaw, whitelistRaw, vestingRaw []byte

	err := row.Scan(
		&r.ID, &r.Owner, &kind, &phase,
		&softCap, &hardCap,
		&ratioCoin, &ratioToken, &coinDecimals, &tokenDecimals,
		&r.StartTime, &r.EndTime,
		&sold, &raised, &participants, &fund,
		&defaultCap, &overridesRaw,
		&r.WhitelistEnabled, &whitelistRaw, &r.RequireKYC,
		&vestingRaw, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Kind = domain.RoundKind(kind)
	r.Phase = domain.Phase(phase)
	r.SoftCap = uint64(softCap)
	r.HardCap = uint64(hardCap)
	r.SwapRatioCoin = uint64(ratioCoin)
	r.SwapRatioToken = uint64(ratioToken)
	r.CoinDecimals = uint8(coinDecimals)
	r.TokenDecimals = uint8(tokenDecimals)
	r.TotalSold = uint64(sold)
	r.RaisedValue = uint64(raised)
	r.ParticipantCount = uint64(participants)
	r.TokenFundBalance = uint64(fund)
	r.DefaultAllocationCap = uint64(defaultCap)

	var overrides map[string]uint64
	if err := json.Unmarshal(overridesRaw, &overrides); err != nil {
		return nil, fmt.Errorf("unmarshal allocation overrides: %w", err)
	}
	r.AllocationOverrides = overrides
	if r.AllocationOverrides == nil {
		r.AllocationOverrides = make(map[string]uint64)
	}

	var members []string
	if err := json.Unmarshal(whitelistRaw, &members); err != nil {
		return nil, fmt.Errorf("unmarshal whitelist: %w", err)
	}
	r.Whitelist = make(map[string]struct{}, len(members))
	for _, m := range members {
		r.Whitelist[m] = struct{}{}
	}

	if len(vestingRaw) > 0 {
		var v domain.VestingSchedule
		if err := json.Unmarshal(vestingRaw, &v); err != nil {
			return nil, fmt.Errorf("unmarshal vesting: %w", err)
		}
		r.Vesting = &v
	}

	return &r, nil
}

// overridesJSON normalizes a nil map to an empty object.
func overridesJSON(m map[string]uint64) map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	return m
}

// whitelistJSON renders the member set as a sorted array for stable storage.
func whitelistJSON(set map[string]struct{}) []string {
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}
