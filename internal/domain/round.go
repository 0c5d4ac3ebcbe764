package domain

// Phase is the lifecycle state of a fundraising round.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseRaising
	PhaseRefunding
	PhaseRefundClosed
	PhaseClaiming
)

// String returns the phase name used in API responses and audit records.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseRaising:
		return "RAISING"
	case PhaseRefunding:
		return "REFUNDING"
	case PhaseRefundClosed:
		return "REFUND_CLOSED"
	case PhaseClaiming:
		return "CLAIMING"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether custody can be drained from this phase.
func (p Phase) Terminal() bool {
	return p == PhaseClaiming || p == PhaseRefundClosed
}

// RoundKind classifies the fundraising round.
type RoundKind int

const (
	RoundKindSeed RoundKind = iota
	RoundKindPrivate
	RoundKindPublic
)

// Valid reports whether k is within the known enum range.
func (k RoundKind) Valid() bool {
	return k >= RoundKindSeed && k <= RoundKindPublic
}

func (k RoundKind) String() string {
	switch k {
	case RoundKindSeed:
		return "SEED"
	case RoundKindPrivate:
		return "PRIVATE"
	case RoundKindPublic:
		return "PUBLIC"
	default:
		return "UNKNOWN"
	}
}

// FullPercent is the scaled representation of 100%.
// All vesting percentages are integers in this scale (0.001% granularity).
const FullPercent uint64 = 100_000

// Round is the aggregate state of a single fundraising round.
// All timestamps are Unix milliseconds; all amounts are base units.
type Round struct {
	ID    string
	Owner string // round owner principal (base58)
	Kind  RoundKind
	Phase Phase

	// Caps, invariant 0 < SoftCap < HardCap (coin units).
	SoftCap uint64
	HardCap uint64

	// Swap ratio: SwapRatioCoin coin units buy SwapRatioToken token units,
	// adjusted by the decimal difference. Both components > 0.
	SwapRatioCoin  uint64
	SwapRatioToken uint64
	CoinDecimals   uint8
	TokenDecimals  uint8

	// Raising window, StartTime < EndTime.
	StartTime int64
	EndTime   int64

	// Running totals.
	TotalSold        uint64 // token units purchased across all orders
	RaisedValue      uint64 // coin units contributed across all orders
	ParticipantCount uint64
	TokenFundBalance uint64 // token units deposited by the owner for claims

	// Per-investor contribution ceiling (coin units).
	DefaultAllocationCap uint64
	AllocationOverrides  map[string]uint64

	// When enabled, buy is rejected for principals outside the set.
	WhitelistEnabled bool
	Whitelist        map[string]struct{}

	RequireKYC bool

	Vesting *VestingSchedule

	CreatedAt int64
	UpdatedAt int64
}

// EffectiveCap returns the allocation ceiling for a buyer:
// the override when present, the round default otherwise.
func (r *Round) EffectiveCap(buyer string) uint64 {
	if cap, ok := r.AllocationOverrides[buyer]; ok {
		return cap
	}
	return r.DefaultAllocationCap
}

// Whitelisted reports whether buyer passes the whitelist gate.
// Rounds without the whitelist enabled admit everyone.
func (r *Round) Whitelisted(buyer string) bool {
	if !r.WhitelistEnabled {
		return true
	}
	_, ok := r.Whitelist[buyer]
	return ok
}

// Clone returns a deep copy. Services mutate clones and persist them only
// after every check passes, so an aborted operation leaves no trace.
func (r *Round) Clone() *Round {
	c := *r
	if r.AllocationOverrides != nil {
		c.AllocationOverrides = make(map[string]uint64, len(r.AllocationOverrides))
		for k, v := range r.AllocationOverrides {
			c.AllocationOverrides[k] = v
		}
	}
	if r.Whitelist != nil {
		c.Whitelist = make(map[string]struct{}, len(r.Whitelist))
		for k := range r.Whitelist {
			c.Whitelist[k] = struct{}{}
		}
	}
	if r.Vesting != nil {
		c.Vesting = r.Vesting.Clone()
	}
	return &c
}
