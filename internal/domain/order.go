package domain

// Order is the per-investor aggregated contribution record for a round.
// One order per buyer per round, created lazily on the first purchase.
//
// Invariants: TokenReleased <= TokenPurchased at all times; TokenPurchased
// is non-decreasing while the round is raising; CoinContributed is zeroed
// exactly once by a refund.
type Order struct {
	RoundID string
	Buyer   string // buyer principal (base58)

	CoinContributed uint64 // cumulative coin units paid in
	TokenPurchased  uint64 // cumulative token units bought
	TokenReleased   uint64 // token units already claimed

	CreatedAt int64
	UpdatedAt int64
}

// Clone returns a copy safe to mutate without aliasing store state.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
