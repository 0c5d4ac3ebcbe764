// Package custody models the fungible-value primitives the round service
// delegates to: balances that can be split, joined and transferred. Within a
// round operation every custody call is assumed atomic with the operation.
package custody

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInsufficient is returned when a split or withdrawal exceeds the
// available balance.
var ErrInsufficient = errors.New("insufficient custody balance")

// ErrOverflow is returned when a join would push a balance past the
// maximum representable amount.
var ErrOverflow = errors.New("custody balance overflow")

// Asset distinguishes the two funds a round holds.
type Asset string

const (
	AssetCoin  Asset = "COIN"  // contributed payment units
	AssetToken Asset = "TOKEN" // token fund deposited for claims
)

// Balance is a quantity of fungible value. The zero value is an empty balance.
type Balance struct {
	amount uint64
}

// Zero returns an empty balance.
func Zero() Balance {
	return Balance{}
}

// NewBalance mints a balance of the given amount. Only deposits entering the
// vault create non-zero balances.
func NewBalance(amount uint64) Balance {
	return Balance{amount: amount}
}

// Value returns the amount held.
func (b Balance) Value() uint64 {
	return b.amount
}

// Join merges other into b. A join that would overflow returns ErrOverflow
// and leaves b unchanged.
func (b *Balance) Join(other Balance) error {
	if other.amount > math.MaxUint64-b.amount {
		return fmt.Errorf("%w: joining %d and %d", ErrOverflow, b.amount, other.amount)
	}
	b.amount += other.amount
	return nil
}

// Split removes amount from b and returns it as a new balance.
func (b *Balance) Split(amount uint64) (Balance, error) {
	if amount > b.amount {
		return Balance{}, fmt.Errorf("%w: have %d, want %d", ErrInsufficient, b.amount, amount)
	}
	b.amount -= amount
	return Balance{amount: amount}, nil
}

// Vault holds per-round coin and token funds plus the accounts value is
// transferred to (investor claims/refunds, owner withdrawals).
type Vault struct {
	mu       sync.Mutex
	funds    map[string]*Balance // keyed by roundID|asset
	accounts map[string]uint64   // keyed by principal|asset
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		funds:    make(map[string]*Balance),
		accounts: make(map[string]uint64),
	}
}

func fundKey(roundID string, asset Asset) string {
	return roundID + "|" + string(asset)
}

func accountKey(principal string, asset Asset) string {
	return principal + "|" + string(asset)
}

// Deposit adds amount to the round's fund for the asset.
func (v *Vault) Deposit(roundID string, asset Asset, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.funds[fundKey(roundID, asset)]
	if !ok {
		zero := Zero()
		b = &zero
		v.funds[fundKey(roundID, asset)] = b
	}
	return b.Join(NewBalance(amount))
}

// FundValue returns the amount currently held in the round's fund.
func (v *Vault) FundValue(roundID string, asset Asset) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	if b, ok := v.funds[fundKey(roundID, asset)]; ok {
		return b.Value()
	}
	return 0
}

// Transfer splits amount out of the round's fund and credits it to the
// recipient's account. Returns ErrInsufficient without mutation when the
// fund cannot cover the amount.
func (v *Vault) Transfer(roundID string, asset Asset, amount uint64, to string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.funds[fundKey(roundID, asset)]
	if !ok {
		return fmt.Errorf("%w: have 0, want %d", ErrInsufficient, amount)
	}
	split, err := b.Split(amount)
	if err != nil {
		return err
	}
	v.accounts[accountKey(to, asset)] += split.Value()
	return nil
}

// AccountValue returns the amount transferred to a principal so far.
func (v *Vault) AccountValue(principal string, asset Asset) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.accounts[accountKey(principal, asset)]
}
