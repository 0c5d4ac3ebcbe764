// Package kyc abstracts the external attestation check consulted when a
// round requires verified buyers.
package kyc

import (
	"context"
	"sync"
)

// Oracle answers whether a principal holds a KYC attestation.
type Oracle interface {
	HasKYC(ctx context.Context, principal string) (bool, error)
}

// AllowAll approves every principal. Used for rounds that do not require
// KYC and in tests.
type AllowAll struct{}

func (AllowAll) HasKYC(context.Context, string) (bool, error) {
	return true, nil
}

// StaticOracle answers from a fixed in-memory set of attested principals.
type StaticOracle struct {
	mu       sync.RWMutex
	attested map[string]struct{}
}

// NewStaticOracle creates an oracle pre-populated with principals.
func NewStaticOracle(principals ...string) *StaticOracle {
	o := &StaticOracle{attested: make(map[string]struct{}, len(principals))}
	for _, p := range principals {
		o.attested[p] = struct{}{}
	}
	return o
}

// Attest marks a principal as verified.
func (o *StaticOracle) Attest(principal string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attested[principal] = struct{}{}
}

// Revoke removes a principal's attestation.
func (o *StaticOracle) Revoke(principal string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.attested, principal)
}

func (o *StaticOracle) HasKYC(_ context.Context, principal string) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.attested[principal]
	return ok, nil
}

var (
	_ Oracle = AllowAll{}
	_ Oracle = (*StaticOracle)(nil)
)
