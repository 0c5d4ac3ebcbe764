// Package identity resolves and validates the principals acting on a round,
// and carries the unforgeable admin capability token.
package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidPrincipal is returned for addresses that do not decode to a
// 32-byte ed25519 public key on the curve.
var ErrInvalidPrincipal = errors.New("invalid principal address")

// Principal is a base58-encoded ed25519 public key identifying an actor.
type Principal string

// ParsePrincipal validates and normalizes an address.
func ParsePrincipal(addr string) (Principal, error) {
	decoded, err := base58.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if len(decoded) != 32 {
		return "", fmt.Errorf("%w: decoded length %d", ErrInvalidPrincipal, len(decoded))
	}
	if !isOnCurve(decoded) {
		return "", fmt.Errorf("%w: point not on curve", ErrInvalidPrincipal)
	}
	return Principal(addr), nil
}

func (p Principal) String() string {
	return string(p)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// AdminCap is the capability token required for administrative operations.
// Possession of the token value is the authorization; it is never persisted.
type AdminCap struct {
	secret [32]byte
}

// NewAdminCap mints a fresh capability from crypto/rand.
func NewAdminCap() (AdminCap, error) {
	var cap AdminCap
	if _, err := rand.Read(cap.secret[:]); err != nil {
		return AdminCap{}, fmt.Errorf("mint admin cap: %w", err)
	}
	return cap, nil
}

// AdminCapFromHex restores a capability from its hex form, for sharing one
// token between the server and the admin CLI.
func AdminCapFromHex(s string) (AdminCap, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return AdminCap{}, fmt.Errorf("decode admin cap: %w", err)
	}
	if len(raw) != 32 {
		return AdminCap{}, fmt.Errorf("decode admin cap: length %d, want 32", len(raw))
	}
	var cap AdminCap
	copy(cap.secret[:], raw)
	return cap, nil
}

// Hex returns the shareable form of the capability.
func (c AdminCap) Hex() string {
	return hex.EncodeToString(c.secret[:])
}

// Equal compares capabilities in constant time.
func (c AdminCap) Equal(other AdminCap) bool {
	return subtle.ConstantTimeCompare(c.secret[:], other.secret[:]) == 1
}
