package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRoundID computes a deterministic round identifier using SHA256.
// Formula: SHA256(owner|kind|created_at|seq)
// seq disambiguates rounds created within the same millisecond.
// Returns hex-encoded hash (64 characters).
func ComputeRoundID(owner string, kind string, createdAt int64, seq uint64) string {
	data := fmt.Sprintf("%s|%s|%d|%d", owner, kind, createdAt, seq)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
