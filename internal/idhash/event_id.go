package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic audit event identifier.
// Formula: SHA256(round_id|op|seq|timestamp)
// seq is the per-service monotonic sequence that disambiguates ops sharing
// a timestamp. Returns hex-encoded hash (64 characters).
func ComputeEventID(roundID, op string, seq uint64, timestamp int64) string {
	data := fmt.Sprintf("%s|%s|%d|%d", roundID, op, seq, timestamp)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
