package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SnapshotIDLength is the length of a snapshot identifier in hex characters.
const SnapshotIDLength = 16

// ComputeSnapshotID computes a deterministic snapshot id using SHA256.
// Formula: SHA256(ticker|RFC3339Nano(timestamp in UTC)), hex-encoded and
// truncated to 16 characters. The timestamp is normalized to UTC so that
// equal instants yield equal ids regardless of the caller's zone.
//
// Collisions are accepted as negligible: timestamp resolution is finer than
// the expected write rate per ticker, so no collision-detection retry is
// performed.
func ComputeSnapshotID(ticker string, timestamp time.Time) string {
	data := fmt.Sprintf("%s|%s", ticker, timestamp.UTC().Format(time.RFC3339Nano))

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:SnapshotIDLength]
}
