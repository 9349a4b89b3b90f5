// Package hash computes and compares certificate content digests. A single
// fixed algorithm is used deployment-wide so stored hashes stay comparable
// across releases.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Algorithm is the identifier stored alongside every digest.
const Algorithm = "sha256"

// EncodedLength is the length of an encoded digest string. Tests assert on
// it to catch accidental algorithm drift.
const EncodedLength = sha256.Size * 2

// Digest returns the hex-encoded SHA-256 digest of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Matches compares a stored digest with a supplied one. The comparison is
// exact and case-sensitive; no normalization is applied.
func Matches(stored, supplied string) bool {
	return stored != "" && stored == supplied
}
