package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes the deterministic content fingerprint over the
// fully-assembled page contents. Equal content always produces an equal
// fingerprint, which is what the unchanged-feed short-circuit relies on.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
