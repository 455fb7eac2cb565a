package replicator

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// NextRev computes the server-assigned revision that replaces
// currentRev after an accepted write. The store keeps a single latest
// value per key, so the facade recomputes the revision itself instead
// of trusting one submitted by the client: generation is parsed from
// the stored revision and bumped, the suffix is a digest of the new
// payload.
func NextRev(currentRev string, payload []byte) string {
	gen := 0
	if head, _, ok := strings.Cut(currentRev, "-"); ok {
		if n, err := strconv.Atoi(head); err == nil {
			gen = n
		}
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%d-%x", gen+1, sum[:6])
}
