package alerts

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
)

// Fingerprint derives the dedup hash for an alert. Coordinates are
// rounded to two decimals, which buckets locations into roughly 1.1 km
// cells, so near-identical reports of the same incident collide.
func Fingerprint(category, title string, lat, lng float64) string {
	key := fmt.Sprintf("%s|%s|%.2f|%.2f",
		category,
		strings.ToLower(strings.TrimSpace(title)),
		roundCoord(lat),
		roundCoord(lng),
	)
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum[:16])
}

func roundCoord(v float64) float64 {
	return math.Round(v*100) / 100
}
