package domain

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// IdempotencyKey derives the deterministic per-delivery key for an owner and
// target instant. Repeated calls with equal inputs return equal outputs, so
// re-materializations and retries collide instead of duplicating deliveries.
func IdempotencyKey(ownerID string, target time.Time) string {
	h := xxhash.Sum64String(ownerID + "|" + target.UTC().Format(time.RFC3339))
	return fmt.Sprintf("event-%016x", h)
}
