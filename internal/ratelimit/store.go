package ratelimit

import (
	"context"
	"time"
)

// Store counts hits for a key within a window starting at its first hit.
type Store interface {
	// Hit records one request and returns the count in the current window
	// and when that window resets.
	Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
}
