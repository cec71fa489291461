package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// SleepContext waits for d on clk. It returns false if ctx finished first.
func SleepContext(ctx context.Context, clk clock.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-clk.After(d):
		return true
	}
}
