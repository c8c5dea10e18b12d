package services

import (
	"context"
	"time"

	"github.com/juju/clock"
)

// Sleep blocks for d on clk or until ctx is cancelled. Non-positive durations
// return immediately.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	select {
	case <-clk.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
