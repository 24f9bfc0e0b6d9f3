package util

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Wait blocks for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := clk.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
