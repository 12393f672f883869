package submit

import (
	"context"
	"time"

	"github.com/flare-foundation/casper-deployer/pkg/clock"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
)

// maxSleep is the longest single timer the wait loops arm; longer waits are
// split into several of these.
const maxSleep = 0x7fffffff * time.Millisecond

func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	for d > 0 {
		chunk := min(d, maxSleep)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(chunk):
		}

		d -= chunk
	}

	return ctx.Err()
}

// waitUntil sleeps until t, returning at once when t is not in the future.
func waitUntil(ctx context.Context, clk clock.Clock, t time.Time) error {
	diff := t.Sub(clk.Now())
	if diff <= 0 {
		return nil
	}

	logger.Infof("waiting %s until %s", diff.Round(time.Second), t.UTC().Format(time.RFC3339))
	return sleep(ctx, clk, diff)
}
