package taskrunner

import (
	"context"
	"time"
)

// TriggerFunc drives the poll loop. It calls fn every interval until fn
// reports done or ctx ends.
type TriggerFunc func(ctx context.Context, interval time.Duration, fn func() bool)

func Trigger(ctx context.Context, interval time.Duration, fn func() bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fn() {
				return
			}
		}
	}
}
