package promotionjob

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
)

type TriggerConfig struct {
	Debounce time.Duration
}

func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Debounce: 500 * time.Millisecond,
	}
}

// TriggerWithConfig runs fn once per burst of notifications. After the first
// notification it waits for the debounce window; anything arriving meanwhile
// is folded into the same run.
func TriggerWithConfig(ctx context.Context, notify <-chan struct{}, fn func() error, config TriggerConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
		}

		if config.Debounce > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(config.Debounce):
			}
		}

		select {
		case <-notify:
		default:
		}

		if err := fn(); err != nil {
			log.Errorf("queue promotion failed: %s", err)
		}
	}
}

func Trigger(ctx context.Context, notify <-chan struct{}, fn func() error) {
	TriggerWithConfig(ctx, notify, fn, DefaultTriggerConfig())
}
