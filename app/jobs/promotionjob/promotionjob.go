// Package promotionjob moves queued tasks into free admission slots whenever
// a slot is released.
package promotionjob

import (
	"context"
	"sync"
)

type TriggerFunc func(ctx context.Context, notify <-chan struct{}, fn func() error)

type Promoter interface {
	PromoteNext(ctx context.Context) error
}

type PromotionJobConfig struct {
	Trigger TriggerFunc
}

type PromotionJob struct {
	config PromotionJobConfig
	notify chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *PromotionJob {
	return NewWithConfig(PromotionJobConfig{
		Trigger: Trigger,
	})
}

func NewWithConfig(cfg PromotionJobConfig) *PromotionJob {
	if cfg.Trigger == nil {
		cfg.Trigger = Trigger
	}

	return &PromotionJob{
		config: cfg,
		notify: make(chan struct{}, 1),
	}
}

func (pj *PromotionJob) Register(ctx context.Context, p Promoter) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	pj.cancel = cancel

	pj.wg.Add(1)
	go func() {
		defer pj.wg.Done()
		pj.config.Trigger(ctx, pj.notify, func() error {
			return p.PromoteNext(ctx)
		})
	}()

	return cancel
}

// Schedule asks for a promotion run. It never blocks; a request made while
// one is already pending is merged with it.
func (pj *PromotionJob) Schedule() {
	select {
	case pj.notify <- struct{}{}:
	default:
	}
}

func (pj *PromotionJob) Shutdown() {
	if pj.cancel != nil {
		pj.cancel()
	}
	pj.wg.Wait()
}
