package app

import (
	"context"
	"fmt"
	"time"

	"hubrunner/app/jobs/promotionjob"
	"hubrunner/app/services/appcatalog"
	"hubrunner/app/services/assetupload"
	"hubrunner/app/services/orchestrator"
	"hubrunner/app/services/taskstore"
	"hubrunner/internal/remotejob"
	gormRepo "hubrunner/internal/repository/gorm"

	"gorm.io/gorm"
)

// Options carry the tunables read from the environment.
type Options struct {
	MaxConcurrent     int
	PollInterval      time.Duration
	TaskTimeout       time.Duration
	BatchStagger      time.Duration
	PromoteDebounce   time.Duration
	CatalogTTL        time.Duration
	UploadConcurrency int
}

type Container struct {
	DB           *gorm.DB
	Store        *taskstore.Store
	Orchestrator *orchestrator.Orchestrator
	Catalog      *appcatalog.Service
	Uploads      *assetupload.Service
	PromotionJob *promotionjob.PromotionJob
}

func NewContainer(db *gorm.DB, client remotejob.Client, opts Options) (*Container, error) {
	// Initialize repositories
	historyRepo := gormRepo.NewTaskRepository(db)

	// Initialize services
	store := taskstore.New(historyRepo)
	orch := orchestrator.New(client, store, orchestrator.Config{
		MaxConcurrent: opts.MaxConcurrent,
		PollInterval:  opts.PollInterval,
		Timeout:       opts.TaskTimeout,
		BatchStagger:  opts.BatchStagger,
	})

	catalog, err := appcatalog.New(client, opts.CatalogTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create app catalog: %w", err)
	}

	debounce := opts.PromoteDebounce
	job := promotionjob.NewWithConfig(promotionjob.PromotionJobConfig{
		Trigger: func(ctx context.Context, notify <-chan struct{}, fn func() error) {
			promotionjob.TriggerWithConfig(ctx, notify, fn, promotionjob.TriggerConfig{Debounce: debounce})
		},
	})
	orch.SetScheduler(job)

	return &Container{
		DB:           db,
		Store:        store,
		Orchestrator: orch,
		Catalog:      catalog,
		Uploads:      assetupload.New(client, opts.UploadConcurrency, assetupload.DefaultMaxBytes),
		PromotionJob: job,
	}, nil
}

func (c *Container) Migrate() error {
	return gormRepo.Migrate(c.DB)
}

// Start restores history and starts background jobs.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load task history: %w", err)
	}
	c.PromotionJob.Register(ctx, c.Orchestrator)
	return nil
}

func (c *Container) Shutdown() {
	c.PromotionJob.Shutdown()
	c.Orchestrator.Shutdown()
	c.Catalog.Close()
}
