// Package orchestrator is the public face of the task system. It ties the
// store, the admission controller and the runner together and owns the slot
// bookkeeping between them.
//
// Slot rule: a task holds a slot while PENDING or RUNNING. Whoever moves a
// task out of one of those states, through a won Transition or a Remove,
// releases the slot exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hubrunner/app/services/admission"
	"hubrunner/app/services/taskrunner"
	"hubrunner/app/services/taskstore"
	"hubrunner/domain/task"
	"hubrunner/internal/remotejob"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

const (
	cancelledReason     = "cancelled"
	remoteCancelTimeout = 10 * time.Second
)

var (
	ErrTaskNotFound   = taskstore.ErrTaskNotFound
	ErrOutputIndex    = taskstore.ErrOutputIndex
	ErrNotCancellable = errors.New("task is not cancellable")
	ErrEmptyBatch     = errors.New("batch has no parameter sets")
)

type SubmitRequest struct {
	AppID       string
	AppName     string
	Credentials task.Credentials
	Params      []task.NodeInfo
}

type BatchRequest struct {
	AppID       string
	AppName     string
	Credentials task.Credentials
	ParamSets   [][]task.NodeInfo
}

// Scheduler defers a promotion pass. When none is set promotion runs inline.
type Scheduler interface {
	Schedule()
}

type Stats struct {
	taskstore.Counts
	SlotsInUse int `json:"slots_in_use"`
	Ceiling    int `json:"ceiling"`
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Config struct {
	MaxConcurrent int
	PollInterval  time.Duration
	Timeout       time.Duration
	BatchStagger  time.Duration
	Trigger       taskrunner.TriggerFunc
	Sleep         SleepFunc
	Now           func() time.Time
}

type Orchestrator struct {
	// mu serializes admission decisions with the store writes that follow.
	mu        sync.Mutex
	store     *taskstore.Store
	admission *admission.Controller
	runner    *taskrunner.Runner
	client    remotejob.JobOperations
	scheduler Scheduler
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(client remotejob.JobOperations, store *taskstore.Store, cfg Config) *Orchestrator {
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:     store,
		admission: admission.New(cfg.MaxConcurrent),
		client:    client,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
	o.runner = taskrunner.New(client, store, taskrunner.Config{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.Timeout,
		Trigger:      cfg.Trigger,
		OnTerminal:   o.onTerminal,
		Now:          cfg.Now,
	})
	return o
}

func (o *Orchestrator) SetScheduler(s Scheduler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scheduler = s
}

// Submit records a new task and starts it right away when a slot is free.
// Failures after the record exists are reported through the task itself.
func (o *Orchestrator) Submit(req SubmitRequest) (task.Task, error) {
	return o.submit(req, "", 0, 0)
}

func (o *Orchestrator) submit(req SubmitRequest, batchID string, index, total int) (task.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	decision := o.admission.Admit(o.store.Counts().Queued)
	t := task.Task{
		ID:            newTaskID(),
		AppID:         req.AppID,
		AppName:       req.AppName,
		Status:        task.StatusQueued,
		StartTime:     o.cfg.Now(),
		Params:        req.Params,
		Credentials:   req.Credentials,
		QueuePosition: decision.QueuePosition,
		BatchID:       batchID,
		BatchIndex:    index,
		BatchTotal:    total,
	}
	if decision.Run {
		t.Status = task.StatusPending
	}

	inserted, err := o.store.Insert(t)
	if err != nil {
		if decision.Run {
			o.admission.Release()
		}
		return task.Task{}, fmt.Errorf("failed to record task: %w", err)
	}

	logger := log.WithField("task_id", inserted.ID)
	if !decision.Run {
		logger.WithField("queue_position", decision.QueuePosition).Info("task queued")
		return inserted, nil
	}

	// A failed launch means a cancel or remove got in first and released the slot.
	if o.runner.Launch(o.ctx, inserted.ID) {
		logger.Info("task started")
	}
	if current, ok := o.store.Get(inserted.ID); ok {
		return current, nil
	}
	return inserted, nil
}

// SubmitBatch fans params sets out into independent tasks sharing one batch
// id. It stops early only when ctx ends and returns what was created so far.
func (o *Orchestrator) SubmitBatch(ctx context.Context, req BatchRequest) ([]task.Task, error) {
	if len(req.ParamSets) == 0 {
		return nil, ErrEmptyBatch
	}

	batchID := uuid.NewString()
	total := len(req.ParamSets)
	created := make([]task.Task, 0, total)

	for i, params := range req.ParamSets {
		if i > 0 && o.cfg.BatchStagger > 0 {
			if err := o.cfg.Sleep(ctx, o.cfg.BatchStagger); err != nil {
				return created, err
			}
		} else if err := ctx.Err(); err != nil {
			return created, err
		}

		t, err := o.submit(SubmitRequest{
			AppID:       req.AppID,
			AppName:     req.AppName,
			Credentials: req.Credentials,
			Params:      params,
		}, batchID, i+1, total)
		if err != nil {
			return created, err
		}
		created = append(created, t)
	}

	log.WithField("batch_id", batchID).WithField("count", total).Info("batch submitted")
	return created, nil
}

// PromoteNext fills every free slot with the oldest queued tasks.
func (o *Orchestrator) PromoteNext(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.admission.HasCapacity() {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, ok := o.store.OldestQueued()
		if !ok {
			return nil
		}
		if !o.admission.Admit(0).Run {
			return nil
		}
		// A QUEUED task cancelled in the meantime never held a slot, so the
		// one just taken goes back.
		if !o.runner.Launch(o.ctx, next.ID) {
			o.admission.Release()
			continue
		}
		log.WithField("task_id", next.ID).Info("queued task promoted")
	}
	return nil
}

// Cancel fails a non terminal task with "cancelled". The remote job, if one
// exists, is cancelled in the background and never affects local state.
func (o *Orchestrator) Cancel(id string) (task.Task, error) {
	from := []task.Status{task.StatusPending, task.StatusQueued, task.StatusRunning}
	prev, ok := o.store.Transition(id, from, func(t *task.Task) {
		end := o.cfg.Now()
		t.Status = task.StatusFailed
		t.Error = cancelledReason
		t.EndTime = &end
	})
	if !ok {
		if _, exists := o.store.Get(id); !exists {
			return task.Task{}, ErrTaskNotFound
		}
		return task.Task{}, ErrNotCancellable
	}

	log.WithField("task_id", id).WithField("previous_status", prev.Status).Info("task cancelled")
	if prev.Status.HoldsSlot() {
		o.releaseSlot()
	}
	if prev.RemoteTaskID != "" {
		o.cancelRemote(prev)
	}

	current, _ := o.store.Get(id)
	return current, nil
}

// Remove deletes a task. A task removed while holding a slot gives it back
// and its remote job is cancelled.
func (o *Orchestrator) Remove(id string) error {
	removed, ok := o.store.Remove(id)
	if !ok {
		return ErrTaskNotFound
	}
	if removed.Status.HoldsSlot() {
		o.releaseSlot()
		if removed.RemoteTaskID != "" {
			o.cancelRemote(removed)
		}
	}
	return nil
}

func (o *Orchestrator) RemoveOutput(id string, index int) (task.Task, bool, error) {
	return o.store.RemoveOutput(id, index)
}

func (o *Orchestrator) ClearTerminal() int {
	return o.store.ClearTerminal()
}

func (o *Orchestrator) Get(id string) (task.Task, error) {
	t, ok := o.store.Get(id)
	if !ok {
		return task.Task{}, ErrTaskNotFound
	}
	return t, nil
}

func (o *Orchestrator) List(filters task.TaskFilters) []task.Task {
	return o.store.List(filters)
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Counts:     o.store.Counts(),
		SlotsInUse: o.admission.Running(),
		Ceiling:    o.admission.Ceiling(),
	}
}

func (o *Orchestrator) Subscribe(fn taskstore.Listener) func() {
	return o.store.Subscribe(fn)
}

// Shutdown stops every poll loop and waits for background work. Tasks still
// running stay RUNNING in memory and are not persisted.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.runner.Wait()
	o.wg.Wait()
}

func (o *Orchestrator) onTerminal(prev task.Task) {
	if prev.Status.HoldsSlot() {
		o.releaseSlot()
	}
}

func (o *Orchestrator) releaseSlot() {
	o.admission.Release()
	o.schedulePromotion()
}

func (o *Orchestrator) schedulePromotion() {
	o.mu.Lock()
	s := o.scheduler
	o.mu.Unlock()

	if s != nil {
		s.Schedule()
		return
	}
	if err := o.PromoteNext(o.ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("queue promotion failed")
	}
}

func (o *Orchestrator) cancelRemote(t task.Task) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), remoteCancelTimeout)
		defer cancel()

		logger := log.WithField("task_id", t.ID).WithField("remote_task_id", t.RemoteTaskID)
		if err := o.client.Cancel(ctx, t.Credentials.APIKey, t.RemoteTaskID); err != nil {
			logger.WithError(err).Warn("remote cancel failed")
			return
		}
		logger.Info("remote job cancelled")
	}()
}

func newTaskID() string {
	return "tsk_" + ulid.Make().String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
