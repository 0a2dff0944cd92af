// Package taskrunner drives one admitted task through submission, polling and
// its terminal transition.
package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hubrunner/app/services/taskstore"
	"hubrunner/domain/task"
	"hubrunner/internal/remotejob"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 60 * time.Minute

	progressStarted   = 10
	progressQueued    = 20
	progressSubmitted = 30
	progressCeiling   = 90
	progressPerPoll   = 5

	remoteCancelTimeout = 10 * time.Second
)

var running = []task.Status{task.StatusRunning}

type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Trigger      TriggerFunc
	// OnTerminal receives the record as it was right before the runner moved
	// it to SUCCESS or FAILED. It is called exactly once per won transition.
	OnTerminal func(prev task.Task)
	Now        func() time.Time
}

type Runner struct {
	client remotejob.JobOperations
	store  *taskstore.Store
	cfg    Config
	wg     sync.WaitGroup
}

func New(client remotejob.JobOperations, store *taskstore.Store, cfg Config) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Trigger == nil {
		cfg.Trigger = Trigger
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{client: client, store: store, cfg: cfg}
}

// Launch moves a PENDING or QUEUED task to RUNNING and starts its lifecycle
// in the background. It returns false when the task is gone or was already
// moved elsewhere.
func (r *Runner) Launch(parent context.Context, id string) bool {
	ctx, cancel := context.WithTimeout(parent, r.cfg.Timeout)

	from := []task.Status{task.StatusPending, task.StatusQueued}
	_, ok := r.store.Transition(id, from, func(t *task.Task) {
		t.Status = task.StatusRunning
		t.Progress = progressStarted
		t.StartTime = r.cfg.Now()
		t.QueuePosition = 0
	})
	if !ok {
		cancel()
		return false
	}
	r.store.Attach(id, cancel)

	current, ok := r.store.Get(id)
	if !ok || current.Status != task.StatusRunning {
		return true
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.run(ctx, current)
	}()
	return true
}

// Wait blocks until every launched lifecycle has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, t task.Task) {
	logger := log.WithField("task_id", t.ID)

	if t.Credentials.APIKey == "" || t.Credentials.WebappID == "" {
		r.fail(t.ID, "missing API key or webapp id")
		return
	}

	submitted, err := r.client.Submit(ctx, t.Credentials, t.Params)
	if err != nil {
		if r.timedOut(ctx, t.ID) {
			return
		}
		if ctx.Err() != nil {
			// Shutdown or cancellation; the record is left to whoever ended it.
			logger.Debug("submission interrupted")
			return
		}
		msg := err.Error()
		if msg == "" {
			msg = "submission failed"
		}
		logger.WithError(err).Warn("task submission failed")
		r.fail(t.ID, msg)
		return
	}

	logger = logger.WithField("remote_task_id", submitted.TaskID)
	ok := r.store.UpdateIf(t.ID, running, func(t *task.Task) {
		t.RemoteTaskID = submitted.TaskID
		t.Progress = max(t.Progress, progressSubmitted)
	})
	if !ok {
		logger.Info("task left RUNNING during submission, cancelling remote job")
		r.cancelRemote(t.Credentials.APIKey, submitted.TaskID)
		return
	}
	logger.Info("task submitted")

	polls := 0
	r.cfg.Trigger(ctx, r.cfg.PollInterval, func() bool {
		polls++
		resp, err := r.client.QueryOutputs(ctx, t.Credentials.APIKey, submitted.TaskID)
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			logger.WithError(err).Warn("poll failed, will retry")
			return false
		}
		return r.handlePoll(t.ID, polls, resp)
	})

	r.timedOut(ctx, t.ID)
}

// handlePoll applies one poll response and reports whether polling should
// stop. Responses for a task that is no longer RUNNING change nothing.
func (r *Runner) handlePoll(id string, polls int, resp *remotejob.OutputsResponse) bool {
	logger := log.WithField("task_id", id)

	switch outcome := remotejob.Classify(resp.Code); outcome {
	case remotejob.OutcomeSuccess:
		outputs := NormalizeOutputs(resp.Data)
		won := r.finish(id, func(t *task.Task) {
			t.Status = task.StatusSuccess
			t.Progress = 100
			t.Result = outputs
		})
		if won {
			logger.WithField("outputs", len(outputs)).Info("task succeeded")
		}
		return true

	case remotejob.OutcomeRunning:
		progress := min(progressCeiling, progressSubmitted+polls*progressPerPoll)
		return !r.store.UpdateIf(id, running, func(t *task.Task) {
			t.Progress = max(t.Progress, progress)
		})

	case remotejob.OutcomeQueued:
		return !r.store.UpdateIf(id, running, func(t *task.Task) {
			t.Progress = max(t.Progress, progressQueued)
		})

	case remotejob.OutcomeFailed, remotejob.OutcomeQueueExceeded:
		reason := FailureReason(resp.Msg, resp.Data)
		if r.fail(id, reason) {
			logger.WithField("outcome", outcome.String()).WithField("reason", reason).Warn("task failed remotely")
		}
		return true

	default:
		logger.WithField("code", resp.Code).Debug("unrecognized poll code, continuing")
		current, ok := r.store.Get(id)
		return !ok || current.Status != task.StatusRunning
	}
}

// timedOut fails the task if ctx ended because of the hard deadline.
func (r *Runner) timedOut(ctx context.Context, id string) bool {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return false
	}
	if r.fail(id, fmt.Sprintf("task timed out after %s", r.cfg.Timeout)) {
		log.WithField("task_id", id).Warn("task timed out")
	}
	return true
}

func (r *Runner) fail(id, reason string) bool {
	return r.finish(id, func(t *task.Task) {
		t.Status = task.StatusFailed
		t.Error = reason
	})
}

// finish performs the terminal transition out of RUNNING. Only the caller
// that wins the transition reports it to OnTerminal.
func (r *Runner) finish(id string, fn func(*task.Task)) bool {
	prev, ok := r.store.Transition(id, running, func(t *task.Task) {
		fn(t)
		end := r.cfg.Now()
		t.EndTime = &end
	})
	if !ok {
		return false
	}
	if r.cfg.OnTerminal != nil {
		r.cfg.OnTerminal(prev)
	}
	return true
}

func (r *Runner) cancelRemote(apiKey, remoteTaskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteCancelTimeout)
	defer cancel()
	if err := r.client.Cancel(ctx, apiKey, remoteTaskID); err != nil {
		log.WithField("remote_task_id", remoteTaskID).WithError(err).Warn("failed to cancel remote job")
	}
}
