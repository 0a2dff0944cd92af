package taskrunner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"hubrunner/app/services/taskstore"
	"hubrunner/domain/task"
	"hubrunner/internal/remotejob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockJobClient struct {
	mock.Mock
}

func (m *MockJobClient) Submit(ctx context.Context, creds task.Credentials, params []task.NodeInfo) (*remotejob.SubmitResult, error) {
	args := m.Called(ctx, creds, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remotejob.SubmitResult), args.Error(1)
}

func (m *MockJobClient) QueryOutputs(ctx context.Context, apiKey, remoteTaskID string) (*remotejob.OutputsResponse, error) {
	args := m.Called(ctx, apiKey, remoteTaskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remotejob.OutputsResponse), args.Error(1)
}

func (m *MockJobClient) Cancel(ctx context.Context, apiKey, remoteTaskID string) error {
	args := m.Called(ctx, apiKey, remoteTaskID)
	return args.Error(0)
}

type terminalRecorder struct {
	mu    sync.Mutex
	calls []task.Task
}

func (r *terminalRecorder) record(prev task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, prev)
}

func (r *terminalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// loopTrigger calls fn back to back, at most n times.
func loopTrigger(n int) TriggerFunc {
	return func(ctx context.Context, _ time.Duration, fn func() bool) {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil || fn() {
				return
			}
		}
	}
}

func setupRunner(t *testing.T, client *MockJobClient, cfg Config) (*Runner, *taskstore.Store, *terminalRecorder) {
	t.Helper()
	store := taskstore.New(nil)
	rec := &terminalRecorder{}
	cfg.OnTerminal = rec.record
	if cfg.Trigger == nil {
		cfg.Trigger = loopTrigger(10)
	}
	return New(client, store, cfg), store, rec
}

func insertTask(t *testing.T, store *taskstore.Store, id string, status task.Status) {
	t.Helper()
	_, err := store.Insert(task.Task{
		ID:          id,
		AppID:       "app-1",
		AppName:     "Upscaler",
		Status:      status,
		StartTime:   time.Now(),
		Params:      []task.NodeInfo{{NodeID: "3", FieldName: "prompt", FieldValue: "cat"}},
		Credentials: task.Credentials{APIKey: "key", WebappID: "wa-1"},
	})
	require.NoError(t, err)
}

func envelope(code int, msg string, data string) *remotejob.OutputsResponse {
	return &remotejob.OutputsResponse{Code: code, Msg: msg, Data: json.RawMessage(data)}
}

// TestLaunch_SucceedsAfterPolling - submit, one running poll, then success with outputs
func TestLaunch_SucceedsAfterPolling(t *testing.T) {
	client := new(MockJobClient)
	client.On("Submit", mock.Anything, task.Credentials{APIKey: "key", WebappID: "wa-1"}, mock.Anything).
		Return(&remotejob.SubmitResult{TaskID: "remote-1"}, nil)
	client.On("QueryOutputs", mock.Anything, "key", "remote-1").
		Return(envelope(remotejob.CodeRunning, "", "null"), nil).Once()
	client.On("QueryOutputs", mock.Anything, "key", "remote-1").
		Return(envelope(remotejob.CodeSuccess, "success", `[{"fileUrl":"https://cdn/x.png","fileType":"png"}]`), nil).Once()

	runner, store, rec := setupRunner(t, client, Config{})
	insertTask(t, store, "tsk_1", task.StatusPending)

	require.True(t, runner.Launch(context.Background(), "tsk_1"))
	runner.Wait()

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusSuccess, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "remote-1", got.RemoteTaskID)
	assert.Equal(t, []task.Output{{FileURL: "https://cdn/x.png", FileType: "png"}}, got.Result)
	assert.NotNil(t, got.EndTime)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, task.StatusRunning, rec.calls[0].Status)
	client.AssertExpectations(t)
}

// TestLaunch_MissingCredentials - fails without contacting the remote
func TestLaunch_MissingCredentials(t *testing.T) {
	client := new(MockJobClient)
	runner, store, rec := setupRunner(t, client, Config{})
	_, err := store.Insert(task.Task{ID: "tsk_1", Status: task.StatusPending})
	require.NoError(t, err)

	require.True(t, runner.Launch(context.Background(), "tsk_1"))
	runner.Wait()

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "missing API key or webapp id", got.Error)
	assert.Equal(t, 1, rec.count())
	client.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

// TestLaunch_SubmitFailure - submit error text becomes the task error
func TestLaunch_SubmitFailure(t *testing.T) {
	client := new(MockJobClient)
	client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &remotejob.APIError{Code: 1001, Message: "invalid webapp"})

	runner, store, rec := setupRunner(t, client, Config{})
	insertTask(t, store, "tsk_1", task.StatusPending)

	require.True(t, runner.Launch(context.Background(), "tsk_1"))
	runner.Wait()

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "API error (code 1001): invalid webapp", got.Error)
	assert.Empty(t, got.RemoteTaskID)
	assert.Equal(t, 1, rec.count())
}

// TestLaunch_RemoteFailure - failure code produces the extracted reason
func TestLaunch_RemoteFailure(t *testing.T) {
	client := new(MockJobClient)
	client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(&remotejob.SubmitResult{TaskID: "remote-1"}, nil)
	client.On("QueryOutputs", mock.Anything, "key", "remote-1").
		Return(envelope(remotejob.CodeFailed, "APIKEY_TASK_STATUS_ERROR",
			`{"failedReason":{"node_name":"KSampler","exception_message":"out of memory"}}`), nil)

	runner, store, rec := setupRunner(t, client, Config{})
	insertTask(t, store, "tsk_1", task.StatusPending)

	require.True(t, runner.Launch(context.Background(), "tsk_1"))
	runner.Wait()

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "[KSampler] out of memory", got.Error)
	assert.Equal(t, 1, rec.count())
	client.AssertNumberOfCalls(t, "QueryOutputs", 1)
}

// TestLaunch_PollErrorKeepsPolling - transport errors do not end the task
func TestLaunch_PollErrorKeepsPolling(t *testing.T) {
	client := new(MockJobClient)
	client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(&remotejob.SubmitResult{TaskID: "remote-1"}, nil)
	client.On("QueryOutputs", mock.Anything, "key", "remote-1").
		Return(nil, errors.New("connection reset")).Twice()
	client.On("QueryOutputs", mock.Anything, "key", "remote-1").
		Return(envelope(remotejob.CodeSuccess, "", `{"fileUrl":"https://cdn/y.mp4"}`), nil).Once()

	runner, store, _ := setupRunner(t, client, Config{})
	insertTask(t, store, "tsk_1", task.StatusQueued)

	require.True(t, runner.Launch(context.Background(), "tsk_1"))
	runner.Wait()

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusSuccess, got.Status)
	assert.Equal(t, []task.Output{{FileURL: "https://cdn/y.mp4"}}, got.Result)
	client.AssertNumberOfCalls(t, "QueryOutputs", 3)
}

// TestLaunch_Timeout - a task still running at the deadline fails
func TestLaunch_Timeout(t *testing.T) {
	client := new(MockJobClient)
	client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(&remotejob.SubmitResult{TaskID: "remote-1"}, nil)
	client.On("QueryOutputs", mock.Anything, "key", "remote-1").
		Return(envelope(remotejob.CodeRunning, "", "null"), nil)

	runner, store, rec := setupRunner(t, client, Config{
		PollInterval: 5 * time.Millisecond,
		Timeout:      50 * time.Millisecond,
		Trigger:      Trigger,
	})
	insertTask(t, store, "tsk_1", task.StatusPending)

	require.True(t, runner.Launch(context.Background(), "tsk_1"))
	runner.Wait()

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "task timed out after 50ms", got.Error)
	assert.Equal(t, 1, rec.count())
}

// TestLaunch_CancelledDuringSubmit - the freshly created remote job is cancelled
func TestLaunch_CancelledDuringSubmit(t *testing.T) {
	client := new(MockJobClient)
	runner, store, rec := setupRunner(t, client, Config{})
	insertTask(t, store, "tsk_1", task.StatusPending)

	client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			store.Transition("tsk_1", []task.Status{task.StatusRunning}, func(t *task.Task) {
				t.Status = task.StatusFailed
				t.Error = "cancelled"
			})
		}).
		Return(&remotejob.SubmitResult{TaskID: "remote-1"}, nil)
	client.On("Cancel", mock.Anything, "key", "remote-1").Return(nil)

	require.True(t, runner.Launch(context.Background(), "tsk_1"))
	runner.Wait()

	got, _ := store.Get("tsk_1")
	assert.Equal(t, "cancelled", got.Error)
	assert.Empty(t, got.RemoteTaskID)
	assert.Equal(t, 0, rec.count())
	client.AssertCalled(t, "Cancel", mock.Anything, "key", "remote-1")
	client.AssertNotCalled(t, "QueryOutputs", mock.Anything, mock.Anything, mock.Anything)
}

type countingRepo struct {
	mu     sync.Mutex
	writes int
}

func (c *countingRepo) ReplaceAll(ctx context.Context, tasks []task.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	return nil
}

func (c *countingRepo) FindAll(ctx context.Context) ([]task.Task, error) {
	return nil, nil
}

// TestLaunch_ShutdownDuringSubmit - an interrupted submission is not recorded as a failure
func TestLaunch_ShutdownDuringSubmit(t *testing.T) {
	client := new(MockJobClient)
	repo := &countingRepo{}
	store := taskstore.New(repo)
	rec := &terminalRecorder{}
	runner := New(client, store, Config{Trigger: loopTrigger(10), OnTerminal: rec.record})
	insertTask(t, store, "tsk_1", task.StatusPending)

	submitting := make(chan struct{})
	client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(submitting)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, runner.Launch(ctx, "tsk_1"))
	<-submitting
	cancel()
	runner.Wait()

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusRunning, got.Status)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.EndTime)
	assert.Equal(t, 0, rec.count())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, 0, repo.writes)
}

// TestLaunch_NotLaunchable - terminal or unknown tasks are refused
func TestLaunch_NotLaunchable(t *testing.T) {
	client := new(MockJobClient)
	runner, store, _ := setupRunner(t, client, Config{})
	insertTask(t, store, "tsk_done", task.StatusFailed)

	assert.False(t, runner.Launch(context.Background(), "tsk_done"))
	assert.False(t, runner.Launch(context.Background(), "missing"))
	runner.Wait()
}

// TestHandlePoll_StaleAfterCancel - a late success for a cancelled task changes nothing
func TestHandlePoll_StaleAfterCancel(t *testing.T) {
	runner, store, rec := setupRunner(t, new(MockJobClient), Config{})
	insertTask(t, store, "tsk_1", task.StatusRunning)
	store.Transition("tsk_1", []task.Status{task.StatusRunning}, func(t *task.Task) {
		t.Status = task.StatusFailed
		t.Error = "cancelled"
	})

	done := runner.handlePoll("tsk_1", 4, envelope(remotejob.CodeSuccess, "", `["https://cdn/z.png"]`))
	assert.True(t, done)

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "cancelled", got.Error)
	assert.Empty(t, got.Result)
	assert.Equal(t, 0, rec.count())

	assert.True(t, runner.handlePoll("tsk_1", 5, envelope(remotejob.CodeRunning, "", "null")))
	got, _ = store.Get("tsk_1")
	assert.Equal(t, 0, got.Progress)
}

// TestHandlePoll_Progress - progress climbs with polls, caps at 90 and never decreases
func TestHandlePoll_Progress(t *testing.T) {
	runner, store, _ := setupRunner(t, new(MockJobClient), Config{})
	insertTask(t, store, "tsk_1", task.StatusRunning)

	progressAfter := func(polls int, code int) int {
		done := runner.handlePoll("tsk_1", polls, envelope(code, "", "null"))
		require.False(t, done)
		got, _ := store.Get("tsk_1")
		return got.Progress
	}

	assert.Equal(t, 20, progressAfter(1, remotejob.CodeQueued))
	assert.Equal(t, 35, progressAfter(1, remotejob.CodeRunning))
	assert.Equal(t, 35, progressAfter(2, remotejob.CodeQueued))
	assert.Equal(t, 60, progressAfter(6, remotejob.CodeRunning))
	assert.Equal(t, 90, progressAfter(40, remotejob.CodeRunning))
	assert.Equal(t, 90, progressAfter(41, 999))
}

// TestHandlePoll_QueueExceeded - queue-exceeded is terminal
func TestHandlePoll_QueueExceeded(t *testing.T) {
	runner, store, rec := setupRunner(t, new(MockJobClient), Config{})
	insertTask(t, store, "tsk_1", task.StatusRunning)

	assert.True(t, runner.handlePoll("tsk_1", 1, envelope(remotejob.CodeQueueExceeded, "queue is full", "null")))

	got, _ := store.Get("tsk_1")
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "queue is full", got.Error)
	assert.Equal(t, 1, rec.count())
}

// TestHandlePoll_ExactlyOnceTerminal - concurrent terminal callbacks report once
func TestHandlePoll_ExactlyOnceTerminal(t *testing.T) {
	runner, store, rec := setupRunner(t, new(MockJobClient), Config{})
	insertTask(t, store, "tsk_1", task.StatusRunning)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				runner.handlePoll("tsk_1", i, envelope(remotejob.CodeSuccess, "", `["a.png"]`))
			} else {
				runner.handlePoll("tsk_1", i, envelope(remotejob.CodeFailed, "boom", "null"))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, rec.count())
}

var _ remotejob.JobOperations = (*MockJobClient)(nil)
