// Package taskstore is the authoritative in-memory table of tasks. Terminal
// tasks are mirrored to a durable history repository on every change.
package taskstore

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"hubrunner/domain/task"

	log "github.com/sirupsen/logrus"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrOutputIndex  = errors.New("output index out of range")
)

type EventType string

const (
	EventInserted EventType = "inserted"
	EventUpdated  EventType = "updated"
	EventRemoved  EventType = "removed"
	EventCleared  EventType = "cleared"
)

// Event describes one committed mutation. Task is empty for EventCleared.
type Event struct {
	Type EventType `json:"type"`
	Task task.Task `json:"task"`
}

type Listener func(Event)

// Counts are derived figures for display.
type Counts struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

type entry struct {
	task task.Task
	// stop tears down whatever is driving the task (poll loop, deadline).
	stop func()
}

func (e *entry) halt() {
	if e.stop != nil {
		e.stop()
		e.stop = nil
	}
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     int64

	// emitMu orders listener delivery by commit order. It is taken before
	// mu is released.
	emitMu     sync.Mutex
	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextSubID  int

	repo      task.HistoryRepository
	persistMu sync.Mutex
}

// New creates an empty store. repo may be nil, in which case nothing is persisted.
func New(repo task.HistoryRepository) *Store {
	return &Store{
		entries:   make(map[string]*entry),
		listeners: make(map[int]Listener),
		repo:      repo,
	}
}

// Load seeds the table from the history repository. Only terminal records are
// accepted; anything else found in storage is dropped.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	tasks, err := s.repo.FindAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	restored := 0
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			continue
		}
		if _, exists := s.entries[t.ID]; exists {
			continue
		}
		s.entries[t.ID] = &entry{task: t.Clone()}
		s.seq = max(s.seq, t.Seq)
		restored++
	}
	s.mu.Unlock()

	log.WithField("count", restored).Info("restored completed tasks from history")
	return nil
}

// Insert adds a new task. It fails if the id is already present.
func (s *Store) Insert(t task.Task) (task.Task, error) {
	s.mu.Lock()
	if _, exists := s.entries[t.ID]; exists {
		s.mu.Unlock()
		return task.Task{}, errors.New("task id already exists")
	}
	s.seq++
	t.Seq = s.seq
	t = t.Clone()
	s.entries[t.ID] = &entry{task: t}
	s.unlockAndEmit(Event{Type: EventInserted, Task: t.Clone()})

	if t.Status.IsTerminal() {
		s.persist()
	}
	return t.Clone(), nil
}

func (s *Store) Get(id string) (task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return task.Task{}, false
	}
	return e.task.Clone(), true
}

// List returns tasks most recent first.
func (s *Store) List(filters task.TaskFilters) []task.Task {
	s.mu.RLock()
	out := make([]task.Task, 0, len(s.entries))
	for _, e := range s.entries {
		if filters.Match(e.task) {
			out = append(out, e.task.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq > out[j].Seq
	})
	return out
}

// Update applies fn to the task. It is a no-op returning false if id is absent.
func (s *Store) Update(id string, fn func(*task.Task)) bool {
	_, ok := s.mutate(id, nil, fn)
	return ok
}

// UpdateIf applies fn only while the task is in one of the allowed statuses.
func (s *Store) UpdateIf(id string, allowed []task.Status, fn func(*task.Task)) bool {
	_, ok := s.mutate(id, allowed, fn)
	return ok
}

// Transition is a compare-and-set on status: fn runs only if the task is
// currently in one of from. It returns the record as it was before fn. When
// the task ends up terminal its stop handle is invoked.
func (s *Store) Transition(id string, from []task.Status, fn func(*task.Task)) (task.Task, bool) {
	return s.mutate(id, from, fn)
}

func (s *Store) mutate(id string, allowed []task.Status, fn func(*task.Task)) (task.Task, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || (allowed != nil && !slices.Contains(allowed, e.task.Status)) {
		s.mu.Unlock()
		return task.Task{}, false
	}

	prev := e.task.Clone()
	next := e.task.Clone()
	fn(&next)
	next.ID = prev.ID
	next.Seq = prev.Seq
	e.task = next

	if next.Status.IsTerminal() {
		e.halt()
	}
	s.unlockAndEmit(Event{Type: EventUpdated, Task: next.Clone()})

	if prev.Status.IsTerminal() || next.Status.IsTerminal() {
		s.persist()
	}
	return prev, true
}

// Attach registers the stop handle of whatever drives the task. If the task
// is already gone or terminal, stop is invoked immediately.
func (s *Store) Attach(id string, stop func()) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.task.Status.IsTerminal() {
		s.mu.Unlock()
		stop()
		return
	}
	e.stop = stop
	s.mu.Unlock()
}

// Remove deletes the task and stops whatever drives it.
func (s *Store) Remove(id string) (task.Task, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return task.Task{}, false
	}
	e.halt()
	delete(s.entries, id)
	removed := e.task.Clone()
	s.unlockAndEmit(Event{Type: EventRemoved, Task: removed.Clone()})

	if removed.Status.IsTerminal() {
		s.persist()
	}
	return removed, true
}

// RemoveOutput deletes one output of a successful task. A task left with no
// outputs is removed entirely; the second return value reports that case.
func (s *Store) RemoveOutput(id string, index int) (task.Task, bool, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return task.Task{}, false, ErrTaskNotFound
	}
	if e.task.Status != task.StatusSuccess || index < 0 || index >= len(e.task.Result) {
		s.mu.Unlock()
		return task.Task{}, false, ErrOutputIndex
	}

	next := e.task.Clone()
	next.Result = slices.Delete(next.Result, index, index+1)

	deleted := len(next.Result) == 0
	ev := Event{Type: EventUpdated, Task: next.Clone()}
	if deleted {
		delete(s.entries, id)
		ev.Type = EventRemoved
	} else {
		e.task = next
	}
	s.unlockAndEmit(ev)

	s.persist()
	return next, deleted, nil
}

// ClearTerminal deletes every SUCCESS and FAILED task and returns how many
// were dropped.
func (s *Store) ClearTerminal() int {
	s.mu.Lock()
	cleared := 0
	for id, e := range s.entries {
		if e.task.Status.IsTerminal() {
			delete(s.entries, id)
			cleared++
		}
	}
	if cleared == 0 {
		s.mu.Unlock()
		return 0
	}
	s.unlockAndEmit(Event{Type: EventCleared})

	s.persist()
	return cleared
}

// OldestQueued returns the earliest inserted QUEUED task.
func (s *Store) OldestQueued() (task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *entry
	for _, e := range s.entries {
		if e.task.Status != task.StatusQueued {
			continue
		}
		if oldest == nil || e.task.Seq < oldest.task.Seq {
			oldest = e
		}
	}
	if oldest == nil {
		return task.Task{}, false
	}
	return oldest.task.Clone(), true
}

func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{Total: len(s.entries)}
	for _, e := range s.entries {
		switch e.task.Status {
		case task.StatusPending:
			c.Pending++
		case task.StatusQueued:
			c.Queued++
		case task.StatusRunning:
			c.Running++
		case task.StatusSuccess:
			c.Success++
		case task.StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Subscribe registers fn for every committed mutation and returns a func that
// removes it. Listeners run on the mutating goroutine, see events in commit
// order, and must neither block nor mutate the store.
func (s *Store) Subscribe(fn Listener) func() {
	s.listenerMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

// unlockAndEmit releases mu and delivers ev. A later mutation can commit
// meanwhile but cannot deliver its event until this one is delivered.
func (s *Store) unlockAndEmit(ev Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Unlock()
	s.emit(ev)
}

func (s *Store) emit(ev Event) {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	for _, fn := range s.listeners {
		fn(ev)
	}
}

func (s *Store) terminalSnapshot() []task.Task {
	s.mu.RLock()
	out := make([]task.Task, 0, len(s.entries))
	for _, e := range s.entries {
		if e.task.Status.IsTerminal() {
			out = append(out, e.task.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq > out[j].Seq
	})
	return out
}

// persist writes the terminal snapshot. The snapshot is taken while holding
// persistMu so the last write always reflects the latest state.
func (s *Store) persist() {
	if s.repo == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snapshot := s.terminalSnapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.repo.ReplaceAll(ctx, snapshot); err != nil {
		log.WithError(err).Error("failed to persist task history")
	}
}
