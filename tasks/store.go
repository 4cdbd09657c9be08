// Package tasks holds the in-memory task collection a view renders and the
// merge operations that keep it consistent across REST responses and
// realtime events.
//
// Every operation is idempotent and tolerates unknown ids, so the store does
// not depend on the order in which responses and events arrive.
package tasks

import (
	"sync"

	"taskdesk/domain"
)

// Store is an ordered collection of tasks keyed by id.
type Store struct {
	mu    sync.RWMutex
	tasks []domain.Task
	index map[string]int
	// completions seen for ids not yet in the store
	pendingDone map[string]struct{}

	broker *changeBroker
}

func NewStore() *Store {
	return &Store{
		index:       make(map[string]int),
		pendingDone: make(map[string]struct{}),
		broker:      newChangeBroker(),
	}
}

// ReplaceAll discards the current contents, including remembered
// completions, and installs tasks verbatim in the given order. Later
// duplicates of an id are dropped.
func (s *Store) ReplaceAll(tasks []domain.Task) {
	s.mu.Lock()
	s.tasks = make([]domain.Task, 0, len(tasks))
	s.index = make(map[string]int, len(tasks))
	s.pendingDone = make(map[string]struct{})
	for _, t := range tasks {
		if _, dup := s.index[t.ID]; dup {
			continue
		}
		s.index[t.ID] = len(s.tasks)
		s.tasks = append(s.tasks, t.Clone())
	}
	s.mu.Unlock()
	s.broker.notify()
}

// InsertOrAppend appends t unless a task with the same id is already present.
// It reports whether the task was added.
func (s *Store) InsertOrAppend(t domain.Task) bool {
	s.mu.Lock()
	if _, ok := s.index[t.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.appendLocked(t)
	s.mu.Unlock()
	s.broker.notify()
	return true
}

// ApplyPartial merges patch into the task with the given id. Unknown ids are
// ignored; the task may have been deleted concurrently.
func (s *Store) ApplyPartial(id string, patch domain.TaskPatch) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	changed := patch.ApplyTo(&s.tasks[i])
	s.mu.Unlock()
	if changed {
		s.broker.notify()
	}
	return changed
}

// MarkCompleted sets the task's status to completed. When the id is unknown
// the completion is remembered until the next ReplaceAll and applied if
// InsertOrAppend adds the task first.
func (s *Store) MarkCompleted(id string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.pendingDone[id] = struct{}{}
		s.mu.Unlock()
		return false
	}
	if s.tasks[i].Status == domain.StatusCompleted {
		s.mu.Unlock()
		return false
	}
	s.tasks[i].Status = domain.StatusCompleted
	s.mu.Unlock()
	s.broker.notify()
	return true
}

// Remove deletes the task with the given id if present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	delete(s.pendingDone, id)
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.tasks); j++ {
		s.index[s.tasks[j].ID] = j
	}
	s.mu.Unlock()
	s.broker.notify()
	return true
}

// Snapshot returns a copy of the tasks in store order.
func (s *Store) Snapshot() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

func (s *Store) Get(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Watch returns a channel that receives a signal after every change. Signals
// are coalesced: a slow reader sees at most one pending signal. Call the
// returned func to stop watching.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := s.broker.subscribe()
	return ch, func() { s.broker.unsubscribe(ch) }
}

func (s *Store) appendLocked(t domain.Task) {
	t = t.Clone()
	if _, ok := s.pendingDone[t.ID]; ok {
		t.Status = domain.StatusCompleted
		delete(s.pendingDone, t.ID)
	}
	s.index[t.ID] = len(s.tasks)
	s.tasks = append(s.tasks, t)
}
