package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/fetchq/internal/errors"
	"github.com/NamanBalaji/fetchq/internal/task"
)

// Event is broadcast to subscribers on every mutation. Task is a snapshot
// taken at mutation time.
type Event struct {
	ID      uuid.UUID
	Task    task.Task
	Removed bool
}

type Subscriber func(Event)

// Registry is the sole owner of task records. All reads and writes funnel
// through it so the single-writer discipline holds: the scheduler and the
// executor request mutations here instead of holding task references.
//
// Events are delivered synchronously under the registry lock, in mutation
// order, and are never dropped. Subscribers must not call back into the
// registry from the callback.
type Registry struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*task.Task
	subs    map[int]Subscriber
	nextSub int
}

func New() *Registry {
	return &Registry{
		tasks: make(map[uuid.UUID]*task.Task),
		subs:  make(map[int]Subscriber),
	}
}

// Add inserts a freshly created task and broadcasts it.
func (r *Registry) Add(t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return errors.ErrTaskExists
	}

	r.tasks[t.ID] = t
	r.broadcast(Event{ID: t.ID, Task: t.Clone()})

	return nil
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id uuid.UUID) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return task.Task{}, errors.ErrTaskNotFound
	}

	return t.Clone(), nil
}

// Mutate applies a partial update, bumps UpdatedAt and broadcasts the new
// snapshot. This is the single-writer boundary for task state.
func (r *Registry) Mutate(id uuid.UUID, p task.Patch) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return task.Task{}, errors.ErrTaskNotFound
	}

	t.Apply(p)
	t.UpdatedAt = time.Now()

	snapshot := t.Clone()
	r.broadcast(Event{ID: id, Task: snapshot})

	return snapshot, nil
}

// Delete removes the record and broadcasts the removal with the final snapshot.
func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return errors.ErrTaskNotFound
	}

	delete(r.tasks, id)
	r.broadcast(Event{ID: id, Task: t.Clone(), Removed: true})

	return nil
}

// List returns a snapshot of tasks matching the filter (nil matches all),
// ordered by creation time. The result is detached from the live records,
// so callers can iterate while mutations continue.
func (r *Registry) List(filter func(task.Task) bool) []task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := make([]task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		snapshot := t.Clone()
		if filter == nil || filter(snapshot) {
			tasks = append(tasks, snapshot)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.tasks)
}

// Subscribe registers a change listener and returns its handle.
func (r *Registry) Subscribe(fn Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSub++
	r.subs[r.nextSub] = fn

	return r.nextSub
}

// Unsubscribe stops delivery; unknown handles are ignored.
func (r *Registry) Unsubscribe(handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, handle)
}

func (r *Registry) broadcast(evt Event) {
	for _, fn := range r.subs {
		fn(evt)
	}
}
