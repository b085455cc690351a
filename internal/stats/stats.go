package stats

import (
	"sync"

	"github.com/google/uuid"

	"github.com/NamanBalaji/fetchq/internal/registry"
	"github.com/NamanBalaji/fetchq/internal/task"
)

// Listener receives the freshly derived stats after every registry change.
type Listener func(task.Stats)

// Aggregator is a pure derived view over the task set, recomputed on each
// registry change event. It keeps its own snapshot map so recomputation
// never reads back into the registry from inside an event callback.
type Aggregator struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]task.Task
	subs    map[int]Listener
	nextSub int
}

func New() *Aggregator {
	return &Aggregator{
		tasks: make(map[uuid.UUID]task.Task),
		subs:  make(map[int]Listener),
	}
}

// Seed primes the snapshot map with the tasks loaded at startup.
func (a *Aggregator) Seed(tasks []task.Task) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range tasks {
		a.tasks[t.ID] = t
	}
}

// HandleEvent is wired as a registry subscriber.
func (a *Aggregator) HandleEvent(evt registry.Event) {
	a.mu.Lock()

	if evt.Removed {
		delete(a.tasks, evt.ID)
	} else {
		a.tasks[evt.ID] = evt.Task
	}

	derived := a.compute()
	listeners := make([]Listener, 0, len(a.subs))
	for _, l := range a.subs {
		listeners = append(listeners, l)
	}

	a.mu.Unlock()

	for _, l := range listeners {
		l(derived)
	}
}

// Stats returns the current aggregate view.
func (a *Aggregator) Stats() task.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.compute()
}

// Subscribe registers a stats listener and returns its handle.
func (a *Aggregator) Subscribe(l Listener) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextSub++
	a.subs[a.nextSub] = l

	return a.nextSub
}

// Unsubscribe stops delivery; unknown handles are ignored.
func (a *Aggregator) Unsubscribe(handle int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.subs, handle)
}

// compute derives the aggregate. Caller must hold a.mu.
func (a *Aggregator) compute() task.Stats {
	var s task.Stats

	var progressSum float64

	for _, t := range a.tasks {
		switch t.Status {
		case task.StatusPending:
			s.Pending++
		case task.StatusDownloading:
			s.Downloading++
			s.TotalSpeed += t.Speed
			progressSum += t.Progress
		case task.StatusPaused:
			s.Paused++
		case task.StatusCompleted:
			s.Completed++
		case task.StatusFailed:
			s.Failed++
		case task.StatusCancelled:
			s.Cancelled++
		}

		s.TotalSize += t.TotalSize
		s.DownloadedSize += t.Downloaded
	}

	if s.Downloading > 0 {
		s.TotalProgress = progressSum / float64(s.Downloading)
	}

	return s
}
