package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/NamanBalaji/fetchq/internal/task"
)

// StartFunc admits one task into Downloading. A non-nil return means the
// task never started and its slot is released immediately.
type StartFunc func(id uuid.UUID) error

type entry struct {
	id        uuid.UUID
	priority  task.Priority
	createdAt time.Time
}

// Scheduler decides which pending tasks run. It admits the highest-priority
// queued task (FIFO within a tier) whenever the number of active tasks is
// below the live concurrency cap.
type Scheduler struct {
	capacity func() int
	startFn  StartFunc

	mu     sync.Mutex
	queue  []entry
	active map[uuid.UUID]struct{}

	completionCh chan uuid.UUID
	kickCh       chan struct{}
	done         chan struct{}
	stopOnce     sync.Once

	ctx context.Context
}

// New creates a scheduler. capacity is read on every admission pass so
// settings changes take effect for the next decision.
func New(capacity func() int, startFn StartFunc) *Scheduler {
	return &Scheduler{
		capacity:     capacity,
		startFn:      startFn,
		active:       make(map[uuid.UUID]struct{}),
		completionCh: make(chan uuid.UUID, 64),
		kickCh:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Start begins processing completion and kick events.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	go s.loop()
}

// Stop stops the scheduler loop.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Scheduler) loop() {
	for {
		select {
		case id := <-s.completionCh:
			s.handleCompletion(id)
		case <-s.kickCh:
			s.mu.Lock()
			s.fillAvailableSlots()
			s.mu.Unlock()
		case <-s.ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Enqueue adds a task to the admission queue and runs an admission pass.
// Tasks already queued or active are ignored, so redundant calls are safe.
func (s *Scheduler) Enqueue(id uuid.UUID, priority task.Priority, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; ok {
		return
	}
	for _, e := range s.queue {
		if e.id == id {
			return
		}
	}

	s.queue = append(s.queue, entry{id: id, priority: priority, createdAt: createdAt})
	s.sortQueue()
	s.fillAvailableSlots()
}

// Dequeue drops a queued task without admitting it, e.g. when a pending
// task is cancelled. Active tasks are untouched.
func (s *Scheduler) Dequeue(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.queue {
		if e.id == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// NotifyCompletion informs the scheduler that a task left Downloading,
// freeing its slot for the next admission pass.
func (s *Scheduler) NotifyCompletion(id uuid.UUID) {
	select {
	case s.completionCh <- id:
	case <-s.done:
	}
}

// Kick requests an admission pass, e.g. after the concurrency cap was raised.
func (s *Scheduler) Kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

// ActiveCount returns the number of tasks holding a slot.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.active)
}

// IsActive reports whether the task currently holds a slot.
func (s *Scheduler) IsActive(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.active[id]

	return ok
}

func (s *Scheduler) handleCompletion(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, id)
	s.fillAvailableSlots()
}

// sortQueue orders by priority (higher first), FIFO within a tier.
func (s *Scheduler) sortQueue() {
	sort.SliceStable(s.queue, func(i, j int) bool {
		if s.queue[i].priority != s.queue[j].priority {
			return s.queue[i].priority > s.queue[j].priority
		}

		return s.queue[i].createdAt.Before(s.queue[j].createdAt)
	})
}

// fillAvailableSlots admits queued tasks while slots are available. Safe to
// call redundantly; a no-op when the queue is empty or the cap is saturated.
// Caller must hold s.mu.
func (s *Scheduler) fillAvailableSlots() {
	available := s.capacity() - len(s.active)
	if available <= 0 || len(s.queue) == 0 {
		return
	}

	toStart := min(available, len(s.queue))
	for i := 0; i < toStart; i++ {
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.active[e.id] = struct{}{}

		id := e.id
		go func() {
			if err := s.startFn(id); err != nil {
				logger.WithField("task", id).Debugf("admission declined: %v", err)
				s.NotifyCompletion(id)
			}
		}()
	}
}
