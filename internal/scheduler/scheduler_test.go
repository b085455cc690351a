package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/fetchq/internal/scheduler"
	"github.com/NamanBalaji/fetchq/internal/task"
)

// harness wires a scheduler to a startFn that blocks each admitted task
// until the test releases it.
type harness struct {
	sched   *scheduler.Scheduler
	startCh chan uuid.UUID

	mu       sync.Mutex
	releases map[uuid.UUID]chan struct{}
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()

	h := &harness{
		startCh:  make(chan uuid.UUID, 16),
		releases: make(map[uuid.UUID]chan struct{}),
	}

	h.sched = scheduler.New(func() int { return capacity }, func(id uuid.UUID) error {
		done := make(chan struct{})

		h.mu.Lock()
		h.releases[id] = done
		h.mu.Unlock()

		h.startCh <- id

		go func() {
			<-done
			h.sched.NotifyCompletion(id)
		}()

		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.sched.Start(ctx)

	t.Cleanup(func() {
		cancel()
		h.sched.Stop()
		h.releaseAll()
	})

	return h
}

func (h *harness) release(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.releases[id]; ok {
		close(ch)
		delete(h.releases, id)
	}
}

func (h *harness) releaseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.releases {
		close(ch)
		delete(h.releases, id)
	}
}

func (h *harness) expectStart(t *testing.T, want uuid.UUID) {
	t.Helper()

	select {
	case got := <-h.startCh:
		if got != want {
			t.Fatalf("expected %v to start, got %v", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("task %v did not start in time", want)
	}
}

func (h *harness) expectNoStart(t *testing.T) {
	t.Helper()

	select {
	case got := <-h.startCh:
		t.Fatalf("unexpected start of %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCapNeverExceeded(t *testing.T) {
	h := newHarness(t, 2)

	ids := make([]uuid.UUID, 5)
	base := time.Now()
	for i := range ids {
		ids[i] = uuid.New()
		h.sched.Enqueue(ids[i], task.PriorityNormal, base.Add(time.Duration(i)*time.Millisecond))
	}

	h.expectStart(t, ids[0])
	h.expectStart(t, ids[1])
	h.expectNoStart(t)

	if n := h.sched.ActiveCount(); n != 2 {
		t.Fatalf("expected 2 active, got %d", n)
	}

	// Completing one promotes the next task in submission order.
	h.release(ids[0])
	h.expectStart(t, ids[2])

	h.release(ids[1])
	h.expectStart(t, ids[3])

	h.release(ids[2])
	h.expectStart(t, ids[4])
}

func TestPriorityBeatsSubmissionOrder(t *testing.T) {
	h := newHarness(t, 1)

	blocker := uuid.New()
	h.sched.Enqueue(blocker, task.PriorityNormal, time.Now())
	h.expectStart(t, blocker)

	normal := uuid.New()
	high := uuid.New()
	h.sched.Enqueue(normal, task.PriorityNormal, time.Now())
	h.sched.Enqueue(high, task.PriorityHigh, time.Now().Add(time.Millisecond))

	h.expectNoStart(t)

	h.release(blocker)
	h.expectStart(t, high)

	h.release(high)
	h.expectStart(t, normal)
}

func TestFIFOWithinPriorityTier(t *testing.T) {
	h := newHarness(t, 1)

	blocker := uuid.New()
	h.sched.Enqueue(blocker, task.PriorityHigh, time.Now())
	h.expectStart(t, blocker)

	base := time.Now()
	first := uuid.New()
	second := uuid.New()
	// Enqueued out of creation order on purpose.
	h.sched.Enqueue(second, task.PriorityNormal, base.Add(time.Millisecond))
	h.sched.Enqueue(first, task.PriorityNormal, base)

	h.release(blocker)
	h.expectStart(t, first)

	h.release(first)
	h.expectStart(t, second)
}

func TestEnqueueIdempotent(t *testing.T) {
	h := newHarness(t, 2)

	id := uuid.New()
	created := time.Now()
	h.sched.Enqueue(id, task.PriorityNormal, created)
	h.expectStart(t, id)

	// Re-enqueueing an active task is a no-op.
	h.sched.Enqueue(id, task.PriorityNormal, created)
	h.expectNoStart(t)

	if n := h.sched.ActiveCount(); n != 1 {
		t.Fatalf("expected 1 active, got %d", n)
	}
}

func TestDequeueDropsQueuedTask(t *testing.T) {
	h := newHarness(t, 1)

	blocker := uuid.New()
	h.sched.Enqueue(blocker, task.PriorityNormal, time.Now())
	h.expectStart(t, blocker)

	dropped := uuid.New()
	survivor := uuid.New()
	h.sched.Enqueue(dropped, task.PriorityNormal, time.Now())
	h.sched.Enqueue(survivor, task.PriorityNormal, time.Now().Add(time.Millisecond))

	h.sched.Dequeue(dropped)

	h.release(blocker)
	h.expectStart(t, survivor)
}

func TestKickAfterCapacityRaise(t *testing.T) {
	capacity := 1

	var mu sync.Mutex
	capFn := func() int {
		mu.Lock()
		defer mu.Unlock()
		return capacity
	}

	startCh := make(chan uuid.UUID, 8)
	sched := scheduler.New(capFn, func(id uuid.UUID) error {
		startCh <- id
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	a := uuid.New()
	b := uuid.New()
	sched.Enqueue(a, task.PriorityNormal, time.Now())
	sched.Enqueue(b, task.PriorityNormal, time.Now().Add(time.Millisecond))

	select {
	case <-startCh:
	case <-time.After(time.Second):
		t.Fatal("first task did not start")
	}

	select {
	case got := <-startCh:
		t.Fatalf("unexpected start of %v before capacity raise", got)
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	capacity = 2
	mu.Unlock()
	sched.Kick()

	select {
	case got := <-startCh:
		if got != b {
			t.Fatalf("expected %v after kick, got %v", b, got)
		}
	case <-time.After(time.Second):
		t.Fatal("second task did not start after capacity raise")
	}
}

func TestStartFnErrorFreesSlot(t *testing.T) {
	var mu sync.Mutex
	declined := make(map[uuid.UUID]bool)

	startCh := make(chan uuid.UUID, 8)
	sched := scheduler.New(func() int { return 1 }, func(id uuid.UUID) error {
		mu.Lock()
		bad := declined[id]
		mu.Unlock()

		if bad {
			return context.Canceled
		}

		startCh <- id
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	bad := uuid.New()
	good := uuid.New()

	mu.Lock()
	declined[bad] = true
	mu.Unlock()

	sched.Enqueue(bad, task.PriorityHigh, time.Now())
	sched.Enqueue(good, task.PriorityNormal, time.Now().Add(time.Millisecond))

	select {
	case got := <-startCh:
		if got != good {
			t.Fatalf("expected %v to start after decline, got %v", good, got)
		}
	case <-time.After(time.Second):
		t.Fatal("slot was not freed after declined admission")
	}
}
