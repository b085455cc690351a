package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/NamanBalaji/fetchq/internal/errors"
	"github.com/NamanBalaji/fetchq/internal/task"
)

// transfer is the opaque handle for one in-flight byte transfer. It exists
// only while the task is Downloading and exactly one per task id. Pause and
// cancel record their intent here before cancelling the context, so the
// transfer goroutine knows which terminal state was requested once the
// executor acknowledges the stop.
type transfer struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	intent task.Status
	reason task.PauseReason
}

func (tr *transfer) stop(intent task.Status, reason task.PauseReason) {
	tr.mu.Lock()
	tr.intent = intent
	tr.reason = reason
	tr.mu.Unlock()

	tr.cancel()
}

func (tr *transfer) stopIntent() (task.Status, task.PauseReason) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.intent, tr.reason
}

// startTask is the scheduler's StartFunc. It admits one task into
// Downloading; a non-nil return releases the slot immediately. Admission of
// a task that is no longer pending or paused is declined, which tolerates
// races with concurrent commands.
func (e *Engine) startTask(id uuid.UUID) error {
	t, err := e.registry.Get(id)
	if err != nil {
		return err
	}

	if t.Status != task.StatusPending && t.Status != task.StatusPaused {
		return errors.NewStateConflictError(errors.New("task not startable"), t.Status.String())
	}

	tctx, cancel := context.WithCancel(e.ctx)
	tr := &transfer{
		cancel: cancel,
		done:   make(chan struct{}),
		intent: task.StatusDownloading,
	}

	if _, loaded := e.transfers.LoadOrStore(id, tr); loaded {
		cancel()
		return errors.NewStateConflictError(errors.New("transfer already running"), id.String())
	}

	patch := task.Patch{
		Status:       task.StatusPtr(task.StatusDownloading),
		PauseReason:  task.ReasonPtr(task.PauseNone),
		ErrorMessage: task.StringPtr(""),
	}
	if t.StartedAt.IsZero() {
		patch.StartedAt = task.TimePtr(time.Now())
	}

	snapshot, err := e.registry.Mutate(id, patch)
	if err != nil {
		e.transfers.Delete(id)
		cancel()

		return err
	}

	e.runTask(func() {
		e.runTransfer(tctx, tr, snapshot)
	})

	return nil
}

// runTransfer drives one transfer to its end state and then frees the
// scheduler slot. The registry record is updated before the slot is
// released so the active set and task status never disagree for longer
// than a completion hand-off.
func (e *Engine) runTransfer(ctx context.Context, tr *transfer, t task.Task) {
	defer func() {
		e.transfers.Delete(t.ID)
		close(tr.done)
		e.sched.NotifyCompletion(t.ID)
	}()

	err := e.exec.Run(ctx, t)

	switch {
	case err == nil:
		e.finishTransfer(t)

	case errors.GetCategory(err) == errors.CategoryContext:
		e.stopTransfer(tr, t)

	default:
		e.failTransfer(t, err)
	}
}

func (e *Engine) finishTransfer(t task.Task) {
	_, err := e.registry.Mutate(t.ID, task.Patch{
		Status: task.StatusPtr(task.StatusCompleted),
		Speed:  task.Int64Ptr(0),
	})
	if err != nil {
		logger.WithField("task", t.ID).Warnf("failed to record completion: %v", err)
		return
	}

	logger.WithFields(logger.Fields{"task": t.ID, "file": t.Filename}).Info("download completed")
}

// stopTransfer handles a context-cancelled transfer according to the intent
// recorded on the handle. No intent means the engine itself is shutting
// down, which leaves the task paused with its cursor.
func (e *Engine) stopTransfer(tr *transfer, t task.Task) {
	intent, reason := tr.stopIntent()

	switch intent {
	case task.StatusCancelled:
		latest, err := e.registry.Get(t.ID)
		if err == nil {
			e.exec.DiscardPartial(latest)
		}

		if err := e.registry.Delete(t.ID); err != nil {
			logger.WithField("task", t.ID).Debugf("cancelled task already removed: %v", err)
		}

		logger.WithField("task", t.ID).Info("download cancelled")

	case task.StatusPaused:
		e.pauseRecord(t.ID, reason)

	default:
		e.pauseRecord(t.ID, task.PauseShutdown)
	}
}

func (e *Engine) pauseRecord(id uuid.UUID, reason task.PauseReason) {
	_, err := e.registry.Mutate(id, task.Patch{
		Status:      task.StatusPtr(task.StatusPaused),
		PauseReason: task.ReasonPtr(reason),
		Speed:       task.Int64Ptr(0),
	})
	if err != nil {
		logger.WithField("task", id).Warnf("failed to record pause: %v", err)
		return
	}

	logger.WithFields(logger.Fields{"task": id, "reason": reason}).Info("download paused")
}

// failTransfer records the failure and schedules an automatic retry while
// the error is retryable and attempts remain; beyond that the task stays
// failed awaiting explicit retry.
func (e *Engine) failTransfer(t task.Task, transferErr error) {
	snapshot, err := e.registry.Mutate(t.ID, task.Patch{
		Status:       task.StatusPtr(task.StatusFailed),
		ErrorMessage: task.StringPtr(transferErr.Error()),
		Speed:        task.Int64Ptr(0),
	})
	if err != nil {
		logger.WithField("task", t.ID).Warnf("failed to record failure: %v", err)
		return
	}

	fields := logger.Fields{"task": t.ID, "retries": snapshot.RetryCount}
	if code, ok := errors.GetStatusCode(transferErr); ok {
		fields["status_code"] = code
	}
	logger.WithFields(fields).Errorf("download failed: %v", transferErr)

	// A 404 or a policy rejection fails the same way every time; only
	// transient errors earn an automatic retry.
	if !errors.IsRetryable(transferErr) {
		return
	}

	attempts, delay := e.settings.RetryPolicy()
	if attempts <= 0 || snapshot.RetryCount >= attempts {
		return
	}

	backoff := calculateBackoff(snapshot.RetryCount, delay)
	logger.WithFields(logger.Fields{"task": t.ID, "backoff": backoff}).Debug("scheduling automatic retry")

	id := t.ID
	// retryTask rechecks engine state, so a timer firing after shutdown
	// is a harmless no-op.
	time.AfterFunc(backoff, func() {
		if err := e.retryTask(id, true); err != nil {
			logger.WithField("task", id).Debugf("automatic retry skipped: %v", err)
		}
	})
}

// retryTask re-queues a failed task as pending. Progress restarts from byte
// zero: the partial output is discarded and the cursor reset, while the
// retry count is preserved and incremented.
func (e *Engine) retryTask(id uuid.UUID, auto bool) error {
	if !e.Running() {
		return errors.ErrEngineNotRunning
	}

	t, err := e.registry.Get(id)
	if err != nil {
		return err
	}

	if t.Status != task.StatusFailed {
		return errors.NewStateConflictError(errors.New("task is not failed"), t.Status.String())
	}

	if auto {
		attempts, _ := e.settings.RetryPolicy()
		if t.RetryCount >= attempts {
			return errors.NewStateConflictError(errors.New("retry attempts exhausted"), id.String())
		}
	}

	e.exec.DiscardPartial(t)

	snapshot, err := e.registry.Mutate(id, task.Patch{
		Status:       task.StatusPtr(task.StatusPending),
		Downloaded:   task.Int64Ptr(0),
		Speed:        task.Int64Ptr(0),
		ErrorMessage: task.StringPtr(""),
		RetryCount:   task.IntPtr(t.RetryCount + 1),
		LastRetryAt:  task.TimePtr(time.Now()),
	})
	if err != nil {
		return err
	}

	e.sched.Enqueue(snapshot.ID, snapshot.Priority, snapshot.CreatedAt)

	return nil
}
