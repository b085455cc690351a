package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/fetchq/internal/config"
	"github.com/NamanBalaji/fetchq/internal/errors"
	"github.com/NamanBalaji/fetchq/internal/registry"
	"github.com/NamanBalaji/fetchq/internal/stats"
	"github.com/NamanBalaji/fetchq/internal/task"
)

// Add validates a submission, creates a pending task and queues it for
// admission. Validation failures surface synchronously; everything after
// admission is reported through the subscription channel.
func (e *Engine) Add(req task.Request) (uuid.UUID, error) {
	if !e.Running() {
		return uuid.Nil, errors.ErrEngineNotRunning
	}

	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}

	if err := e.checkPolicy(req.Filename); err != nil {
		return uuid.Nil, err
	}

	// Reject duplicates of tasks that are still in play.
	dup := e.registry.List(func(t task.Task) bool {
		return t.URL == req.URL && !t.Status.IsTerminal() && t.Status != task.StatusFailed
	})
	if len(dup) > 0 {
		return uuid.Nil, errors.ErrTaskExists
	}

	dir := req.Dir
	if dir == "" {
		dir = e.downloadDir
	}

	t := task.New(req, filepath.Join(dir, req.Filename))

	if err := e.registry.Add(t); err != nil {
		return uuid.Nil, err
	}

	logger.WithFields(logger.Fields{"task": t.ID, "url": t.URL}).Info("task submitted")

	e.sched.Enqueue(t.ID, t.Priority, t.CreatedAt)

	return t.ID, nil
}

// checkPolicy enforces the file-type policy from the live settings.
func (e *Engine) checkPolicy(filename string) error {
	cfg := e.settings.Snapshot()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, blocked := range cfg.BlockedExtensions {
		if ext == strings.TrimPrefix(strings.ToLower(blocked), ".") {
			return errors.NewValidationError(
				fmt.Errorf("%w: .%s", errors.ErrBlockedExtension, ext), filename)
		}
	}

	return nil
}

// Pause stops an in-flight transfer, preserving the cursor. Valid only from
// Downloading; anything else is a logged no-op so UI races stay harmless.
func (e *Engine) Pause(id uuid.UUID) error {
	if !e.Running() {
		return errors.ErrEngineNotRunning
	}

	t, err := e.registry.Get(id)
	if err != nil {
		return err
	}

	if t.Status != task.StatusDownloading {
		logger.WithFields(logger.Fields{"task": id, "status": t.Status}).Debug("pause ignored")
		return nil
	}

	e.stopActiveTransfer(id, task.StatusPaused, task.PauseUser)

	return nil
}

// Resume re-queues a paused task; the scheduler admits it under the cap and
// the transfer continues from the preserved cursor.
func (e *Engine) Resume(id uuid.UUID) error {
	if !e.Running() {
		return errors.ErrEngineNotRunning
	}

	t, err := e.registry.Get(id)
	if err != nil {
		return err
	}

	if t.Status != task.StatusPaused {
		logger.WithFields(logger.Fields{"task": id, "status": t.Status}).Debug("resume ignored")
		return nil
	}

	e.sched.Enqueue(t.ID, t.Priority, t.CreatedAt)

	return nil
}

// Cancel aborts the task from any non-terminal state, discards partial
// output and removes the record from the registry and the store. For an
// in-flight transfer the removal happens only after the executor
// acknowledges the abort, so nothing resurrects the record while I/O is
// still writing.
func (e *Engine) Cancel(id uuid.UUID) error {
	if !e.Running() {
		return errors.ErrEngineNotRunning
	}

	t, err := e.registry.Get(id)
	if err != nil {
		return err
	}

	switch t.Status {
	case task.StatusCompleted, task.StatusCancelled:
		logger.WithFields(logger.Fields{"task": id, "status": t.Status}).Debug("cancel ignored")
		return nil

	case task.StatusDownloading:
		e.stopActiveTransfer(id, task.StatusCancelled, task.PauseNone)
		return nil

	default:
		e.sched.Dequeue(id)
		e.exec.DiscardPartial(t)

		if err := e.registry.Delete(id); err != nil {
			return err
		}

		logger.WithField("task", id).Info("task cancelled")

		return nil
	}
}

// Retry explicitly re-queues a failed task, restarting from byte zero.
func (e *Engine) Retry(id uuid.UUID) error {
	err := e.retryTask(id, false)
	if errors.IsStateConflict(err) {
		logger.WithField("task", id).Debugf("retry ignored: %v", err)
		return nil
	}

	return err
}

// stopActiveTransfer records the stop intent on the live transfer handle,
// cancels its context and waits until the transfer goroutine has finished
// recording the end state. On return the registry already reflects the
// pause or removal. Missing handle means the transfer just ended on its
// own; the no-op is fine.
func (e *Engine) stopActiveTransfer(id uuid.UUID, intent task.Status, reason task.PauseReason) {
	v, ok := e.transfers.Load(id)
	if !ok {
		logger.WithField("task", id).Debug("no live transfer to stop")
		return
	}

	tr := v.(*transfer)
	tr.stop(intent, reason)
	<-tr.done
}

// handleConnectivityChange pauses every active transfer when the network
// drops and, if auto-resume is enabled, re-queues connectivity-paused tasks
// when it returns. Each task is handled independently; individual failures
// are logged, never escalated.
func (e *Engine) handleConnectivityChange(online bool) {
	if !e.Running() {
		return
	}

	var g errgroup.Group
	g.SetLimit(8)

	if !online {
		for _, t := range e.registry.List(func(t task.Task) bool { return t.Status == task.StatusDownloading }) {
			id := t.ID
			g.Go(func() error {
				e.stopActiveTransfer(id, task.StatusPaused, task.PauseConnectivity)
				return nil
			})
		}

		_ = g.Wait()

		return
	}

	if !e.settings.AutoResume() {
		return
	}

	// Only tasks paused by connectivity loss come back automatically;
	// user- and shutdown-paused tasks wait for an explicit resume.
	resumable := e.registry.List(func(t task.Task) bool {
		return t.Status == task.StatusPaused && t.PauseReason == task.PauseConnectivity
	})

	for _, t := range resumable {
		id := t.ID
		g.Go(func() error {
			if err := e.Resume(id); err != nil {
				logger.WithField("task", id).Warnf("auto-resume failed: %v", err)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// SubscribeTasks registers a callback invoked on every registry mutation,
// in mutation order. Callbacks run on the mutating goroutine and must not
// call back into the engine.
func (e *Engine) SubscribeTasks(fn registry.Subscriber) int {
	return e.registry.Subscribe(fn)
}

// UnsubscribeTasks stops delivery; idempotent.
func (e *Engine) UnsubscribeTasks(handle int) {
	e.registry.Unsubscribe(handle)
}

// SubscribeStats registers a callback receiving the derived stats after
// every registry mutation.
func (e *Engine) SubscribeStats(fn stats.Listener) int {
	return e.aggregator.Subscribe(fn)
}

// UnsubscribeStats stops delivery; idempotent.
func (e *Engine) UnsubscribeStats(handle int) {
	e.aggregator.Unsubscribe(handle)
}

// Stats returns the current aggregate view of the task set.
func (e *Engine) Stats() task.Stats {
	return e.aggregator.Stats()
}

// UpdateSettings applies a partial settings update to the live
// configuration. Raising the concurrency cap triggers an admission pass;
// in-flight transfers are never affected.
func (e *Engine) UpdateSettings(p config.Patch) {
	before := e.settings.MaxConcurrent()
	cfg := e.settings.Apply(p)

	if cfg.MaxConcurrentDownloads > before {
		e.sched.Kick()
	}

	logger.WithField("max_concurrent", cfg.MaxConcurrentDownloads).Debug("settings updated")
}
