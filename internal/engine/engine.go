package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/NamanBalaji/fetchq/internal/config"
	"github.com/NamanBalaji/fetchq/internal/errors"
	"github.com/NamanBalaji/fetchq/internal/executor"
	"github.com/NamanBalaji/fetchq/internal/netmon"
	"github.com/NamanBalaji/fetchq/internal/registry"
	"github.com/NamanBalaji/fetchq/internal/scheduler"
	"github.com/NamanBalaji/fetchq/internal/stats"
	"github.com/NamanBalaji/fetchq/internal/store"
	"github.com/NamanBalaji/fetchq/internal/task"
)

const (
	saveQueueSize     = 256
	shutdownTimeout   = 30 * time.Second
	periodicSaveEvery = 30 * time.Second
)

// Engine wires the registry, scheduler, executor, store, network monitor
// and stats aggregator into one constructed orchestrator instance. The store
// and monitor are injected so tests can substitute doubles.
type Engine struct {
	mu      sync.RWMutex
	running bool

	registry   *registry.Registry
	store      store.Store
	settings   *config.Settings
	sched      *scheduler.Scheduler
	exec       *executor.Executor
	monitor    *netmon.Monitor
	aggregator *stats.Aggregator

	transfers   sync.Map // uuid.UUID -> *transfer
	downloadDir string

	saveCh     chan persistOp
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

type persistOp struct {
	t      task.Task
	remove bool
}

// New creates an engine. A nil st opens the bbolt store under cfg.DataDir;
// a nil monitor probes cfg.ProbeAddress.
func New(cfg *config.Config, st store.Store, monitor *netmon.Monitor) (*Engine, error) {
	if cfg == nil {
		defaults := config.DefaultConfig()
		cfg = &defaults
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	if st == nil {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		var err error

		st, err = store.NewBboltStore(filepath.Join(cfg.DataDir, "fetchq.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	if monitor == nil {
		monitor = netmon.New(cfg.ProbeAddress, cfg.ProbeInterval)
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	e := &Engine{
		registry:    registry.New(),
		store:       st,
		settings:    config.NewSettings(*cfg),
		monitor:     monitor,
		aggregator:  stats.New(),
		downloadDir: cfg.DownloadDir,
		saveCh:      make(chan persistOp, saveQueueSize),
		ctx:         ctx,
		cancelFunc:  cancelFunc,
	}

	e.exec = executor.New(e.registry, e.sizeLimit)
	e.sched = scheduler.New(e.settings.MaxConcurrent, e.startTask)

	return e, nil
}

// runTask runs a function in a goroutine tracked by the WaitGroup.
func (e *Engine) runTask(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Init loads persisted tasks, starts the background loops and re-queues
// pending work. Idempotent while running.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	loaded, err := e.restoreTasks()
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}

	// Seed the aggregator directly and attach subscribers afterwards, so
	// reloading does not write every record straight back to the store.
	e.aggregator.Seed(loaded)
	e.registry.Subscribe(e.aggregator.HandleEvent)
	e.registry.Subscribe(e.enqueuePersist)

	e.sched.Start(e.ctx)
	e.runTask(e.runSaver)
	e.runTask(e.runPeriodicSave)

	e.monitor.OnChange(e.handleConnectivityChange)
	e.monitor.Start(e.ctx)

	for _, t := range loaded {
		if t.Status == task.StatusPending {
			e.sched.Enqueue(t.ID, t.Priority, t.CreatedAt)
		}
	}

	e.running = true
	logger.WithField("tasks", len(loaded)).Info("engine started")

	return nil
}

// restoreTasks repopulates the registry from the store. The store already
// rehydrates Downloading as Paused; here the cursor is re-validated against
// the bytes actually on disk, and completed tasks whose output file
// disappeared are flagged as failed.
func (e *Engine) restoreTasks() ([]task.Task, error) {
	loaded, err := e.store.LoadAll()
	if err != nil {
		return nil, err
	}

	restored := make([]task.Task, 0, len(loaded))

	for _, t := range loaded {
		switch t.Status {
		case task.StatusCompleted:
			if _, err := os.Stat(t.DestinationPath); os.IsNotExist(err) {
				t.Status = task.StatusFailed
				t.ErrorMessage = "output file missing"
			}
		case task.StatusPaused, task.StatusPending:
			t.Downloaded = reconcileCursor(t.DestinationPath+".part", t.Downloaded)
			if t.TotalSize > 0 {
				t.Progress = float64(t.Downloaded) / float64(t.TotalSize)
			}
			t.Speed = 0
		}

		record := t
		if err := e.registry.Add(&record); err != nil {
			logger.WithField("task", t.ID).Warnf("skipping duplicate persisted task: %v", err)
			continue
		}

		restored = append(restored, t)
	}

	return restored, nil
}

// reconcileCursor clamps the persisted cursor to the part file's length.
func reconcileCursor(partPath string, cursor int64) int64 {
	if cursor <= 0 {
		return 0
	}

	info, err := os.Stat(partPath)
	if err != nil {
		return 0
	}

	if info.Size() < cursor {
		return info.Size()
	}

	return cursor
}

// enqueuePersist is the registry subscriber that hands mutations to the
// saver goroutine. Ordering is preserved by the single channel and single
// consumer; a full queue is logged and skipped, and the periodic save and
// shutdown save pick up whatever was missed.
func (e *Engine) enqueuePersist(evt registry.Event) {
	select {
	case e.saveCh <- persistOp{t: evt.Task, remove: evt.Removed}:
	default:
		logger.WithField("task", evt.ID).Warn("save queue full, skipping persist")
	}
}

// runSaver applies persistence ops. Failures are logged and never roll back
// the in-memory mutation.
func (e *Engine) runSaver() {
	for {
		select {
		case op := <-e.saveCh:
			e.applyPersist(op)
		case <-e.ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case op := <-e.saveCh:
					e.applyPersist(op)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) applyPersist(op persistOp) {
	var err error
	if op.remove {
		err = e.store.Remove(op.t.ID)
		if errors.Is(err, errors.ErrTaskNotFound) {
			err = nil
		}
	} else {
		err = e.store.Save(op.t)
	}

	if err != nil {
		logger.WithField("task", op.t.ID).Warnf("persistence failed: %v", err)
	}
}

// runPeriodicSave snapshots all tasks on a ticker as a safety net under the
// per-mutation saves.
func (e *Engine) runPeriodicSave() {
	ticker := time.NewTicker(periodicSaveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.saveAll()
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) saveAll() {
	if err := e.store.SaveAll(e.registry.List(nil)); err != nil {
		logger.Warnf("bulk save failed: %v", err)
	}
}

// sizeLimit exposes the live max-file-size policy to the executor.
func (e *Engine) sizeLimit() int64 {
	return e.settings.Snapshot().MaxFileSize
}

// Shutdown gracefully stops the engine: in-flight transfers are cancelled
// and left paused with their cursors, then every task is persisted.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}

	logger.Info("engine shutting down")

	e.cancelFunc()
	e.sched.Stop()

	waitCh := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out waiting for transfers")
	}

	e.saveAll()

	if err := e.store.Close(); err != nil {
		logger.Errorf("failed to close store: %v", err)
	}

	e.running = false
	logger.Info("engine stopped")

	return nil
}

// Running reports whether Init has completed and Shutdown has not.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.running
}

// Get returns a snapshot of one task.
func (e *Engine) Get(id uuid.UUID) (task.Task, error) {
	return e.registry.Get(id)
}

// List returns a snapshot of all tasks ordered by creation time.
func (e *Engine) List() []task.Task {
	return e.registry.List(nil)
}
