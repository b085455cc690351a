package store_test

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/NamanBalaji/fetchq/internal/errors"
	"github.com/NamanBalaji/fetchq/internal/store"
	"github.com/NamanBalaji/fetchq/internal/task"
)

func newStore(t *testing.T) *store.BboltStore {
	t.Helper()

	s, err := store.NewBboltStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func sample(url string) task.Task {
	t := task.New(task.Request{URL: url, Filename: "f.bin"}, "/tmp/f.bin")
	return *t
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)

	tk := sample("http://example.com/a")
	tk.Downloaded = 1024
	tk.TotalSize = 4096
	tk.Metadata = map[string]string{"origin": "test"}

	if err := s.Save(tk); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := s.Load(tk.ID)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if got.URL != tk.URL || got.Downloaded != tk.Downloaded || got.TotalSize != tk.TotalSize {
		t.Errorf("loaded task differs: %+v", got)
	}
	if got.Metadata["origin"] != "test" {
		t.Errorf("metadata lost on round trip: %+v", got.Metadata)
	}
}

func TestLoadUnknownID(t *testing.T) {
	s := newStore(t)

	if _, err := s.Load(uuid.New()); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := newStore(t)

	tk := sample("http://example.com/a")
	if err := s.Save(tk); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if err := s.Remove(tk.ID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := s.Load(tk.ID); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("task still present after remove: %v", err)
	}
	if err := s.Remove(tk.ID); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on double remove, got %v", err)
	}
}

func TestSaveAllSingleTransaction(t *testing.T) {
	s := newStore(t)

	tasks := []task.Task{
		sample("http://example.com/a"),
		sample("http://example.com/b"),
		sample("http://example.com/c"),
	}

	if err := s.SaveAll(tasks); err != nil {
		t.Fatalf("SaveAll error: %v", err)
	}

	loaded, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(loaded))
	}
}

func TestLoadAllRehydratesDownloadingAsPaused(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")

	s, err := store.NewBboltStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	active := sample("http://example.com/active")
	active.Status = task.StatusDownloading
	active.Downloaded = 512
	active.Speed = 9999

	done := sample("http://example.com/done")
	done.Status = task.StatusCompleted

	if err := s.SaveAll([]task.Task{active, done}); err != nil {
		t.Fatalf("SaveAll error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Reopen as a fresh process would.
	s, err = store.NewBboltStore(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}

	byID := make(map[uuid.UUID]task.Task, len(loaded))
	for _, tk := range loaded {
		byID[tk.ID] = tk
	}

	got, ok := byID[active.ID]
	if !ok {
		t.Fatal("active task missing after reload")
	}
	if got.Status != task.StatusPaused {
		t.Errorf("expected Downloading to rehydrate as Paused, got %s", got.Status)
	}
	if got.PauseReason != task.PauseShutdown {
		t.Errorf("expected shutdown pause reason, got %q", got.PauseReason)
	}
	if got.Speed != 0 {
		t.Errorf("expected speed reset on reload, got %d", got.Speed)
	}
	if got.Downloaded != 512 {
		t.Errorf("cursor lost on reload: %d", got.Downloaded)
	}

	if byID[done.ID].Status != task.StatusCompleted {
		t.Errorf("completed task should reload unchanged, got %s", byID[done.ID].Status)
	}
}

func TestClosedStoreReportsPersistenceErrors(t *testing.T) {
	s, err := store.NewBboltStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if err := s.Save(sample("http://example.com/a")); errors.GetCategory(err) != errors.CategoryPersistence {
		t.Errorf("expected a persistence error from a closed store, got %v", err)
	}
	if err := s.SaveAll([]task.Task{sample("http://example.com/b")}); errors.GetCategory(err) != errors.CategoryPersistence {
		t.Errorf("expected a persistence error from bulk save, got %v", err)
	}
	if _, err := s.LoadAll(); errors.GetCategory(err) != errors.CategoryPersistence {
		t.Errorf("expected a persistence error from load, got %v", err)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	s := newStore(t)

	tk := sample("http://example.com/a")
	if err := s.Save(tk); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	tk.Downloaded = 2048
	tk.Status = task.StatusPaused
	if err := s.Save(tk); err != nil {
		t.Fatalf("second Save error: %v", err)
	}

	got, err := s.Load(tk.ID)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got.Downloaded != 2048 || got.Status != task.StatusPaused {
		t.Errorf("save did not overwrite: %+v", got)
	}
}
