package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/NamanBalaji/fetchq/internal/errors"
	"github.com/NamanBalaji/fetchq/internal/task"
)

const (
	tasksBucket    = "tasks"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

// BboltStore persists task records keyed by id under a fixed bucket.
// Persistence is best-effort; the in-memory registry stays the source of
// truth for the running process.
type BboltStore struct {
	db *bbolt.DB
}

// NewBboltStore opens (or creates) the database at dbPath.
func NewBboltStore(dbPath string) (*BboltStore, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &BboltStore{db: db}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initialize sets up buckets and schema
func (s *BboltStore) initialize() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tasksBucket))
		if err != nil {
			return fmt.Errorf("failed to create tasks bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		if err := meta.Put([]byte("schema_version"), versionBytes); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists one task record.
func (s *BboltStore) Save(t task.Task) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		if err := bucket.Put([]byte(t.ID.String()), data); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}

		return nil
	})
	if err != nil {
		return errors.NewPersistenceError(err, t.ID.String())
	}

	return nil
}

// SaveAll persists every task in a single transaction.
func (s *BboltStore) SaveAll(tasks []task.Task) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		for _, t := range tasks {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("failed to marshal task %s: %w", t.ID, err)
			}

			if err := bucket.Put([]byte(t.ID.String()), data); err != nil {
				return fmt.Errorf("failed to save task %s: %w", t.ID, err)
			}
		}

		return nil
	})
	if err != nil {
		return errors.NewPersistenceError(err, tasksBucket)
	}

	return nil
}

// Load retrieves a task by ID.
func (s *BboltStore) Load(id uuid.UUID) (task.Task, error) {
	var t task.Task

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		data := bucket.Get([]byte(id.String()))
		if data == nil {
			return errors.ErrTaskNotFound
		}

		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}

		return nil
	})
	if errors.Is(err, errors.ErrTaskNotFound) {
		return task.Task{}, err
	}
	if err != nil {
		return task.Task{}, errors.NewPersistenceError(err, id.String())
	}

	return t, nil
}

// LoadAll retrieves every persisted task, used once at startup to repopulate
// the registry. Tasks persisted as Downloading are rehydrated as Paused: a
// live transfer handle cannot survive a restart, and the cursor still has to
// be re-validated against the destination file before any resume.
func (s *BboltStore) LoadAll() ([]task.Task, error) {
	var tasks []task.Task

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			var t task.Task

			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}

			if t.Status == task.StatusDownloading {
				t.Status = task.StatusPaused
				t.PauseReason = task.PauseShutdown
				t.Speed = 0
			}

			tasks = append(tasks, t)

			return nil
		})
	})
	if err != nil {
		return nil, errors.NewPersistenceError(err, tasksBucket)
	}

	return tasks, nil
}

// Remove deletes a task record. Removing an unknown id is an error so
// callers can tell an ineffective delete from a successful one.
func (s *BboltStore) Remove(id uuid.UUID) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		if bucket.Get([]byte(id.String())) == nil {
			return errors.ErrTaskNotFound
		}

		return bucket.Delete([]byte(id.String()))
	})
	if errors.Is(err, errors.ErrTaskNotFound) {
		return err
	}
	if err != nil {
		return errors.NewPersistenceError(err, id.String())
	}

	return nil
}

// Close closes the database.
func (s *BboltStore) Close() error {
	return s.db.Close()
}
