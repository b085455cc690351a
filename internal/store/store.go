package store

import (
	"github.com/google/uuid"

	"github.com/NamanBalaji/fetchq/internal/task"
)

// Store is the durable persistence boundary for task records. The engine
// takes this interface so tests can inject doubles.
type Store interface {
	Save(t task.Task) error
	SaveAll(tasks []task.Task) error
	Load(id uuid.UUID) (task.Task, error)
	LoadAll() ([]task.Task, error)
	Remove(id uuid.UUID) error
	Close() error
}
