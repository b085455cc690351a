package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

type Category string

const (
	CategoryValidation  Category = "VALIDATION"  // Bad submission input
	CategoryTransfer    Category = "TRANSFER"    // Network/IO failure mid-download
	CategoryPersistence Category = "PERSISTENCE" // Store read/write failure
	CategoryState       Category = "STATE"       // Command against an incompatible state
	CategoryContext     Category = "CONTEXT"     // Context cancellation
	CategoryUnknown     Category = "UNKNOWN"     // Unclassified errors
)

// TaskError represents an error that occurred while orchestrating a task
type TaskError struct {
	Err        error    // Original error
	Category   Category // General category
	Retryable  bool     // Whether retry is recommended
	Timestamp  time.Time
	Resource   string // What resource was being accessed
	StatusCode int    // HTTP status code, if any
}

// Error implements the error interface
func (e *TaskError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status: %d): %v", e.Category, e.Resource, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *TaskError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrTaskNotFound     = New("task not found")
	ErrInvalidURL       = New("invalid URL")
	ErrInvalidFilename  = New("invalid filename")
	ErrTaskExists       = New("task already exists")
	ErrFileTooLarge     = New("file exceeds size limit")
	ErrBlockedExtension = New("file type not allowed")
	ErrEngineNotRunning = New("engine is not running")
)

// NewValidationError creates an error for a rejected submission
func NewValidationError(err error, resource string) *TaskError {
	return &TaskError{
		Err:       err,
		Category:  CategoryValidation,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewTransferError creates an error for a failed byte transfer
func NewTransferError(err error, resource string, retryable bool) *TaskError {
	return &TaskError{
		Err:       err,
		Category:  CategoryTransfer,
		Retryable: retryable,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewHTTPError creates a transfer error carrying an HTTP status code
func NewHTTPError(err error, resource string, statusCode int) *TaskError {
	retryable := false

	switch {
	case statusCode >= 500 && statusCode != 501:
		retryable = true
	case statusCode == 429:
		retryable = true
	}

	return &TaskError{
		Err:        err,
		Category:   CategoryTransfer,
		Retryable:  retryable,
		Timestamp:  time.Now(),
		Resource:   resource,
		StatusCode: statusCode,
	}
}

// NewPersistenceError creates an error for a store failure
func NewPersistenceError(err error, resource string) *TaskError {
	return &TaskError{
		Err:       err,
		Category:  CategoryPersistence,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewStateConflictError creates an error for a command issued against an incompatible state
func NewStateConflictError(err error, resource string) *TaskError {
	return &TaskError{
		Err:       err,
		Category:  CategoryState,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewContextError creates a context cancellation error
func NewContextError(err error, resource string) *TaskError {
	return &TaskError{
		Err:       err,
		Category:  CategoryContext,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// IsRetryable determines if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var taskErr *TaskError
	if As(err, &taskErr) {
		return taskErr.Retryable
	}

	return false
}

// IsValidation determines if the error rejected a submission
func IsValidation(err error) bool {
	var taskErr *TaskError
	return As(err, &taskErr) && taskErr.Category == CategoryValidation
}

// IsStateConflict determines if the error is a state conflict
func IsStateConflict(err error) bool {
	var taskErr *TaskError
	return As(err, &taskErr) && taskErr.Category == CategoryState
}

// GetCategory extracts the category from an error
func GetCategory(err error) Category {
	var taskErr *TaskError
	if As(err, &taskErr) {
		return taskErr.Category
	}

	return CategoryUnknown
}

// GetStatusCode extracts the status code from an error if available
func GetStatusCode(err error) (int, bool) {
	var taskErr *TaskError
	if As(err, &taskErr) && taskErr.StatusCode != 0 {
		return taskErr.StatusCode, true
	}

	return 0, false
}
