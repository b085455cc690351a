package task

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/fetchq/internal/errors"
)

// Task is the unit of work: one requested file download and its tracked state.
// The live transfer handle is owned by the engine and never serialized.
type Task struct {
	ID              uuid.UUID         `json:"id"`
	URL             string            `json:"url"`
	Filename        string            `json:"filename"`
	DestinationPath string            `json:"destination_path"`
	Priority        Priority          `json:"priority"`
	Metadata        map[string]string `json:"metadata,omitempty"`

	Status      Status      `json:"status"`
	PauseReason PauseReason `json:"pause_reason,omitempty"`

	TotalSize  int64   `json:"total_size"` // 0 means unknown
	Downloaded int64   `json:"downloaded"`
	Progress   float64 `json:"progress"`
	Speed      int64   `json:"speed"` // bytes/sec, only meaningful while downloading

	ErrorMessage string    `json:"error_message,omitempty"`
	RetryCount   int       `json:"retry_count"`
	LastRetryAt  time.Time `json:"last_retry_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Request carries the caller-supplied fields of a submission.
type Request struct {
	URL      string
	Filename string
	Dir      string
	Priority Priority
	Metadata map[string]string
}

// reserved characters that may not appear in a filename
const reservedFilenameChars = `/\:*?"<>|`

// Validate rejects malformed submissions before they enter the registry.
func (r *Request) Validate() error {
	if r.URL == "" {
		return errors.NewValidationError(errors.ErrInvalidURL, r.URL)
	}

	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.NewValidationError(errors.ErrInvalidURL, r.URL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewValidationError(fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidURL, u.Scheme), r.URL)
	}

	if r.Filename == "" || r.Filename == "." || r.Filename == ".." {
		return errors.NewValidationError(errors.ErrInvalidFilename, r.Filename)
	}

	if strings.ContainsAny(r.Filename, reservedFilenameChars) {
		return errors.NewValidationError(errors.ErrInvalidFilename, r.Filename)
	}

	return nil
}

// New allocates a pending task from a validated request.
func New(r Request, destinationPath string) *Task {
	now := time.Now()

	priority := r.Priority
	if priority == 0 {
		priority = PriorityNormal
	}

	return &Task{
		ID:              uuid.New(),
		URL:             r.URL,
		Filename:        r.Filename,
		DestinationPath: destinationPath,
		Priority:        priority,
		Metadata:        r.Metadata,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns an independent copy safe to hand to subscribers.
func (t *Task) Clone() Task {
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}

	return c
}

// Patch is a partial update applied through the registry's single-writer
// entry point. Nil fields are left untouched.
type Patch struct {
	Status       *Status
	PauseReason  *PauseReason
	TotalSize    *int64
	Downloaded   *int64
	Speed        *int64
	ErrorMessage *string
	RetryCount   *int
	LastRetryAt  *time.Time
	StartedAt    *time.Time
}

// Apply writes the non-nil patch fields onto the task and recomputes the
// derived progress fraction. UpdatedAt is bumped by the registry, not here.
func (t *Task) Apply(p Patch) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.PauseReason != nil {
		t.PauseReason = *p.PauseReason
	}
	if p.TotalSize != nil {
		t.TotalSize = *p.TotalSize
	}
	if p.Downloaded != nil {
		t.Downloaded = *p.Downloaded
	}
	if p.Speed != nil {
		t.Speed = *p.Speed
	}
	if p.ErrorMessage != nil {
		t.ErrorMessage = *p.ErrorMessage
	}
	if p.RetryCount != nil {
		t.RetryCount = *p.RetryCount
	}
	if p.LastRetryAt != nil {
		t.LastRetryAt = *p.LastRetryAt
	}
	if p.StartedAt != nil {
		t.StartedAt = *p.StartedAt
	}

	if t.TotalSize > 0 {
		t.Progress = float64(t.Downloaded) / float64(t.TotalSize)
	} else {
		t.Progress = 0
	}
	if t.Status == StatusCompleted {
		t.Progress = 1
	}
}

// Helpers for building patches without temporaries at call sites.

func StatusPtr(s Status) *Status           { return &s }
func ReasonPtr(r PauseReason) *PauseReason { return &r }
func Int64Ptr(v int64) *int64              { return &v }
func IntPtr(v int) *int                    { return &v }
func StringPtr(v string) *string           { return &v }
func TimePtr(v time.Time) *time.Time       { return &v }
