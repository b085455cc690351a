package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/NamanBalaji/fetchq/internal/errors"
	"github.com/NamanBalaji/fetchq/internal/registry"
	"github.com/NamanBalaji/fetchq/internal/task"
)

const (
	// partSuffix marks in-progress output; the file is renamed into place
	// only on completion so a crash never leaves a half file at the
	// destination path.
	partSuffix = ".part"

	copyBufferSize = 32 * 1024

	// progressInterval bounds how often progress mutations hit the registry.
	progressInterval = 200 * time.Millisecond
)

// Executor drives one task's byte transfer over HTTP and streams progress
// back into the registry. Pause and cancel arrive as context cancellation;
// the byte offset already written to the part file is the resumption cursor.
type Executor struct {
	client   *http.Client
	registry *registry.Registry

	// sizeLimit reads the live max-file-size policy; 0 means unlimited.
	sizeLimit func() int64
}

func New(reg *registry.Registry, sizeLimit func() int64) *Executor {
	if sizeLimit == nil {
		sizeLimit = func() int64 { return 0 }
	}

	return &Executor{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		registry:  reg,
		sizeLimit: sizeLimit,
	}
}

// Run performs the transfer for the task until completion, failure, or
// context cancellation. It mutates only the progress fields; status
// transitions stay with the engine. On success the part file has been
// renamed to the destination path.
func (e *Executor) Run(ctx context.Context, t task.Task) error {
	partPath := t.DestinationPath + partSuffix

	offset, err := e.validateCursor(partPath, t.Downloaded)
	if err != nil {
		return errors.NewTransferError(err, t.URL, false)
	}

	if offset != t.Downloaded {
		logger.WithFields(logger.Fields{"task": t.ID, "cursor": t.Downloaded, "on_disk": offset}).
			Warn("resumption cursor disagrees with part file, using file length")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return errors.NewTransferError(err, t.URL, false)
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewContextError(ctx.Err(), t.URL)
		}

		return errors.NewTransferError(err, t.URL, true)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// Server honored the cursor.
	case http.StatusOK:
		// Server ignored the Range header; start over from byte zero.
		offset = 0
	default:
		return errors.NewHTTPError(fmt.Errorf("unexpected status %s", resp.Status), t.URL, resp.StatusCode)
	}

	totalSize := int64(0)
	if resp.ContentLength >= 0 {
		totalSize = offset + resp.ContentLength
	}

	if limit := e.sizeLimit(); limit > 0 && totalSize > limit {
		return errors.NewTransferError(
			fmt.Errorf("%w: %d bytes (limit %d)", errors.ErrFileTooLarge, totalSize, limit), t.URL, false)
	}

	file, err := e.openPartFile(partPath, offset)
	if err != nil {
		return errors.NewTransferError(err, partPath, false)
	}
	defer file.Close()

	downloaded, err := e.stream(ctx, t.ID, resp.Body, file, offset, totalSize)
	if err != nil {
		return err
	}

	if totalSize > 0 && downloaded != totalSize {
		return errors.NewTransferError(
			fmt.Errorf("stream ended at %d of %d bytes", downloaded, totalSize), t.URL, true)
	}

	if err := file.Close(); err != nil {
		return errors.NewTransferError(err, partPath, false)
	}

	if err := os.Rename(partPath, t.DestinationPath); err != nil {
		return errors.NewTransferError(err, t.DestinationPath, false)
	}

	return nil
}

// stream copies bytes and reports progress into the registry at a bounded
// rate. Returns the absolute number of bytes on disk when it stops.
func (e *Executor) stream(ctx context.Context, id uuid.UUID, body io.Reader, file *os.File, offset, totalSize int64) (int64, error) {
	speedCalc := NewSpeedCalculator(5)
	downloaded := offset
	lastReport := time.Time{}

	report := func() {
		patch := task.Patch{
			Downloaded: task.Int64Ptr(downloaded),
			Speed:      task.Int64Ptr(speedCalc.Speed()),
		}
		if totalSize > 0 {
			patch.TotalSize = task.Int64Ptr(totalSize)
		}

		if _, err := e.registry.Mutate(id, patch); err != nil {
			logger.WithField("task", id).Debugf("progress report dropped: %v", err)
		}
	}

	buf := make([]byte, copyBufferSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				report()
				return downloaded, errors.NewTransferError(writeErr, file.Name(), false)
			}

			downloaded += int64(n)
			speedCalc.AddBytes(int64(n))

			if time.Since(lastReport) >= progressInterval {
				report()
				lastReport = time.Now()
			}
		}

		if readErr != nil {
			report()

			if readErr == io.EOF {
				return downloaded, nil
			}
			if ctx.Err() != nil {
				return downloaded, errors.NewContextError(ctx.Err(), id.String())
			}

			return downloaded, errors.NewTransferError(readErr, id.String(), true)
		}
	}
}

// validateCursor reconciles the persisted cursor with the bytes actually on
// disk. A missing or shorter part file wins; a longer one is truncated back
// to the cursor so already-accounted bytes are never re-downloaded twice.
func (e *Executor) validateCursor(partPath string, cursor int64) (int64, error) {
	if cursor <= 0 {
		return 0, nil
	}

	info, err := os.Stat(partPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if info.Size() < cursor {
		return info.Size(), nil
	}
	if info.Size() > cursor {
		if err := os.Truncate(partPath, cursor); err != nil {
			return 0, err
		}
	}

	return cursor, nil
}

func (e *Executor) openPartFile(partPath string, offset int64) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(partPath), 0o755); err != nil {
		return nil, err
	}

	if offset == 0 {
		return os.Create(partPath)
	}

	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	return file, nil
}

// DiscardPartial removes any partial output for the task. Used on cancel and
// on explicit retry, which restarts from byte zero.
func (e *Executor) DiscardPartial(t task.Task) {
	for _, path := range []string{t.DestinationPath + partSuffix, t.DestinationPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.WithField("task", t.ID).Warnf("failed to remove %s: %v", path, err)
		}
	}
}
