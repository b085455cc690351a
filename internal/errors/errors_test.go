package errors_test

import (
	stdErrors "errors"
	"testing"

	"github.com/NamanBalaji/fetchq/internal/errors"
)

func TestTaskErrorError(t *testing.T) {
	baseErr := stdErrors.New("underlying error")
	te := errors.NewTransferError(baseErr, "file.bin", true)

	expected := "[TRANSFER] file.bin: underlying error"
	if te.Error() != expected {
		t.Errorf("expected %q, got %q", expected, te.Error())
	}

	te2 := errors.NewHTTPError(stdErrors.New("server error"), "http://example.com", 500)
	expected2 := "[TRANSFER] http://example.com (status: 500): server error"
	if te2.Error() != expected2 {
		t.Errorf("expected %q, got %q", expected2, te2.Error())
	}
}

func TestTaskErrorUnwrap(t *testing.T) {
	te := errors.NewValidationError(errors.ErrInvalidURL, "not-a-url")

	if !errors.Is(te, errors.ErrInvalidURL) {
		t.Error("wrapped sentinel not reachable through Unwrap")
	}
	if !errors.IsValidation(te) {
		t.Error("expected a validation error")
	}
	if errors.IsRetryable(te) {
		t.Error("validation errors must not be retryable")
	}
}

func TestConstructorCategories(t *testing.T) {
	base := stdErrors.New("cause")

	tests := []struct {
		name      string
		err       error
		category  errors.Category
		retryable bool
	}{
		{"validation", errors.NewValidationError(base, "r"), errors.CategoryValidation, false},
		{"transfer retryable", errors.NewTransferError(base, "r", true), errors.CategoryTransfer, true},
		{"transfer permanent", errors.NewTransferError(base, "r", false), errors.CategoryTransfer, false},
		{"persistence", errors.NewPersistenceError(base, "r"), errors.CategoryPersistence, false},
		{"state conflict", errors.NewStateConflictError(base, "r"), errors.CategoryState, false},
		{"context", errors.NewContextError(base, "r"), errors.CategoryContext, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.GetCategory(tt.err); got != tt.category {
				t.Errorf("category = %s, want %s", got, tt.category)
			}
			if got := errors.IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("retryable = %v, want %v", got, tt.retryable)
			}
			if !errors.Is(tt.err, base) {
				t.Error("cause not reachable through Unwrap")
			}
		})
	}
}

func TestHTTPErrorRetryability(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{403, false},
		{404, false},
		{429, true},
		{500, true},
		{501, false},
		{502, true},
		{503, true},
	}

	for _, tt := range tests {
		err := errors.NewHTTPError(stdErrors.New("status"), "http://example.com", tt.status)

		if errors.IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, errors.IsRetryable(err), tt.retryable)
		}

		code, ok := errors.GetStatusCode(err)
		if !ok || code != tt.status {
			t.Errorf("status %d not recoverable from error, got %d (%v)", tt.status, code, ok)
		}
	}
}

func TestGetStatusCodeWithoutOne(t *testing.T) {
	if _, ok := errors.GetStatusCode(errors.NewTransferError(stdErrors.New("x"), "r", true)); ok {
		t.Error("expected no status code on a plain transfer error")
	}
	if _, ok := errors.GetStatusCode(stdErrors.New("plain")); ok {
		t.Error("expected no status code on a plain error")
	}
}

func TestHelpersOnPlainErrors(t *testing.T) {
	plain := stdErrors.New("plain")

	if errors.IsRetryable(plain) || errors.IsRetryable(nil) {
		t.Error("plain and nil errors are never retryable")
	}
	if errors.IsValidation(plain) || errors.IsStateConflict(plain) {
		t.Error("plain errors carry no category")
	}
	if got := errors.GetCategory(plain); got != errors.CategoryUnknown {
		t.Errorf("category = %s, want %s", got, errors.CategoryUnknown)
	}
}
