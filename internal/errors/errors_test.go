package errors

import (
	"fmt"
	"testing"
)

func TestBundlerError_Error(t *testing.T) {
	err := &BundlerError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "bundle not found",
	}

	expected := "NOT_FOUND: bundle not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("content_ids is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "content_ids is required" {
		t.Errorf("Message = %q, want %q", err.Message, "content_ids is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("bundle", "01ABC")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Message != "bundle not found: 01ABC" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["identifier"] != "01ABC" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01ABC")
	}
	if err.Details["kind"] != "bundle" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "bundle")
	}
}

func TestNewIdempotencyConflict(t *testing.T) {
	err := NewIdempotencyConflict("key-1", "01ATTEMPT")

	if err.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrConflict)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["attempt_id"] != "01ATTEMPT" {
		t.Errorf("Details[attempt_id] = %v", err.Details["attempt_id"])
	}
}

func TestNewUnmappedProcessingType(t *testing.T) {
	err := NewUnmappedProcessingType("blog_post")

	if err.Code != ErrUnmappedProcessingType {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnmappedProcessingType)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Details["processing_type"] != "blog_post" {
		t.Errorf("Details[processing_type] = %v", err.Details["processing_type"])
	}
}

func TestNewUpstreamUnavailable(t *testing.T) {
	err := NewUpstreamUnavailable("llm", fmt.Errorf("connection reset"))

	if err.Code != ErrUpstreamUnavailable {
		t.Errorf("Code = %q, want %q", err.Code, ErrUpstreamUnavailable)
	}
	if err.Status != 503 {
		t.Errorf("Status = %d, want 503", err.Status)
	}
	if err.Message != "llm unavailable: connection reset" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewCancelled(t *testing.T) {
	err := NewCancelled("process")

	if err.Code != ErrCancelled {
		t.Errorf("Code = %q, want %q", err.Code, ErrCancelled)
	}
	if err.Status != 499 {
		t.Errorf("Status = %d, want 499", err.Status)
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("disk full"))
	if err.Code != ErrInternal || err.Status != 500 {
		t.Errorf("got %q/%d, want INTERNAL/500", err.Code, err.Status)
	}
	if err.Message != "disk full" {
		t.Errorf("Message = %q, want %q", err.Message, "disk full")
	}

	err = NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("bundle", "x"), ErrNotFound, true},
		{"different code", NewNotFound("bundle", "x"), ErrConflict, false},
		{"wrapped", fmt.Errorf("content_ids[1]: %w", NewNotFound("content", "x")), ErrNotFound, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewConflict("dup"))
	bErr, ok := As(wrapped)
	if !ok {
		t.Fatal("As() did not find BundlerError")
	}
	if bErr.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", bErr.Code, ErrConflict)
	}

	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("As() found BundlerError in plain error")
	}
}

func TestMessage(t *testing.T) {
	base := NewNotFound("content", "x")
	if got := Message(base); got != "content not found: x" {
		t.Errorf("Message(base) = %q", got)
	}

	wrapped := fmt.Errorf("content_ids[1]: %w", base)
	if got := Message(wrapped); got != "content_ids[1]: content not found: x" {
		t.Errorf("Message(wrapped) = %q", got)
	}

	if got := Message(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("Message(plain) = %q", got)
	}
}
