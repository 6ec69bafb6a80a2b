package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ErrorString(t *testing.T) {
	t.Parallel()

	err := NewPermissionError("microphone access denied", nil)
	if got, want := err.Error(), "permission_error: microphone access denied"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	withCode := &Error{Type: ErrAPI, Message: "bad response", Code: "502"}
	if got, want := withCode.Error(), "api_error: bad response (code: 502)"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestError_UnwrapAndTypeOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewConnectivityError("transcription channel failed", cause)
	wrapped := fmt.Errorf("start capture: %w", err)

	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected wrapped error to match cause")
	}
	if got := TypeOf(wrapped); got != ErrConnectivity {
		t.Fatalf("TypeOf = %q, want %q", got, ErrConnectivity)
	}
	if !IsConnectivity(wrapped) {
		t.Fatalf("IsConnectivity = false, want true")
	}
	if IsPermission(wrapped) {
		t.Fatalf("IsPermission = true, want false")
	}
}

func TestTypeOf_NonCoreError(t *testing.T) {
	t.Parallel()

	if got := TypeOf(errors.New("plain")); got != "" {
		t.Fatalf("TypeOf(plain) = %q, want empty", got)
	}
	if IsSubmission(nil) {
		t.Fatalf("IsSubmission(nil) = true, want false")
	}
}
