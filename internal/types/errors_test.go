package types

import (
	"errors"
	"testing"
)

func TestErrorCodeRetryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeMalformedEvent, false},
		{ErrCodeUnsupportedEventType, false},
		{ErrCodeValidationMissingSubscription, false},
		{ErrCodeValidationMissingCustomer, false},
		{ErrCodeValidationMissingEventType, false},
		{ErrCodeValidationMissingEmail, false},
		{ErrCodeConfigParameter, true},
		{ErrCodeConfigSecret, true},
		{ErrCodeLookupFailed, true},
		{ErrCodeCustomerNotFound, true},
		{ErrCodeCustomerUnresolved, true},
		{ErrCodeUpstreamRateLimited, true},
		{ErrCodeUpstreamUnavailable, true},
		{ErrCodeStorageOperation, true},
		{ErrCodeProcessing, true},
	}

	for _, tt := range tests {
		if got := tt.code.Retryable(); got != tt.want {
			t.Errorf("%s.Retryable() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestAppError_ErrorFormat(t *testing.T) {
	err := NewAppError(ErrCodeStorageOperation, "put failed", nil)
	want := "storage_operation_failed: put failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewAppError(ErrCodeLookupFailed, "lookup failed", inner)

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}

	var appErr *AppError
	if !errors.As(error(err), &appErr) {
		t.Fatal("expected errors.As to extract *AppError")
	}
	if appErr.Code != ErrCodeLookupFailed {
		t.Errorf("extracted code = %s, want %s", appErr.Code, ErrCodeLookupFailed)
	}
}

func TestAppError_WithDetails_DoesNotMutateOriginal(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeCustomerNotFound, "missing", nil,
		map[string]any{"customer_id": "cus_1"})

	derived := orig.WithDetails(map[string]any{"attempts": 5})

	if _, ok := orig.Details["attempts"]; ok {
		t.Error("original error details were mutated")
	}
	if derived.Details["customer_id"] != "cus_1" {
		t.Error("derived error lost original details")
	}
	if derived.Details["attempts"] != 5 {
		t.Error("derived error missing merged details")
	}
}
