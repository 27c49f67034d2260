package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"subsync/internal/types"
)

func TestNormalize_PassesObjectThroughUnchanged(t *testing.T) {
	n := NewNormalizer(nil)

	raw := json.RawMessage(`{
		"detail-type": "customer.subscription.created",
		"source": "stripe.subscriptions",
		"detail": {"data": {"object": {"id": "sub_123"}}}
	}`)

	event, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event["detail-type"] != "customer.subscription.created" {
		t.Errorf("detail-type = %v", event["detail-type"])
	}
	if event["source"] != "stripe.subscriptions" {
		t.Errorf("source = %v", event["source"])
	}
	if _, ok := event["detail"]; !ok {
		t.Error("detail dropped from the passthrough")
	}
}

func TestNormalize_Malformed(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name string
		raw  string
	}{
		{"array", `[1, 2, 3]`},
		{"string", `"not an object"`},
		{"number", `42`},
		{"null", `null`},
		{"truncated", `{"detail-type":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), json.RawMessage(tt.raw))
			if err == nil {
				t.Fatal("expected error")
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T", err)
			}
			if appErr.Code != types.ErrCodeMalformedEvent {
				t.Errorf("code = %s, want %s", appErr.Code, types.ErrCodeMalformedEvent)
			}
			if appErr.Retryable() {
				t.Error("malformed events must not be retryable")
			}
		})
	}
}

func TestNormalize_EmptyObjectIsValid(t *testing.T) {
	// Shape validation only; content validation belongs to the upserter.
	n := NewNormalizer(nil)

	event, err := n.Normalize(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(event) != 0 {
		t.Errorf("expected empty map, got %v", event)
	}
}
