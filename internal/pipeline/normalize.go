// Package pipeline contains the two pieces of procedural logic in the
// subscription event workflow: the event normalizer that fronts the state
// machine, and the upserter that resolves upstream snapshots and applies the
// derived subscriber record to storage. Everything else (routing, retries of
// whole invocations, timeouts) belongs to the external orchestrator.
package pipeline

import (
	"context"
	"encoding/json"

	"subsync/internal/types"
)

// Normalizer is the addressable entry point of the state machine. It passes
// the inbound envelope through unchanged, existing solely so that malformed
// input fails loudly at the first step instead of propagating corrupt data
// into the choice state. Pure and idempotent; its only side effect is
// logging.
type Normalizer struct {
	logger types.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger types.Logger) *Normalizer {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Normalizer{logger: logger}
}

// Normalize confirms the raw event is a structured mapping and returns it
// unchanged. Anything that does not decode as a JSON object fails with
// malformed_event.
func (n *Normalizer) Normalize(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		n.logger.Error("inbound event is not a structured mapping",
			"invocation_id", types.GetInvocationID(ctx),
			"error", err.Error(),
		)
		return nil, types.NewAppError(types.ErrCodeMalformedEvent,
			"inbound event is not a structured mapping", err)
	}
	if event == nil {
		n.logger.Error("inbound event is null",
			"invocation_id", types.GetInvocationID(ctx),
		)
		return nil, types.NewAppError(types.ErrCodeMalformedEvent,
			"inbound event is null", nil)
	}

	n.logger.Info("event normalized",
		"invocation_id", types.GetInvocationID(ctx),
		"detail_type", event["detail-type"],
	)
	return event, nil
}
