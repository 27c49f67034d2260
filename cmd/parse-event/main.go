// Package main is the entrypoint for the Parse Event Lambda function.
//
// Parse Event is the first state of the subscription event state machine. It
// receives the raw EventBridge envelope forwarded by the orchestrator,
// confirms it is a structured JSON object, and echoes it back unchanged so
// the following choice state can route on detail-type. Malformed input fails
// here, at the first step, instead of propagating into the routing logic.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Initialize the Normalizer.
//  3. Register handler and call lambda.Start.
//
// Per invocation:
//  1. Tag the context with a fresh invocation ID.
//  2. Normalize the raw payload (JSON object check, pass-through).
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"subsync/internal/pipeline"
	"subsync/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly, but With returns
// *slog.Logger rather than types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Handler holds the dependencies for the parse-event Lambda handler.
type Handler struct {
	normalizer *pipeline.Normalizer
	logger     types.Logger
}

// Handle validates the inbound envelope and returns it unchanged.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	ctx = types.WithInvocationID(ctx, uuid.NewString())
	return h.normalizer.Normalize(ctx, raw)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Parse Event Lambda initializing (cold start)")

	typedLogger := &slogAdapter{logger: logger}

	handler := &Handler{
		normalizer: pipeline.NewNormalizer(typedLogger),
		logger:     typedLogger,
	}

	lambda.Start(handler.Handle)
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)
