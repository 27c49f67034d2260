package types

import "context"

type contextKey string

const invocationIDKey contextKey = "invocation_id"

// WithInvocationID stores the invocation correlation ID in the context.
// Each Lambda handler generates one at entry so every log line and upstream
// request within the invocation can be correlated.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

// GetInvocationID retrieves the invocation correlation ID, or "" if unset.
func GetInvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey).(string)
	return id
}
