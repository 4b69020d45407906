package protocol

import "context"

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID returns a context carrying the id of the run a handler executes in.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run id set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)

	return runID
}
