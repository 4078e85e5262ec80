package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context keys for run tracing.
// Using unexported struct pointers prevents key collisions.
var (
	runIDKey     = &struct{}{}
	jobKey       = &struct{}{}
	stageKey     = &struct{}{}
	startTimeKey = &struct{}{}
)

// WithRunID adds a run ID to the context
func WithRunID(parent context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(parent, runIDKey, runID)
}

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id
	}
	return "unknown-run"
}

// WithJob adds the job name to the context
func WithJob(parent context.Context, job string) context.Context {
	return context.WithValue(parent, jobKey, job)
}

// GetJob retrieves the job name from context
func GetJob(ctx context.Context) string {
	if job, ok := ctx.Value(jobKey).(string); ok && job != "" {
		return job
	}
	return "unknown-job"
}

// WithStage adds the currently executing stage name to the context
func WithStage(parent context.Context, stage string) context.Context {
	return context.WithValue(parent, stageKey, stage)
}

// GetStage retrieves the stage name from context
func GetStage(ctx context.Context) string {
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		return stage
	}
	return "unknown-stage"
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the operation start time from context
func GetStartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}

// GetDuration calculates the time elapsed since the start time in context.
// It returns zero when no start time was recorded.
func GetDuration(ctx context.Context) time.Duration {
	startTime, ok := GetStartTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(startTime)
}

// GenerateRunID creates a new unique run ID
func GenerateRunID() string {
	return "run_" + uuid.New().String()
}

// EnrichContext adds a run ID (if missing) and a start time to a context
func EnrichContext(parent context.Context) context.Context {
	ctx := parent

	if GetRunID(ctx) == "unknown-run" {
		ctx = WithRunID(ctx, GenerateRunID())
	}

	return WithStartTime(ctx, time.Now())
}

// TracingFields returns common tracing fields for structured logging
func TracingFields(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"run_id":      GetRunID(ctx),
		"job":         GetJob(ctx),
		"stage":       GetStage(ctx),
		"duration_ms": GetDuration(ctx).Milliseconds(),
	}
}
