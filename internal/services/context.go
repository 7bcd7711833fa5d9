package services

import "context"

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	batchKey    contextKey = "batch_index"
	stageKey    contextKey = "stage"
	specimenKey contextKey = "specimen_id"
)

// WithRunID annotates context with the composition run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the composition run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBatch annotates context with the 1-based output batch index.
func WithBatch(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, batchKey, index)
}

// BatchFromContext extracts the output batch index if present.
func BatchFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(batchKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithStage annotates context with the composer stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithSpecimen annotates context with the specimen currently being handled.
func WithSpecimen(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, specimenKey, id)
}

// SpecimenFromContext returns the specimen id if present.
func SpecimenFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(specimenKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
