package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// WithLogger attaches logger to ctx. A nil logger attaches the default.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger attached to ctx, or the default.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*zerolog.Logger); ok && logger != nil {
			return logger
		}
	}
	return Default()
}

// WithField returns ctx whose logger carries key=value on every line.
func WithField(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, &logger)
}

// WithRun tags lines with the pipeline run id.
func WithRun(ctx context.Context, runID string) context.Context {
	return WithField(ctx, "run_id", runID)
}

// WithCategory tags lines with an item category.
func WithCategory(ctx context.Context, category string) context.Context {
	return WithField(ctx, "category", category)
}

// WithItem tags lines with an item id.
func WithItem(ctx context.Context, itemID string) context.Context {
	return WithField(ctx, "item", itemID)
}

// WithOperation tags lines with the pipeline operation name.
func WithOperation(ctx context.Context, op string) context.Context {
	return WithField(ctx, "operation", op)
}
