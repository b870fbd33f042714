package operations

import (
	"context"
	"log/slog"
	"time"
)

// Structured logging helpers so operation and step lifecycle events carry
// consistent attributes.

func logOperationStart(ctx context.Context, logger *slog.Logger, operationID, operationType string, steps int) {
	logger.InfoContext(ctx, "operation started",
		slog.String("operation_id", operationID),
		slog.String("operation_type", operationType),
		slog.Int("steps", steps),
	)
}

func logOperationComplete(ctx context.Context, logger *slog.Logger, operationID string, duration time.Duration) {
	logger.InfoContext(ctx, "operation completed",
		slog.String("operation_id", operationID),
		slog.Duration("duration", duration),
	)
}

func logOperationError(ctx context.Context, logger *slog.Logger, operationID string, err error, duration time.Duration) {
	logger.ErrorContext(ctx, "operation failed",
		slog.String("operation_id", operationID),
		slog.String("error", err.Error()),
		slog.Duration("duration", duration),
	)
}

func logStepStart(ctx context.Context, logger *slog.Logger, operationID, stepID string, attempt int) {
	logger.InfoContext(ctx, "step started",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Int("attempt", attempt),
	)
}

func logStepComplete(ctx context.Context, logger *slog.Logger, operationID, stepID string, duration time.Duration) {
	logger.InfoContext(ctx, "step completed",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Duration("duration", duration),
	)
}

func logStepError(ctx context.Context, logger *slog.Logger, operationID, stepID string, err error, duration time.Duration) {
	logger.ErrorContext(ctx, "step failed",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.String("error", err.Error()),
		slog.Duration("duration", duration),
	)
}

func logStepSkipped(ctx context.Context, logger *slog.Logger, operationID, stepID, reason string) {
	logger.WarnContext(ctx, "step skipped",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.String("reason", reason),
	)
}

func logStepRetry(ctx context.Context, logger *slog.Logger, operationID, stepID string, attempt int, delay time.Duration, err error) {
	logger.WarnContext(ctx, "step retrying",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}
