package dbinfra

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

// LogHook logs every statement bun executes.
type LogHook struct {
	logger *slog.Logger
}

func NewLogHook(logger *slog.Logger) *LogHook {
	return &LogHook{logger: logger}
}

func (h *LogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *LogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	attrs := []any{
		"operation", event.Operation(),
		"duration", time.Since(event.StartTime),
		"query", event.Query,
	}
	if event.Err != nil {
		attrs = append(attrs, "error", event.Err)
	}
	h.logger.DebugContext(ctx, "sql", attrs...)
}
