package logging

import (
	"context"
	"log/slog"
	"strconv"

	"conveyor/internal/services"
)

// ContextFields extracts standardized slog attributes from the provided
// context so call sites annotated via the services context helpers get
// consistent item/agent/segment fields without restating them.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	attrs := make([]Attr, 0, 3)
	if id, ok := services.ItemIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldItemID, strconv.FormatInt(id, 10)))
	}
	if agent, ok := services.AgentIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldAgentID, agent))
	}
	if segment, ok := services.SegmentFromContext(ctx); ok {
		attrs = append(attrs, String(FieldSegment, segment))
	}
	return attrs
}

// WithContext returns a logger pre-populated with the context's standard fields.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
