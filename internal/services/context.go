package services

import "context"

type contextKey string

const (
	itemIDKey  contextKey = "item_id"
	agentKey   contextKey = "agent_id"
	segmentKey contextKey = "segment"
)

// WithItemID annotates context with the queue item identifier.
func WithItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the queue item identifier if present.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	switch val := ctx.Value(itemIDKey).(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithAgentID annotates context with the acting agent identifier.
func WithAgentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, agentKey, id)
}

// AgentIDFromContext returns the acting agent identifier if present.
func AgentIDFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(agentKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithSegment annotates context with the pipeline segment name.
func WithSegment(ctx context.Context, segment string) context.Context {
	if segment == "" {
		return ctx
	}
	return context.WithValue(ctx, segmentKey, segment)
}

// SegmentFromContext returns the pipeline segment name if present.
func SegmentFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(segmentKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}
