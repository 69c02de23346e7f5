package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentfleet"

// StartAgentSpan starts a span for an operation on one agent.
// agentID 0 means the agent is not yet known (creation, listing).
func StartAgentSpan(ctx context.Context, op string, agentID int64) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if agentID != 0 {
		attrs = append(attrs, attribute.Int64("agent.id", agentID))
	}
	return otel.Tracer(tracerName).Start(ctx, "agent."+op, trace.WithAttributes(attrs...))
}

// StartTaskSpan starts a span for an operation on one task.
func StartTaskSpan(ctx context.Context, op string, taskID int64) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if taskID != 0 {
		attrs = append(attrs, attribute.Int64("task.id", taskID))
	}
	return otel.Tracer(tracerName).Start(ctx, "task."+op, trace.WithAttributes(attrs...))
}

// StartDashboardSpan starts a span for an overview computation.
func StartDashboardSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dashboard.overview")
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
