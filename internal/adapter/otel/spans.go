package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "repairdesk"

// StartRequestAgentSpan starts a span for one customer request for a human agent.
func StartRequestAgentSpan(ctx context.Context, sessionID, deviceType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "chat.request_agent",
		trace.WithAttributes(
			attribute.String("chat.session_id", sessionID),
			attribute.String("chat.device_type", deviceType),
		),
	)
}

// StartDispatchSpan starts a span for one notification dispatch.
func StartDispatchSpan(ctx context.Context, kind, room string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "notification.dispatch",
		trace.WithAttributes(
			attribute.String("notification.kind", kind),
			attribute.String("notification.room", room),
		),
	)
}

// StartUrgentSendSpan starts a span for an urgent-channel send.
func StartUrgentSendSpan(ctx context.Context, notifier, source string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "notification.urgent",
		trace.WithAttributes(
			attribute.String("notifier.name", notifier),
			attribute.String("notification.source", source),
		),
	)
}
