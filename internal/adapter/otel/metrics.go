package otel

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "repairdesk"

// Metrics holds all RepairDesk metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ChatRequests        metric.Int64Counter
	AgentAssignments    metric.Int64Counter
	SessionsEnded       metric.Int64Counter
	Notifications       metric.Int64Counter
	UrgentSends         metric.Int64Counter
	RequestAgentLatency metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ChatRequests, err = meter.Int64Counter("repairdesk.chat.requests",
		metric.WithDescription("Customer requests for a human agent"))
	if err != nil {
		return nil, err
	}

	m.AgentAssignments, err = meter.Int64Counter("repairdesk.chat.assignments",
		metric.WithDescription("Chats assigned to an agent, by source (auto or queue)"))
	if err != nil {
		return nil, err
	}

	m.SessionsEnded, err = meter.Int64Counter("repairdesk.chat.sessions_ended",
		metric.WithDescription("Chat sessions ended"))
	if err != nil {
		return nil, err
	}

	m.Notifications, err = meter.Int64Counter("repairdesk.notifications.dispatched",
		metric.WithDescription("Notification dispatches by kind and delivery outcome"))
	if err != nil {
		return nil, err
	}

	m.UrgentSends, err = meter.Int64Counter("repairdesk.notifications.urgent",
		metric.WithDescription("Urgent-channel sends by notifier and result"))
	if err != nil {
		return nil, err
	}

	m.RequestAgentLatency, err = meter.Float64Histogram("repairdesk.chat.request_agent.duration_seconds",
		metric.WithDescription("Time to handle a request for a human agent"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordChatRequest counts one request-agent call and its latency.
func (m *Metrics) RecordChatRequest(ctx context.Context, assigned bool, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("assigned", strconv.FormatBool(assigned)))
	m.ChatRequests.Add(ctx, 1, attrs)
	m.RequestAgentLatency.Record(ctx, seconds, attrs)
}

// RecordAssignment counts one chat handed to an agent.
func (m *Metrics) RecordAssignment(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.AgentAssignments.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordSessionEnded counts one ended session.
func (m *Metrics) RecordSessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsEnded.Add(ctx, 1)
}

// RecordNotification counts one dispatch with its outcome.
func (m *Metrics) RecordNotification(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordUrgentSend counts one urgent-channel send.
func (m *Metrics) RecordUrgentSend(ctx context.Context, notifier string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.UrgentSends.Add(ctx, 1, metric.WithAttributes(
		attribute.String("notifier", notifier),
		attribute.String("result", result),
	))
}
