// Package service contains application services.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cfotel "github.com/Strob0t/RepairDesk/internal/adapter/otel"
	"github.com/Strob0t/RepairDesk/internal/port/notifier"
	"github.com/Strob0t/RepairDesk/internal/resilience"
)

const defaultUrgentTimeout = 10 * time.Second

// NotificationService sends urgent notifications to every configured
// out-of-band notifier (email, Slack). Each notifier sits behind its own
// circuit breaker so a dead SMTP relay does not slow down the others.
type NotificationService struct {
	notifiers     []notifier.Notifier
	enabledEvents map[string]bool
	breakers      *resilience.Group
	timeout       time.Duration
	metrics       *cfotel.Metrics
	wg            sync.WaitGroup
}

// NewNotificationService creates a NotificationService with the given notifiers
// and list of enabled event types (e.g., "chat_request", "urgent_issue").
// If enabledEvents is nil or empty, all events are enabled. breakers and
// metrics may be nil.
func NewNotificationService(
	notifiers []notifier.Notifier,
	enabledEvents []string,
	breakers *resilience.Group,
	timeout time.Duration,
	metrics *cfotel.Metrics,
) *NotificationService {
	enabled := make(map[string]bool, len(enabledEvents))
	for _, e := range enabledEvents {
		enabled[e] = true
	}
	if timeout <= 0 {
		timeout = defaultUrgentTimeout
	}
	return &NotificationService{
		notifiers:     notifiers,
		enabledEvents: enabled,
		breakers:      breakers,
		timeout:       timeout,
		metrics:       metrics,
	}
}

// Enabled reports whether notifications from source would be sent.
func (s *NotificationService) Enabled(source string) bool {
	if len(s.notifiers) == 0 {
		return false
	}
	return len(s.enabledEvents) == 0 || s.enabledEvents[source]
}

// Notify sends a notification to all registered notifiers.
// Errors are logged but do not interrupt delivery to other notifiers.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) {
	if !s.Enabled(n.Source) {
		return
	}

	for _, provider := range s.notifiers {
		err := s.send(ctx, provider, n)
		s.metrics.RecordUrgentSend(ctx, provider.Name(), err == nil)
		if err != nil {
			slog.WarnContext(ctx, "notification send failed",
				"provider", provider.Name(),
				"title", n.Title,
				"error", err,
			)
			continue
		}
		slog.DebugContext(ctx, "notification sent", "provider", provider.Name(), "title", n.Title)
	}
}

// NotifyAsync runs Notify in the background, detached from the caller's
// cancellation and bounded by the configured timeout.
func (s *NotificationService) NotifyAsync(ctx context.Context, n notifier.Notification) {
	if !s.Enabled(n.Source) {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sendCtx, cancel := context.WithTimeout(bg, s.timeout)
		defer cancel()
		s.Notify(sendCtx, n)
	}()
}

// Wait blocks until every background send has finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) send(ctx context.Context, provider notifier.Notifier, n notifier.Notification) error {
	ctx, span := cfotel.StartUrgentSendSpan(ctx, provider.Name(), n.Source)
	defer span.End()

	if s.breakers == nil {
		return provider.Send(ctx, n)
	}
	return s.breakers.Get("notifier."+provider.Name()).Execute(ctx, func(ctx context.Context) error {
		return provider.Send(ctx, n)
	})
}

// NotifierCount returns the number of registered notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}
