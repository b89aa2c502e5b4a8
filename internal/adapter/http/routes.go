package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteMiddleware holds optional middleware applied to route groups.
type RouteMiddleware struct {
	// RateLimit guards the public customer endpoints.
	RateLimit func(http.Handler) http.Handler
	// Idempotency replays repeated mutating requests.
	Idempotency func(http.Handler) http.Handler
}

func (m RouteMiddleware) public() []func(http.Handler) http.Handler {
	var mws []func(http.Handler) http.Handler
	if m.RateLimit != nil {
		mws = append(mws, m.RateLimit)
	}
	return mws
}

func (m RouteMiddleware) idempotent() []func(http.Handler) http.Handler {
	if m.Idempotency == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{m.Idempotency}
}

func (m RouteMiddleware) mutating() []func(http.Handler) http.Handler {
	return append(m.public(), m.idempotent()...)
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, mw RouteMiddleware) {
	r.Route("/api/chat", func(r chi.Router) {
		r.With(mw.mutating()...).Post("/request-agent", h.RequestAgent)
		r.With(mw.public()...).Get("/request-agent", h.RequestAgentStatus)
		r.With(mw.public()...).Get("/queue-position", h.QueuePosition)

		r.Get("/sessions/{id}/messages", h.SessionMessages)
		r.With(mw.idempotent()...).Post("/sessions/{id}/join", h.JoinSession)
		r.With(mw.idempotent()...).Post("/sessions/{id}/end", h.EndSession)
	})

	r.Route("/api/agents", func(r chi.Router) {
		r.Get("/", h.ListAgents)
		r.Post("/{id}/available", h.SetAgentAvailable)
		r.Put("/{id}/status", h.UpdateAgentStatus)

		r.Get("/{id}/notifications", h.ListNotifications)
		r.Post("/{id}/notifications/{nid}/read", h.MarkNotificationRead)
	})

	r.Route("/api/notifications", func(r chi.Router) {
		r.With(mw.idempotent()...).Post("/events", h.PostLifecycleEvent)
	})
}
