package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Strob0t/RepairDesk/internal/domain/agent"
	"github.com/Strob0t/RepairDesk/internal/domain/notification"
)

// ListAgents handles GET /api/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Agents.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

type setAvailableRequest struct {
	Name          string   `json:"name"`
	ExpertiseTags []string `json:"expertiseTags"`
}

// SetAgentAvailable handles POST /api/agents/{id}/available
func (h *Handlers) SetAgentAvailable(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[setAvailableRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	a, err := h.Agents.SetAvailable(r.Context(), urlParam(r, "id"), agent.Info{
		Name:          req.Name,
		ExpertiseTags: req.ExpertiseTags,
	})
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateAgentStatus handles PUT /api/agents/{id}/status
func (h *Handlers) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[updateStatusRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.Status, "status") {
		return
	}
	a, err := h.Agents.UpdateStatus(r.Context(), urlParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type feedResponse struct {
	Notifications []notification.Notification `json:"notifications"`
	Unread        int                         `json:"unread"`
}

// ListNotifications handles GET /api/agents/{id}/notifications
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, unread, err := h.Dispatcher.Feed(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if list == nil {
		list = []notification.Notification{}
	}
	writeJSON(w, http.StatusOK, feedResponse{Notifications: list, Unread: unread})
}

// MarkNotificationRead handles POST /api/agents/{id}/notifications/{nid}/read
func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Dispatcher.MarkRead(r.Context(), urlParam(r, "id"), urlParam(r, "nid")); err != nil {
		writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lifecycleEventRequest struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
}

type lifecycleEventResponse struct {
	Outcome         notification.DeliveryOutcome `json:"outcome"`
	CustomerOutcome notification.DeliveryOutcome `json:"customerOutcome,omitempty"`
}

// PostLifecycleEvent handles POST /api/notifications/events
func (h *Handlers) PostLifecycleEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[lifecycleEventRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	req.Type = strings.TrimSpace(req.Type)
	if !requireField(w, req.Type, "type") {
		return
	}

	resp := lifecycleEventResponse{
		Outcome: h.Dispatcher.NotifyAgents(r.Context(), req.Type, req.Data),
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		resp.CustomerOutcome = h.Dispatcher.NotifyCustomer(r.Context(), email, req.Type, req.Data)
	}
	writeJSON(w, http.StatusAccepted, resp)
}
