package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Strob0t/RepairDesk/internal/domain"
	"github.com/Strob0t/RepairDesk/internal/domain/chat"
	"github.com/Strob0t/RepairDesk/internal/service"
)

const maxRequestBodySize = 64 << 10 // 64 KB

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Chats      *service.ChatService
	Agents     *service.AgentService
	Dispatcher *service.NotificationDispatcher
}

// RequestAgent handles POST /api/chat/request-agent
func (h *Handlers) RequestAgent(w http.ResponseWriter, r *http.Request) {
	in, ok := readJSON[chat.RequestAgentInput](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	res, err := h.Chats.RequestAgent(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeDomainError(w, err, "")
			return
		case errors.Is(err, domain.ErrConflict):
			writeError(w, http.StatusConflict, "Session belongs to another customer")
			return
		}
		slog.Error("request agent failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to request agent")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RequestAgentStatus handles GET /api/chat/request-agent?sessionId=
func (h *Handlers) RequestAgentStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if !requireField(w, sessionID, "sessionId") {
		return
	}
	v, err := h.Chats.SessionStatus(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type queuePositionResponse struct {
	SessionID string `json:"sessionId"`
	Position  int    `json:"position"`
}

// QueuePosition handles GET /api/chat/queue-position?sessionId=
func (h *Handlers) QueuePosition(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if !requireField(w, sessionID, "sessionId") {
		return
	}
	pos, err := h.Chats.QueuePosition(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, queuePositionResponse{SessionID: sessionID, Position: pos})
}

// SessionMessages handles GET /api/chat/sessions/{id}/messages
func (h *Handlers) SessionMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Chats.Messages(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// JoinSession handles POST /api/chat/sessions/{id}/join
func (h *Handlers) JoinSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[chat.JoinRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, strings.TrimSpace(req.AgentID), "agentId") {
		return
	}
	sess, err := h.Chats.JoinSession(r.Context(), urlParam(r, "id"), req.AgentID)
	if err != nil {
		writeDomainError(w, err, "Session or agent not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// EndSession handles POST /api/chat/sessions/{id}/end
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Chats.EndSession(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
