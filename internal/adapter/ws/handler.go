// Package ws implements the WebSocket adapter for real-time room delivery.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Strob0t/RepairDesk/internal/port/broadcast"
)

const (
	writeTimeout = 5 * time.Second
	maxRooms     = 16 // per connection
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// conn wraps a single WebSocket connection and the rooms it joined.
type conn struct {
	id     string
	ws     *websocket.Conn
	cancel context.CancelFunc
	rooms  map[string]struct{} // guarded by Hub.mu
}

// Hub tracks connections by room and implements broadcast.Publisher.
type Hub struct {
	mu             sync.RWMutex
	conns          map[*conn]struct{}
	rooms          map[string]map[*conn]struct{}
	originPatterns []string
}

var _ broadcast.Publisher = (*Hub)(nil)

// NewHub creates a hub. originPatterns restricts cross-origin upgrades
// (see websocket.AcceptOptions); an empty list allows same-origin only.
func NewHub(originPatterns []string) *Hub {
	return &Hub{
		conns:          make(map[*conn]struct{}),
		rooms:          make(map[string]map[*conn]struct{}),
		originPatterns: originPatterns,
	}
}

// HandleWS upgrades the request and joins every ?room= given in the query.
// Clients may join and leave rooms later by sending
// {"type":"join","room":"..."} or {"type":"leave","room":"..."}.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{id: uuid.NewString(), ws: ws, cancel: cancel, rooms: make(map[string]struct{})}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	for _, room := range r.URL.Query()["room"] {
		h.joinLocked(c, room)
	}
	h.mu.Unlock()

	slog.Info("websocket connected", "conn_id", c.id, "remote", r.RemoteAddr, "rooms", len(c.rooms))

	go h.readLoop(ctx, c)
}

func (h *Hub) readLoop(ctx context.Context, c *conn) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("websocket bad client message", "conn_id", c.id, "error", err)
			continue
		}
		switch msg.Type {
		case ControlJoin:
			ok := h.join(c, msg.Room)
			h.ack(ctx, c, msg.Room, ok)
		case ControlLeave:
			h.leave(c, msg.Room)
		}
	}
}

func (h *Hub) ack(ctx context.Context, c *conn, room string, ok bool) {
	typ := ControlJoined
	if !ok {
		typ = ControlRejected
	}
	data, _ := json.Marshal(Message{Type: typ, Room: room})
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = c.ws.Write(wctx, websocket.MessageText, data)
}

func (h *Hub) join(c *conn, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joinLocked(c, room)
}

func (h *Hub) joinLocked(c *conn, room string) bool {
	room = strings.TrimSpace(room)
	if room == "" {
		return false
	}
	if _, ok := h.conns[c]; !ok {
		return false
	}
	if _, already := c.rooms[room]; already {
		return true
	}
	if len(c.rooms) >= maxRooms {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

func (h *Hub) leave(c *conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, strings.TrimSpace(room))
}

func (h *Hub) leaveLocked(c *conn, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	delete(c.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish sends payload under eventName to every connection in room. It
// returns broadcast.ErrNoSubscribers when the room is empty and an error
// only if every write failed.
func (h *Hub) Publish(ctx context.Context, room, eventName string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Message{Type: eventName, Room: room, Payload: raw})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return broadcast.ErrNoSubscribers
	}

	var errs []error
	for _, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("websocket write failed", "conn_id", c.id, "room", room, "error", err)
			errs = append(errs, err)
			go h.remove(c)
		}
	}
	if len(errs) == len(targets) {
		return errors.Join(errs...)
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		h.remove(c)
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	c.cancel()
	delete(h.conns, c)
	slog.Info("websocket disconnected", "conn_id", c.id)
}
