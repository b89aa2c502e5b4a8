package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/RepairDesk/internal/port/broadcast"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubPublishEmptyRoom(t *testing.T) {
	hub := NewHub(nil)

	err := hub.Publish(context.Background(), "agents", "new_chat_request", map[string]string{"id": "n1"})
	if !errors.Is(err, broadcast.ErrNoSubscribers) {
		t.Fatalf("expected ErrNoSubscribers, got %v", err)
	}
}

func TestHubPublishMarshalError(t *testing.T) {
	hub := NewHub(nil)

	// A channel cannot be marshaled to JSON.
	if err := hub.Publish(context.Background(), "agents", "bad", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub(nil)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, rooms: map[string]struct{}{}})
}

// dial connects a client to the hub's handler and waits until the hub has
// registered wantConns connections.
func dial(t *testing.T, srv *httptest.Server, hub *Hub, query string, wantConns int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })

	waitFor(t, func() bool { return hub.ConnectionCount() == wantConns })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func readMessage(t *testing.T, c *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestHubRoomDelivery(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(httptestHandler(hub))
	defer srv.Close()

	agents := dial(t, srv, hub, "?room=agents&room=agent_a1", 1)
	customer := dial(t, srv, hub, "?room=customer_jane@example.com", 2)

	if got := hub.RoomSize("agents"); got != 1 {
		t.Fatalf("agents room size = %d", got)
	}

	if err := hub.Publish(context.Background(), "agent_a1", "chat_assigned", map[string]string{"sessionId": "s1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msg := readMessage(t, agents)
	if msg.Type != "chat_assigned" || msg.Room != "agent_a1" {
		t.Fatalf("unexpected message %+v", msg)
	}

	if err := hub.Publish(context.Background(), "customer_jane@example.com", "agent_assigned", AgentAssignedEvent{SessionID: "s1", AgentName: "Ana"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msg = readMessage(t, customer)
	var ev AgentAssignedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.AgentName != "Ana" {
		t.Fatalf("unexpected payload %+v", ev)
	}
}

func TestHubJoinAndLeaveMessages(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(httptestHandler(hub))
	defer srv.Close()

	c := dial(t, srv, hub, "", 1)
	ctx := context.Background()

	join, _ := json.Marshal(Message{Type: ControlJoin, Room: "agents"})
	if err := c.Write(ctx, websocket.MessageText, join); err != nil {
		t.Fatal(err)
	}
	if ack := readMessage(t, c); ack.Type != ControlJoined || ack.Room != "agents" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if hub.RoomSize("agents") != 1 {
		t.Fatal("expected connection in agents room")
	}

	leave, _ := json.Marshal(Message{Type: ControlLeave, Room: "agents"})
	if err := c.Write(ctx, websocket.MessageText, leave); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return hub.RoomSize("agents") == 0 })
}

func TestHubDisconnectLeavesRooms(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(httptestHandler(hub))
	defer srv.Close()

	c := dial(t, srv, hub, "?room=agents", 1)
	_ = c.Close(websocket.StatusNormalClosure, "bye")

	waitFor(t, func() bool { return hub.ConnectionCount() == 0 })
	if hub.RoomSize("agents") != 0 {
		t.Fatal("room should be empty after disconnect")
	}
}
