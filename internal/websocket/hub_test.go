package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/appointments/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// detachedClient has a send buffer but no connection.
func detachedClient(hub *Hub) *Client {
	return &Client{hub: hub, send: make(chan []byte, sendBufferSize)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	c1, c2 := detachedClient(hub), detachedClient(hub)

	hub.Register(c1)
	hub.Register(c2)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("clients = %d, want 2", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c1)
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("clients = %d, want 0", got)
	}
}

func TestPublish(t *testing.T) {
	hub := NewHub(testLogger())
	c1, c2 := detachedClient(hub), detachedClient(hub)
	hub.Register(c1)
	hub.Register(c2)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)

	hub.Publish(NewEvent("appointment", "created", "42", map[string]any{"title": "Checkup"}))

	for _, c := range []*Client{c1, c2} {
		ev := receive(t, c)
		if ev.Type != "appointment_created" || ev.ID != "42" {
			t.Errorf("event = %+v", ev)
		}
	}
}

func TestDeliverNotification(t *testing.T) {
	hub := NewHub(testLogger())
	c := detachedClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	at := time.Date(2025, 1, 1, 13, 55, 0, 0, time.UTC)
	err := hub.Deliver(context.Background(), notify.Notification{
		Kind: notify.KindReminder, ID: "1", Title: "Upcoming Appointment: Checkup", At: at,
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	ev := receive(t, c)
	if ev.Type != "notification_reminder" || ev.ID != "1" || !ev.At.Equal(at) {
		t.Errorf("event = %+v", ev)
	}
}

func TestPublishFullBuffer(t *testing.T) {
	hub := NewHub(testLogger())
	c := detachedClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < sendBufferSize+3; i++ {
		hub.Publish(NewEvent("appointment", "updated", "1", nil))
	}
	if got := hub.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(testLogger())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := detachedClient(hub)
			hub.Register(c)
			hub.Publish(NewEvent("appointment", "refreshed", "", nil))
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("clients = %d, want 0", got)
	}
}

func TestHandleWebSocket(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(HandleWebSocket(hub, []string{"*"}, testLogger()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for hub.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.Publish(NewEvent("appointment", "deleted", "7", nil))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != "appointment_deleted" || ev.ID != "7" {
		t.Errorf("event = %+v", ev)
	}
}
