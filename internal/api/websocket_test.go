package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, f *fixture, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("event is not JSON: %q", data)
	}
	return ev
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketReloadEvent(t *testing.T) {
	f := newFixture(t, DefaultConfig(), true)

	conn, _, err := dial(t, f, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := readEvent(t, conn)
	if hello.Type != EventHello || hello.Intrinsics != 11 || hello.LoadID == "" {
		t.Errorf("hello = %+v", hello)
	}
	waitForClients(t, f.srv.hub, 1)

	info, err := f.store.Reload(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ev := readEvent(t, conn)
	if ev.Type != EventCatalogReloaded || ev.LoadID != info.LoadID || ev.Timestamp == "" {
		t.Errorf("reload event = %+v, want load %s", ev, info.LoadID)
	}

	conn.Close()
	waitForClients(t, f.srv.hub, 0)
}

func TestWebSocketHelloBeforeLoad(t *testing.T) {
	f := newFixture(t, DefaultConfig(), false)
	conn, _, err := dial(t, f, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if ev := readEvent(t, conn); ev.Type != EventHello || ev.LoadID != "" {
		t.Errorf("hello = %+v", ev)
	}
}

func TestWebSocketOrigin(t *testing.T) {
	f := newFixture(t, Config{AllowedOrigins: []string{"https://guide.example"}}, true)

	_, resp, err := dial(t, f, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatal("foreign origin was upgraded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("rejection response = %v", resp)
	}

	conn, _, err := dial(t, f, http.Header{"Origin": {"https://guide.example"}})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	conn.Close()
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client
	waitForClients(t, hub, 1)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if _, ok := <-client.send; ok {
		t.Error("client send channel should be closed")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients after shutdown = %d", hub.ClientCount())
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast)+5; i++ {
		hub.Broadcast(Event{Type: "x"})
	}
	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Errorf("queue holds %d, want %d", len(hub.broadcast), cap(hub.broadcast))
	}
}
