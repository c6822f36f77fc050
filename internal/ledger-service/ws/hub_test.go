package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTrip envia ping e espera o pong: as mensagens anteriores já foram processadas.
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	var pong map[string]string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&pong); err != nil || pong["type"] != "pong" {
		t.Fatalf("pong=%v err=%v", pong, err)
	}
}

func TestHub_RoutesByOwner(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	alice := dial(t, srv)
	bob := dial(t, srv)
	if err := alice.WriteJSON(ClientMsg{Type: "subscribe", Owner: "alice"}); err != nil {
		t.Fatal(err)
	}
	roundTrip(t, alice)
	roundTrip(t, bob)

	hub.Broadcast(events.LedgerEvent{Type: events.WagerPlaced, Owner: "alice", SubjectID: "w1"})
	hub.Broadcast(events.LedgerEvent{Type: events.EpochOpened, SubjectID: "1"})

	var got events.LedgerEvent
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := alice.ReadJSON(&got); err != nil || got.SubjectID != "w1" {
		t.Fatalf("alice first=%+v err=%v", got, err)
	}
	if err := alice.ReadJSON(&got); err != nil || got.Type != events.EpochOpened {
		t.Fatalf("alice second=%+v err=%v", got, err)
	}

	// bob não assinou alice: só recebe o evento global
	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := bob.ReadJSON(&got); err != nil || got.Type != events.EpochOpened {
		t.Fatalf("bob=%+v err=%v", got, err)
	}
}

func TestHub_UnsubscribeAndDisconnect(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	_ = conn.WriteJSON(ClientMsg{Type: "subscribe", Owner: "alice"})
	roundTrip(t, conn)
	if n := hub.Subscribers("alice"); n != 1 {
		t.Fatalf("subscribers=%d want=1", n)
	}
	_ = conn.WriteJSON(ClientMsg{Type: "unsubscribe", Owner: "alice"})
	roundTrip(t, conn)
	if n := hub.Subscribers("alice"); n != 0 {
		t.Fatalf("subscribers after unsubscribe=%d want=0", n)
	}
}
