package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

// client serializa as escritas: gorilla não aceita writers concorrentes na mesma conexão.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub gerencia conexões WebSocket e assinaturas de eventos do ledger por dono
// Eventos sem dono (épocas) vão para todas as conexões
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	conns    map[*client]struct{}
	// owner -> set of clients
	subs map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		conns:    make(map[*client]struct{}),
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe por dono e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.Owner == "" {
				_ = c.writeJSON(map[string]string{"type": "error", "error": "owner required"})
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.Owner]; !ok {
				h.subs[msg.Owner] = make(map[*client]struct{})
			}
			h.subs[msg.Owner][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			h.unsubscribe(msg.Owner, c)
			h.mu.Unlock()
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}
	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	delete(h.conns, c)
	for owner := range h.subs {
		h.unsubscribe(owner, c)
	}
	h.mu.Unlock()
}

// chamar com h.mu travado
func (h *Hub) unsubscribe(owner string, c *client) {
	if m, ok := h.subs[owner]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, owner)
		}
	}
}

// Broadcast envia o evento para os inscritos no dono, ou para todos quando o evento é global
func (h *Hub) Broadcast(ev events.LedgerEvent) {
	h.mu.RLock()
	var targets []*client
	if ev.Owner == "" {
		targets = make([]*client, 0, len(h.conns))
		for c := range h.conns {
			targets = append(targets, c)
		}
	} else {
		for c := range h.subs[ev.Owner] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, c := range targets {
		_ = c.write(b)
	}
}

// Subscribers devolve quantas conexões acompanham o dono.
func (h *Hub) Subscribers(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[owner])
}
