package web

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/trapwire/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin requests carry no Origin header.
		return r.Header.Get("Origin") == "" || r.Header.Get("Origin") == "http://"+r.Host
	},
}

// WSMessage is the envelope pushed to dashboard clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSManager broadcasts the defense state to connected dashboard clients.
type WSManager struct {
	service ports.DefenseService
	mu      sync.Mutex
	clients map[*websocket.Conn]*domain.User
}

// NewWSManager creates the manager.
func NewWSManager(service ports.DefenseService) *WSManager {
	return &WSManager{service: service, clients: make(map[*websocket.Conn]*domain.User)}
}

// Start launches the periodic broadcaster.
func (m *WSManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.broadcastState(ctx)
			}
		}
	}()
}

// HandleWebSocket upgrades an authenticated request.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = user
	m.mu.Unlock()
	log.Printf("WebSocket connected: user=%s", user.Username)

	go func() {
		defer func() {
			conn.Close()
			m.mu.Lock()
			delete(m.clients, conn)
			m.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastAlert pushes one alert immediately.
func (m *WSManager) BroadcastAlert(alert domain.Alert) {
	m.send(WSMessage{Type: "alert", Payload: alert})
}

func (m *WSManager) broadcastState(ctx context.Context) {
	m.send(WSMessage{Type: "devices", Payload: m.service.Devices(ctx)})
	m.send(WSMessage{Type: "alerts", Payload: m.service.Alerts(ctx)})
}

func (m *WSManager) send(msg WSMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}
