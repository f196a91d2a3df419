package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// AllRoutes is the channel clients subscribe to for every vehicle.
const AllRoutes = "*"

// Client is one WebSocket subscription, scoped to the connection: created
// on connect, destroyed on disconnect, never persisted.
type Client struct {
	conn    *websocket.Conn
	routeID string
	send    chan []byte
}

// Hub manages WebSocket subscribers grouped by route. Each client has a
// buffered send channel; a client that stops draining loses its own updates
// while everyone else keeps receiving.
type Hub struct {
	bufferSize int
	metrics    Metrics

	mu      sync.RWMutex
	clients map[string]map[*Client]bool // routeID -> set of clients
}

func NewHub(bufferSize int, m Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		bufferSize: bufferSize,
		metrics:    m,
		clients:    make(map[string]map[*Client]bool),
	}
}

// ServeWS handles WebSocket upgrade and client lifecycle.
// URL: /tracking/ws?routeId=R1 (omit routeId to receive all vehicles).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	routeID := r.URL.Query().Get("routeId")
	if routeID == "" {
		routeID = AllRoutes
	}

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		client := &Client{
			conn:    conn,
			routeID: routeID,
			send:    make(chan []byte, h.bufferSize),
		}

		h.register(client)
		defer h.unregister(client)

		slog.Info("subscriber connected",
			"route_id", routeID,
			"remote", conn.Request().RemoteAddr)

		// Write pump
		go func() {
			for msg := range client.send {
				if _, err := conn.Write(msg); err != nil {
					return
				}
			}
		}()

		// Read pump (for close detection)
		buf := make([]byte, 512)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	})

	wsHandler.ServeHTTP(w, r)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.routeID] == nil {
		h.clients[c.routeID] = make(map[*Client]bool)
	}
	h.clients[c.routeID][c] = true
	if h.metrics != nil {
		h.metrics.ClientsAdd(1)
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[c.routeID]; ok && clients[c] {
		delete(clients, c)
		close(c.send)
		if len(clients) == 0 {
			delete(h.clients, c.routeID)
		}
		if h.metrics != nil {
			h.metrics.ClientsAdd(-1)
		}
	}
	slog.Info("subscriber disconnected", "route_id", c.routeID)
}

// Deliver implements Sink: the update goes to the vehicle's route channel
// and to the all-routes channel. A saturated client's update is dropped for
// that client only.
func (h *Hub) Deliver(u Update) {
	data, err := json.Marshal(u)
	if err != nil {
		slog.Error("marshal update failed", "error", err)
		return
	}

	// Send while holding the read lock. Unregister and CloseAll close send
	// channels under the write lock, so a channel can never close mid-send.
	// The sends are non-blocking, so the lock is held only briefly.
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.sendLocked(h.clients[u.RouteID], data, u)
	if u.RouteID != AllRoutes {
		h.sendLocked(h.clients[AllRoutes], data, u)
	}
}

func (h *Hub) sendLocked(clients map[*Client]bool, data []byte, u Update) {
	for client := range clients {
		select {
		case client.send <- data:
		default:
			if h.metrics != nil {
				h.metrics.SubscriberDropInc()
			}
			slog.Warn("subscriber buffer full, update dropped",
				"route_id", client.routeID, "vehicle_id", u.VehicleID)
		}
	}
}

// CloseAll closes all client connections, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			close(client.send)
			if client.conn != nil {
				client.conn.Close()
			}
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}
