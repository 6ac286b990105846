package websocket

import (
	"log"
	"sync"
)

// Hub maintains the set of active notification clients keyed by user ID
// and routes pushed notifications to every open connection of that user
type Hub struct {
	// Registered clients by user ID
	clients map[string]map[*Client]bool

	// Outbound messages to fan out
	broadcast chan *Message

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex
}

// Message represents a WebSocket message
type Message struct {
	UserID  string                 `json:"user_id,omitempty"`
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
			log.Printf("Notification client registered: UserID=%s, connections: %d", client.UserID, len(h.clients[client.UserID]))

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UserID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.UserID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Notification client unregistered: UserID=%s", client.UserID)

		case message := <-h.broadcast:
			h.mu.RLock()
			if message.UserID != "" {
				// Send to every connection of one user
				if clients, ok := h.clients[message.UserID]; ok {
					for client := range clients {
						select {
						case client.send <- message:
						default:
							close(client.send)
							delete(clients, client)
						}
					}
				}
			} else {
				// Broadcast to all clients
				for _, clients := range h.clients {
					for client := range clients {
						select {
						case client.send <- message:
						default:
							close(client.send)
							delete(clients, client)
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastToUser sends a notification payload to a specific user
func (h *Hub) BroadcastToUser(userID string, payload map[string]interface{}) {
	message := &Message{
		UserID:  userID,
		Type:    "notification",
		Payload: payload,
	}

	select {
	case h.broadcast <- message:
	default:
		log.Printf("Broadcast channel full, dropping message for user: %s", userID)
	}
}

// BroadcastToAll sends a message to all connected clients
func (h *Hub) BroadcastToAll(payload map[string]interface{}) {
	message := &Message{
		Type:    "broadcast",
		Payload: payload,
	}

	select {
	case h.broadcast <- message:
	default:
		log.Printf("Broadcast channel full, dropping broadcast message")
	}
}

// GetClientCount returns the number of connected clients for a user
func (h *Hub) GetClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[userID]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalClientCount returns the total number of connected clients
func (h *Hub) GetTotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
