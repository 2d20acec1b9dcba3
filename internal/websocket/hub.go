package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/cinder/storyboard/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub fans storyboard updates out to every connection a user has open
type Hub struct {
	// Clients grouped by user ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	UserID  string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
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
			log.Printf("[Hub] client registered for user %s", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UserID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.UserID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("[Hub] client unregistered for user %s", client.UserID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients[msg.UserID] {
				select {
				case client.Send <- msg.Message:
				default:
					// Send is only closed by unregister, once the reader is gone
					log.Printf("[Hub] send buffer full for user %s, dropping message", msg.UserID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Connections returns the number of open connections for userID
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// BroadcastSnapshot sends the latest storyboard state to the user's connections
func (h *Hub) BroadcastSnapshot(userID, event string, snap model.Snapshot) {
	h.send(userID, model.WSSnapshotMessage{
		Type:     model.WSMessageTypeSnapshot,
		Event:    event,
		Snapshot: snap,
	})
}

// BroadcastError reports a failure. frameIndex is nil for session-level errors.
func (h *Hub) BroadcastError(userID, code, message string, frameIndex *int) {
	h.send(userID, model.WSErrorMessage{
		Type: model.WSMessageTypeError,
		Error: model.WSError{
			Code:       code,
			Message:    message,
			FrameIndex: frameIndex,
		},
	})
}

// BroadcastProject reports a saved project's persistence status
func (h *Hub) BroadcastProject(userID, projectID string, status model.ProjectStatus) {
	h.send(userID, model.WSProjectMessage{
		Type:      model.WSMessageTypeProject,
		ProjectID: projectID,
		Status:    status,
	})
}

func (h *Hub) send(userID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Hub] failed to marshal message: %v", err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{UserID: userID, Message: data}:
	default:
		log.Printf("[Hub] broadcast queue full, dropping message for user %s", userID)
	}
}

// Attach registers client and then queues the message built by initial.
// Registering first means no broadcast falls between the two; a client may
// see an update ahead of the initial snapshot and orders them by Version.
func (h *Hub) Attach(client *Client, initial func() []byte) {
	h.Register(client)
	if initial == nil {
		return
	}
	data := initial()
	if data == nil {
		return
	}
	select {
	case client.Send <- data:
	default:
		log.Printf("[Hub] send buffer full for user %s, dropping initial message", client.UserID)
	}
}

// HandleConnection serves one WebSocket connection. initial, when non-nil,
// produces the first message once the connection is registered.
func (h *Hub) HandleConnection(c *websocket.Conn, userID string, initial func() []byte) {
	client := &Client{
		UserID: userID,
		Conn:   c,
		Send:   make(chan []byte, 256),
	}

	h.Attach(client, initial)
	defer h.Unregister(client)

	// Writer
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Hub] websocket error for user %s: %v", userID, err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- pong:
			default:
			}
		}
	}
}
