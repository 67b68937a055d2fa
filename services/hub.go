package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"sharedplay/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Inbound message types sent by clients.
const (
	ClientHeartbeat     = "heartbeat"
	ClientCursor        = "cursor"
	ClientInput         = "input"
	ClientElements      = "elements"
	ClientCrosswordGrid = "crossword_grid"
	ClientSharedState   = "shared_state"
	ClientRequestState  = "request_state"
	ClientPing          = "ping"
)

// Hub keeps one room of websocket clients per session and routes client
// messages to the session services.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex

	sessions *SessionService
	state    *SharedStateService
	presence *PresenceTracker
}

type Client struct {
	hub           *Hub
	id            string
	socket        *websocket.Conn
	send          chan []byte
	sessionID     string
	participantID string
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Bind attaches the services that handle inbound client messages. The hub is
// created first because those services publish through it.
func (h *Hub) Bind(sessions *SessionService, state *SharedStateService, presence *PresenceTracker) {
	h.sessions = sessions
	h.state = state
	h.presence = presence
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mutex.Lock()
			room, ok := h.rooms[client.sessionID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.sessionID] = room
			}
			room[client] = true
			h.mutex.Unlock()
			log.Printf("Client registered: %s for session %s (participant %s) - Room size: %d", client.id, client.sessionID, client.participantID, len(room))

		case client := <-h.unregister:
			h.mutex.Lock()
			if h.remove(client) {
				log.Printf("Client unregistered: %s for session %s (participant %s)", client.id, client.sessionID, client.participantID)
			}
			h.mutex.Unlock()
		}
	}
}

// remove drops client from its room. Callers hold the write lock.
func (h *Hub) remove(client *Client) bool {
	room, ok := h.rooms[client.sessionID]
	if !ok || !room[client] {
		return false
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.sessionID)
	}
	return true
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, room := range h.rooms {
		for client := range room {
			h.remove(client)
		}
	}
}

// Publish delivers a message to every client in the session's room.
func (h *Hub) Publish(_ context.Context, sessionID, msgType string, payload any) {
	data, err := encodeMessage(sessionID, msgType, payload)
	if err != nil {
		log.Printf("Error marshaling %s for session %s: %v", msgType, sessionID, err)
		return
	}
	h.deliver(sessionID, data)
}

func (h *Hub) deliver(sessionID string, data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.rooms[sessionID] {
		select {
		case client.send <- data:
		default:
			log.Printf("Client %s (participant %s) send buffer full, closing connection", client.id, client.participantID)
			h.remove(client)
		}
	}
}

// ConnectedParticipants lists the participant IDs with an open socket.
func (h *Hub) ConnectedParticipants(sessionID string) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var ids []string
	for client := range h.rooms[sessionID] {
		ids = append(ids, client.participantID)
	}
	return ids
}

func (h *Hub) RegisterClient(conn *websocket.Conn, sessionID, participantID string) *Client {
	client := &Client{
		hub:           h,
		id:            uuid.NewString(),
		socket:        conn,
		send:          make(chan []byte, sendBuffer),
		sessionID:     sessionID,
		participantID: participantID,
	}

	// Queue the snapshot before the client is visible to broadcasts so it
	// arrives first.
	if h.sessions != nil {
		if sess, err := h.sessions.Get(context.Background(), sessionID); err == nil {
			if data, err := encodeMessage(sessionID, MessageStateSync, sess); err == nil {
				client.send <- data
			}
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		log.Printf("Hub stopped, refusing client for session %s (participant %s)", sessionID, participantID)
		if conn != nil {
			conn.Close()
		}
		return nil
	}

	go client.writePump()
	go client.readPump()

	return client
}

// UnregisterClient removes client from its room. It returns immediately once
// the hub has stopped.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message from participant %s: %v", c.participantID, err)
			continue
		}

		c.handleMessage(context.Background(), msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type cursorMessage struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type inputMessage struct {
	Value     string `json:"value"`
	ItemIndex int    `json:"item_index"`
}

type elementsMessage struct {
	ItemIndex int                      `json:"item_index"`
	Positions []models.ElementPosition `json:"positions"`
}

type gridMessage struct {
	ItemIndex int    `json:"item_index"`
	GridState string `json:"grid_state"`
}

func (c *Client) handleMessage(ctx context.Context, msg Message) {
	var (
		result *UpdateResult
		err    error
	)

	switch msg.Type {
	case ClientPing:
		c.reply(MessagePong, nil)
		return

	case ClientHeartbeat:
		err = c.hub.presence.Heartbeat(ctx, c.sessionID, c.participantID)

	case ClientRequestState:
		c.syncState(ctx)
		return

	case ClientCursor:
		var m cursorMessage
		if err = c.decode(msg, &m); err == nil {
			result, err = c.hub.state.UpdateCursor(ctx, c.sessionID, c.participantID, m.X, m.Y)
		}

	case ClientInput:
		var m inputMessage
		if err = c.decode(msg, &m); err == nil {
			result, err = c.hub.state.UpdateInput(ctx, c.sessionID, c.participantID, m.Value, m.ItemIndex)
		}

	case ClientElements:
		var m elementsMessage
		if err = c.decode(msg, &m); err == nil {
			result, err = c.hub.state.UpdateElements(ctx, c.sessionID, c.participantID, m.ItemIndex, m.Positions)
		}

	case ClientCrosswordGrid:
		var m gridMessage
		if err = c.decode(msg, &m); err == nil {
			result, err = c.hub.state.UpdateCrosswordGrid(ctx, c.sessionID, c.participantID, m.ItemIndex, m.GridState)
		}

	case ClientSharedState:
		var patch SharedStatePatch
		if err = c.decode(msg, &patch); err == nil {
			result, err = c.hub.state.UpdateSharedGameState(ctx, c.sessionID, c.participantID, &patch)
		}

	default:
		log.Printf("Unknown message type: %s from participant %s in session %s", msg.Type, c.participantID, c.sessionID)
		return
	}

	if err != nil {
		c.reply(MessageError, map[string]any{"type": msg.Type, "error": err.Error()})
		return
	}
	if result != nil && !result.Success {
		c.reply(MessageError, map[string]any{"type": msg.Type, "error": result.Error})
	}
}

// decode unpacks a message payload. Decoder details are logged, never sent
// back to the client.
func (c *Client) decode(msg Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		log.Printf("Bad %s payload from participant %s in session %s: %v", msg.Type, c.participantID, c.sessionID, err)
		return ErrInvalidInput
	}
	return nil
}

// syncState sends the current session snapshot to this client only.
func (c *Client) syncState(ctx context.Context) {
	if c.hub.sessions == nil {
		return
	}
	sess, err := c.hub.sessions.Get(ctx, c.sessionID)
	if err != nil {
		log.Printf("Error getting session %s for client %s: %v", c.sessionID, c.id, err)
		c.reply(MessageError, map[string]any{"type": ClientRequestState, "error": err.Error()})
		return
	}
	c.reply(MessageStateSync, sess)
}

func (c *Client) reply(msgType string, payload any) {
	data, err := encodeMessage(c.sessionID, msgType, payload)
	if err != nil {
		log.Printf("Error marshaling %s for client %s: %v", msgType, c.id, err)
		return
	}

	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if !c.hub.rooms[c.sessionID][c] {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Client %s send buffer full, dropping %s", c.id, msgType)
	}
}
