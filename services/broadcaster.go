package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Outbound message types pushed to session rooms.
const (
	MessageParticipantUpdate = "participant_update"
	MessageGameStarted       = "game_started"
	MessageSessionEnded      = "session_ended"
	MessageProgress          = "progress"
	MessageControlUpdate     = "control_update"
	MessageStateSync         = "state_sync"
	MessageError             = "error"
	MessagePong              = "pong"

	// MessageStatePrefix is followed by the shared-state resource name,
	// e.g. "state_cursors".
	MessageStatePrefix = "state_"
)

const redisChannelPrefix = "session:"

// Notifier pushes session changes to connected clients. Publishing is best
// effort and never fails the operation that triggered it.
type Notifier interface {
	Publish(ctx context.Context, sessionID, msgType string, payload any)
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, string, string, any) {}

// Message is the envelope exchanged over websockets and Redis.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func encodeMessage(sessionID, msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, SessionID: sessionID, Payload: raw})
}

// RedisBroadcaster fans session messages out through Redis pub/sub so every
// instance can deliver them to its own websocket clients.
type RedisBroadcaster struct {
	client *redis.Client
	local  *Hub
}

func NewRedisBroadcaster(client *redis.Client, local *Hub) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, local: local}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, sessionID, msgType string, payload any) {
	data, err := encodeMessage(sessionID, msgType, payload)
	if err != nil {
		log.Printf("Error marshaling %s for session %s: %v", msgType, sessionID, err)
		return
	}
	if err := b.client.Publish(ctx, redisChannelPrefix+sessionID, data).Err(); err != nil {
		log.Printf("Redis publish failed for session %s, delivering locally: %v", sessionID, err)
		b.local.deliver(sessionID, data)
	}
}

// Run relays messages from every session channel to the local hub until ctx
// is cancelled.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Printf("Subscribed to Redis session channels")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sessionID := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
			b.local.deliver(sessionID, []byte(msg.Payload))
		}
	}
}
