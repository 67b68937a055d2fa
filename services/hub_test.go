package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"sharedplay/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attach registers a socketless client so tests can read what the hub sends.
func attach(t *testing.T, h *Hub, sessionID, participantID string) *Client {
	t.Helper()
	c := &Client{hub: h, id: participantID + "-conn", send: make(chan []byte, sendBuffer), sessionID: sessionID, participantID: participantID}
	h.register <- c
	require.Eventually(t, func() bool {
		h.mutex.RLock()
		defer h.mutex.RUnlock()
		return h.rooms[sessionID][c]
	}, time.Second, time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub()
	go h.Run(ctx)
	return h
}

func TestHubPublish_RoomIsolation(t *testing.T) {
	h := startHub(t)
	a := attach(t, h, "s1", "p1")
	b := attach(t, h, "s2", "p2")

	h.Publish(context.Background(), "s1", MessageProgress, map[string]int{"current_item_index": 2})

	msg := receive(t, a)
	assert.Equal(t, MessageProgress, msg.Type)
	assert.Equal(t, "s1", msg.SessionID)
	assert.JSONEq(t, `{"current_item_index":2}`, string(msg.Payload))

	select {
	case <-b.send:
		t.Fatal("message leaked to another session")
	default:
	}
	assert.Equal(t, []string{"p1"}, h.ConnectedParticipants("s1"))
}

func TestHubUnregister_ClosesSend(t *testing.T) {
	h := startHub(t)
	c := attach(t, h, "s1", "p1")

	h.UnregisterClient(c)
	require.Eventually(t, func() bool { return len(h.ConnectedParticipants("s1")) == 0 }, time.Second, time.Millisecond)

	_, ok := <-c.send
	assert.False(t, ok)
}

func TestClientHandleMessage_RoutesToServices(t *testing.T) {
	env := newTestEnv(t, SessionOptions{})
	sess, hostID := env.createSession(t, nil)
	ana := env.join(t, sess, "Ana")

	h := startHub(t)
	h.Bind(env.sessions, env.state, env.presence)
	c := attach(t, h, sess.ID, ana)
	ctx := context.Background()

	c.handleMessage(ctx, Message{Type: ClientCursor, Payload: json.RawMessage(`{"x":5,"y":6}`)})
	c.handleMessage(ctx, Message{Type: ClientInput, Payload: json.RawMessage(`{"value":"katze","item_index":1}`)})

	state := env.get(t, sess.ID).SharedState
	assert.Equal(t, 5.0, state.Cursors[ana].X)
	assert.Equal(t, "katze", state.Inputs[ana].Value)

	_, err := env.arbiter.SetControlMode(ctx, sess.ID, hostID, models.ControlHostOnly, nil)
	require.NoError(t, err)

	c.handleMessage(ctx, Message{Type: ClientElements, Payload: json.RawMessage(`{"item_index":0,"positions":[{"id":"w1","x":1,"y":2}]}`)})
	msg := receive(t, c)
	assert.Equal(t, MessageError, msg.Type)
	assert.JSONEq(t, `{"type":"elements","error":"Host only"}`, string(msg.Payload))

	c.handleMessage(ctx, Message{Type: ClientRequestState})
	msg = receive(t, c)
	assert.Equal(t, MessageStateSync, msg.Type)
	var snapshot models.GameSession
	require.NoError(t, json.Unmarshal(msg.Payload, &snapshot))
	assert.Equal(t, sess.ID, snapshot.ID)

	c.handleMessage(ctx, Message{Type: ClientPing})
	assert.Equal(t, MessagePong, receive(t, c).Type)
}

func TestClientHandleMessage_BadPayload(t *testing.T) {
	env := newTestEnv(t, SessionOptions{})
	sess, hostID := env.createSession(t, nil)

	h := startHub(t)
	h.Bind(env.sessions, env.state, env.presence)
	c := attach(t, h, sess.ID, hostID)

	tests := []struct {
		name    string
		msgType string
		payload string
	}{
		{"syntax error", ClientInput, `{"value":`},
		{"wrong type", ClientCursor, `{"x":"a"}`},
		{"not an object", ClientCursor, `"nope"`},
		{"missing payload", ClientSharedState, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.handleMessage(context.Background(), Message{Type: tt.msgType, Payload: json.RawMessage(tt.payload)})
			msg := receive(t, c)
			assert.Equal(t, MessageError, msg.Type)

			var body map[string]string
			require.NoError(t, json.Unmarshal(msg.Payload, &body))
			assert.Equal(t, tt.msgType, body["type"])
			assert.Equal(t, ErrInvalidInput.Error(), body["error"])
		})
	}
}

func TestHub_StoppedHubDoesNotBlockClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := attach(t, h, "s1", "p1")
	cancel()
	<-stopped

	returned := make(chan struct{})
	go func() {
		h.UnregisterClient(c)
		assert.Nil(t, h.RegisterClient(nil, "s1", "p2"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("client registration blocked after the hub stopped")
	}

	_, ok := <-c.send
	assert.False(t, ok)
}

func TestRedisBroadcaster_FallsBackToLocalDelivery(t *testing.T) {
	h := startHub(t)
	c := attach(t, h, "s1", "p1")

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	NewRedisBroadcaster(client, h).Publish(context.Background(), "s1", MessageGameStarted, map[string]string{"status": "in_progress"})

	msg := receive(t, c)
	assert.Equal(t, MessageGameStarted, msg.Type)
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	assert.NotPanics(t, func() { n.Publish(context.Background(), "s1", MessageProgress, nil) })
}
