package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans live session stats out to websocket clients. When a redis
// client is configured, broadcasts are mirrored over pubsub so every
// instance behind the load balancer sees them.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	// mirror decouples callers from the redis round-trip; a dedicated
	// goroutine drains it. Nil when no redis client is configured.
	mirror chan mirrorMsg
}

type mirrorMsg struct {
	channel string
	payload []byte
}

type Client struct {
	SessionID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		h.mirror = make(chan mirrorMsg, 256)
		go h.publishRedis()
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	close(client.Send)
}

// Broadcast delivers payload to local subscribers of the session and
// mirrors it to peers over redis. Slow clients are skipped, never blocked
// on, and the caller never waits on the network: the redis mirror is
// handed to a background goroutine.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.deliver(sessionID, payload)

	if h.mirror != nil {
		select {
		case h.mirror <- mirrorMsg{channel: redisChannel(sessionID), payload: payload}:
		default:
			log.Printf("stream mirror backlog full, dropping message for session %s", sessionID)
		}
	}
}

// deliver fans payload out to the local subscribers of the session. The
// read lock is held across the whole iteration: Register and Unregister
// mutate the same inner map under the write lock, and Unregister closes
// Send there, so sending outside the lock could race either.
func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) publishRedis() {
	ctx := context.Background()
	for msg := range h.mirror {
		if err := h.redis.Publish(ctx, msg.channel, msg.payload).Err(); err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "activity:*:live")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliver(sessionIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func redisChannel(sessionID string) string {
	return "activity:" + sessionID + ":live"
}

func sessionIDFromChannel(ch string) string {
	// activity:{session}:live
	const prefix = "activity:"
	const suffix = ":live"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
