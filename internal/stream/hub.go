// README: Hub fans ride updates and SOS notices out to stream listeners,
// across instances through Redis pub/sub when configured.
package stream

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"ridesafe/internal/types"
)

const (
	channelPrefix = "ridesafe:stream:"
	clientBuffer  = 64
)

type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger
	done    chan struct{}
}

type Client struct {
	Topic string
	Send  chan []byte
}

// NewHub returns a local-only hub when redisClient is nil. Otherwise it waits
// for the Redis subscription before returning so no publish is missed.
func NewHub(ctx context.Context, redisClient *redis.Client, logger *slog.Logger) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		logger:  logger.With(slog.String("component", "stream")),
		done:    make(chan struct{}),
	}
	if redisClient == nil {
		close(h.done)
		return h, nil
	}

	h.pubsub = redisClient.PSubscribe(ctx, channelPrefix+"*")
	if _, err := h.pubsub.Receive(ctx); err != nil {
		_ = h.pubsub.Close()
		return nil, err
	}
	go h.subscribeRedis()
	return h, nil
}

// RideTopic is the topic carrying one ride session's updates.
func RideTopic(sessionID types.ID) string {
	return "ride:" + string(sessionID)
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{Topic: topic, Send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[client]; !ok {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

// Publish delivers payload to every listener of topic. With Redis the
// message goes through the channel so every instance sees it exactly once.
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	if h.redis == nil {
		h.deliver(topic, payload)
		return nil
	}
	return h.redis.Publish(ctx, channelPrefix+topic, payload).Err()
}

// Broadcast publishes a ride session update.
func (h *Hub) Broadcast(ctx context.Context, sessionID types.ID, payload []byte) error {
	return h.Publish(ctx, RideTopic(sessionID), payload)
}

// Listeners counts the clients registered on topic.
func (h *Hub) Listeners(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// deliver drops the message for clients whose buffer is full.
func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("client buffer full, dropping message", slog.String("topic", topic))
		}
	}
}

func (h *Hub) subscribeRedis() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		topic, ok := strings.CutPrefix(msg.Channel, channelPrefix)
		if !ok || topic == "" {
			continue
		}
		h.deliver(topic, []byte(msg.Payload))
	}
}

// Close stops the Redis subscription. Registered clients are left to their
// handlers.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	err := h.pubsub.Close()
	<-h.done
	return err
}
