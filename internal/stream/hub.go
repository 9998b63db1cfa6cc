package stream

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hub fans upload events out to websocket subscribers, keyed by the batch
// identifier of an upload. With a redis client it also mirrors events over
// pub/sub so subscribers on other instances see them.
type Hub struct {
	redis   *redis.Client
	logger  *zap.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	// ready is closed once the redis subscription is live (immediately when
	// no redis client is configured).
	ready chan struct{}
}

type Client struct {
	BatchID string
	Send    chan []byte
}

func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		redis:   redisClient,
		logger:  logger,
		clients: map[string]map[*Client]struct{}{},
		ready:   make(chan struct{}),
	}

	if redisClient != nil {
		go h.subscribeRedis()
	} else {
		close(h.ready)
	}
	return h
}

func (h *Hub) Register(batchID string) *Client {
	client := &Client{
		BatchID: batchID,
		Send:    make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[batchID] == nil {
		h.clients[batchID] = map[*Client]struct{}{}
	}
	h.clients[batchID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if batchClients, ok := h.clients[client.BatchID]; ok {
		delete(batchClients, client)
		if len(batchClients) == 0 {
			delete(h.clients, client.BatchID)
		}
	}
	close(client.Send)
}

// Broadcast delivers payload to the batch's subscribers. With redis the
// event goes out over pub/sub only, and local delivery happens through the
// hub's own subscription like on every other instance, so a client sees each
// event exactly once. Without redis (or when publish fails) delivery is
// local and direct.
func (h *Hub) Broadcast(batchID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(batchID), payload).Err()
		if err == nil {
			return
		}
		h.logger.Warn("redis publish failed, delivering locally", zap.Error(err))
	}
	h.deliver(batchID, payload)
}

func (h *Hub) deliver(batchID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[batchID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "uploads:*:events")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Warn("redis subscribe failed", zap.Error(err))
		close(h.ready)
		return
	}
	close(h.ready)

	for msg := range pubsub.Channel() {
		h.deliver(batchIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func redisChannel(batchID string) string {
	return "uploads:" + batchID + ":events"
}

func batchIDFromChannel(ch string) string {
	// uploads:{batch}:events
	const prefix = "uploads:"
	const suffix = ":events"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
