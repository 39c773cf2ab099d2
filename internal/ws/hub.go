package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

// Feed is the realtime message list the hub snapshots from.
type Feed interface {
	AddMessage(ctx context.Context, ownerID, counterpartID, senderID string, d models.Draft) (models.Message, error)
	GetMessages(ctx context.Context, ownerID, counterpartID string, limit int) ([]models.Message, error)
}

// Topic identifies one store/customer pair.
type Topic struct {
	OwnerID       string
	CounterpartID string
}

func (t Topic) Key() string {
	return models.ConversationKey(t.OwnerID, t.CounterpartID)
}

// Hub fans full conversation snapshots out to subscribed clients. Register
// and Broadcast are handled on one goroutine, so a new client never misses a
// publish that lands while it is joining.
type Hub struct {
	feed          Feed
	snapshotLimit int
	log           zerolog.Logger

	clients    map[string]map[*Client]bool // topic key -> clients
	register   chan *Client
	unregister chan *Client
	broadcast  chan Topic
	done       chan struct{}
}

func NewHub(feed Feed, snapshotLimit int, log zerolog.Logger) *Hub {
	return &Hub{
		feed:          feed,
		snapshotLimit: snapshotLimit,
		log:           log.With().Str("component", "hub").Logger(),
		clients:       make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan Topic, 64),
		done:          make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for client := range clients {
					client.Close()
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return
		case client := <-h.register:
			key := client.Topic.Key()
			if h.clients[key] == nil {
				h.clients[key] = make(map[*Client]bool)
			}
			h.clients[key][client] = true
			if data, ok := h.snapshot(ctx, client.Topic); ok {
				h.deliver(key, client, data)
			}
		case client := <-h.unregister:
			h.remove(client)
		case topic := <-h.broadcast:
			key := topic.Key()
			if len(h.clients[key]) == 0 {
				continue
			}
			data, ok := h.snapshot(ctx, topic)
			if !ok {
				continue
			}
			for client := range h.clients[key] {
				h.deliver(key, client, data)
			}
		}
	}
}

func (h *Hub) snapshot(ctx context.Context, topic Topic) ([]byte, bool) {
	msgs, err := h.feed.GetMessages(ctx, topic.OwnerID, topic.CounterpartID, h.snapshotLimit)
	if err != nil {
		h.log.Error().Err(err).Str("topic", topic.Key()).Msg("Failed to read feed snapshot")
		return nil, false
	}
	data, err := json.Marshal(models.Snapshot{OwnerID: topic.OwnerID, CounterpartID: topic.CounterpartID, Messages: msgs})
	if err != nil {
		h.log.Error().Err(err).Str("topic", topic.Key()).Msg("Failed to encode snapshot")
		return nil, false
	}
	return data, true
}

func (h *Hub) deliver(key string, client *Client, data []byte) {
	if err := client.Send(data); err != nil {
		h.log.Debug().Err(err).Str("client_id", client.ID).Str("topic", key).Msg("Dropping client")
		delete(h.clients[key], client)
	}
}

func (h *Hub) remove(client *Client) {
	key := client.Topic.Key()
	if clients, ok := h.clients[key]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, key)
		}
	}
	client.Close()
}

// Register adds a client and sends it the current snapshot.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast re-sends the topic's snapshot to all of its clients.
func (h *Hub) Broadcast(topic Topic) {
	select {
	case h.broadcast <- topic:
	case <-h.done:
	}
}

// Publish appends to the feed and broadcasts the new snapshot.
func (h *Hub) Publish(ctx context.Context, topic Topic, senderID string, d models.Draft) (models.Message, error) {
	msg, err := h.feed.AddMessage(ctx, topic.OwnerID, topic.CounterpartID, senderID, d)
	if err != nil {
		return models.Message{}, err
	}
	h.Broadcast(topic)
	return msg, nil
}
