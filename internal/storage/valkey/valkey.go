// Package valkey keeps the realtime feed and the name directory in Valkey.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
	"github.com/Vasu1712/scenyx-inbox/internal/storage"
)

const (
	feedPrefix = "scenyx:feed:"
	namesKey   = "scenyx:names"
	feedMaxLen = 1000
)

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("valkey: connect %s: %w", addr, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey: ping: %w", err)
	}
	return client, nil
}

// Feed is the realtime message list of each store/customer pair, one Valkey
// list per pair holding JSON messages.
type Feed struct {
	client valkey.Client
	now    func() time.Time
}

func NewFeed(client valkey.Client) *Feed {
	return &Feed{client: client, now: time.Now}
}

func feedKey(ownerID, counterpartID string) string {
	return feedPrefix + models.ConversationKey(ownerID, counterpartID)
}

func (f *Feed) AddMessage(ctx context.Context, ownerID, counterpartID, senderID string, d models.Draft) (models.Message, error) {
	id, at := d.MessageID, f.now()
	if id == "" {
		id = uuid.NewString()
	}
	if d.SentAt != nil {
		at = *d.SentAt
	}
	msg := models.Message{
		ID:            id,
		OwnerID:       ownerID,
		CounterpartID: counterpartID,
		SenderID:      senderID,
		Content:       d.Content,
		Kind:          d.Kind,
		Attachments:   d.Attachments,
		CreatedAt:     at.UTC(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("valkey: encode message: %w", err)
	}
	key := feedKey(ownerID, counterpartID)
	if err := f.client.Do(ctx, f.client.B().Rpush().Key(key).Element(string(raw)).Build()).Error(); err != nil {
		return models.Message{}, fmt.Errorf("valkey: append %s: %w", key, err)
	}
	if err := f.client.Do(ctx, f.client.B().Ltrim().Key(key).Start(-feedMaxLen).Stop(-1).Build()).Error(); err != nil {
		return models.Message{}, fmt.Errorf("valkey: trim %s: %w", key, err)
	}
	return msg, nil
}

// GetMessages returns the newest limit entries, oldest first; limit <= 0
// returns the whole list.
func (f *Feed) GetMessages(ctx context.Context, ownerID, counterpartID string, limit int) ([]models.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	key := feedKey(ownerID, counterpartID)
	items, err := f.client.Do(ctx, f.client.B().Lrange().Key(key).Start(start).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("valkey: read %s: %w", key, err)
	}
	msgs := make([]models.Message, 0, len(items))
	for _, item := range items {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("valkey: decode %s entry: %w", key, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// NameStore is the display-name directory kept in a single hash.
type NameStore struct {
	client valkey.Client
}

func NewNameStore(client valkey.Client) *NameStore {
	return &NameStore{client: client}
}

func (s *NameStore) Get(ctx context.Context, id string) (string, error) {
	name, err := s.client.Do(ctx, s.client.B().Hget().Key(namesKey).Field(id).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("valkey: get name %s: %w", id, err)
	}
	return name, nil
}

func (s *NameStore) Set(ctx context.Context, id, name string) error {
	cmd := s.client.B().Hset().Key(namesKey).FieldValue().FieldValue(id, name).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey: set name %s: %w", id, err)
	}
	return nil
}
