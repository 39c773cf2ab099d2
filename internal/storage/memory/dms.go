package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

type thread struct {
	ownerID       string
	counterpartID string
	messages      []models.Message
}

// DMStore keeps store/customer threads in memory. It backs both the durable
// message API and, as a second instance, the in-memory realtime feed.
type DMStore struct {
	mu         sync.RWMutex
	threads    map[string]*thread  // owner:counterpart -> thread
	ownerIndex map[string][]string // ownerID -> thread keys
	now        func() time.Time
}

func NewDMStore() *DMStore {
	return &DMStore{
		threads:    make(map[string]*thread),
		ownerIndex: make(map[string][]string),
		now:        time.Now,
	}
}

func (s *DMStore) getOrCreate(ownerID, counterpartID string) *thread {
	key := models.ConversationKey(ownerID, counterpartID)
	if t, ok := s.threads[key]; ok {
		return t
	}
	t := &thread{ownerID: ownerID, counterpartID: counterpartID}
	s.threads[key] = t
	s.ownerIndex[ownerID] = append(s.ownerIndex[ownerID], key)
	return t
}

// ListConversations returns the owner's threads, most recent first. Unread
// counts cover messages the owner has not read.
func (s *DMStore) ListConversations(_ context.Context, ownerID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.ConversationSummary, 0, len(s.ownerIndex[ownerID]))
	for _, key := range s.ownerIndex[ownerID] {
		t := s.threads[key]
		sum := models.ConversationSummary{OwnerID: t.ownerID, CounterpartID: t.counterpartID}
		if n := len(t.messages); n > 0 {
			last := t.messages[n-1]
			sum.LastMessage = &last
		}
		for _, m := range t.messages {
			if m.SenderID != ownerID && !m.Read {
				sum.UnreadCount++
			}
		}
		result = append(result, sum)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return lastTime(result[i]).After(lastTime(result[j]))
	})
	return result, nil
}

func lastTime(s models.ConversationSummary) time.Time {
	if s.LastMessage == nil {
		return time.Time{}
	}
	return s.LastMessage.CreatedAt
}

// GetMessages returns the newest limit messages oldest first. A limit of zero
// or less returns the whole thread.
func (s *DMStore) GetMessages(_ context.Context, ownerID, counterpartID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[models.ConversationKey(ownerID, counterpartID)]
	if !ok {
		return []models.Message{}, nil
	}
	msgs := t.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...), nil
}

func (s *DMStore) AddMessage(_ context.Context, ownerID, counterpartID, senderID string, d models.Draft) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.getOrCreate(ownerID, counterpartID)
	now := s.now().UTC()
	if n := len(t.messages); n > 0 && !now.After(t.messages[n-1].CreatedAt) {
		now = t.messages[n-1].CreatedAt.Add(time.Microsecond)
	}
	if d.SentAt != nil {
		now = d.SentAt.UTC()
	}
	id := d.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	msg := models.Message{
		ID:            id,
		OwnerID:       ownerID,
		CounterpartID: counterpartID,
		SenderID:      senderID,
		Content:       d.Content,
		Kind:          d.Kind,
		Attachments:   d.Attachments,
		CreatedAt:     now,
	}
	t.messages = append(t.messages, msg)
	return msg, nil
}

// MarkRead flags every message in the thread not sent by viewerID as read.
func (s *DMStore) MarkRead(_ context.Context, ownerID, counterpartID, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[models.ConversationKey(ownerID, counterpartID)]
	if !ok {
		return nil
	}
	for i := range t.messages {
		if t.messages[i].SenderID != viewerID {
			t.messages[i].Read = true
		}
	}
	return nil
}
