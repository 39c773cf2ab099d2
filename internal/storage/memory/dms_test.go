package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

func text(s string) models.Draft {
	return models.Draft{Content: s, Kind: models.KindText}
}

func TestDMStoreThreads(t *testing.T) {
	ctx := context.Background()
	s := NewDMStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	_, err := s.AddMessage(ctx, "store", "alice", "alice", text("hi"))
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "store", "bob", "bob", text("hello"))
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "store", "bob", "store", text("hey bob"))
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "store", "alice", "alice", text("still there?"))
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx, "store")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "alice", convs[0].CounterpartID)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.Equal(t, "still there?", convs[0].LastMessage.Content)
	assert.Equal(t, 1, convs[1].UnreadCount)

	require.NoError(t, s.MarkRead(ctx, "store", "alice", "store"))
	convs, _ = s.ListConversations(ctx, "store")
	assert.Equal(t, 0, convs[0].UnreadCount)

	empty, err := s.ListConversations(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDMStoreGetMessagesLimit(t *testing.T) {
	ctx := context.Background()
	s := NewDMStore()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	for _, c := range []string{"1", "2", "3", "4"} {
		_, err := s.AddMessage(ctx, "store", "alice", "alice", text(c))
		require.NoError(t, err)
	}
	msgs, err := s.GetMessages(ctx, "store", "alice", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "3", msgs[0].Content)
	assert.Equal(t, "4", msgs[1].Content)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt), "timestamps stay strictly increasing")

	all, _ := s.GetMessages(ctx, "store", "alice", 0)
	assert.Len(t, all, 4)

	none, err := s.GetMessages(ctx, "store", "carol", 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
