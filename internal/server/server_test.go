package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-inbox/internal/client"
	"github.com/Vasu1712/scenyx-inbox/internal/config"
	"github.com/Vasu1712/scenyx-inbox/internal/inbox"
	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func startServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Uploads.Dir = t.TempDir()
	cfg.Names.Seed = map[string]string{"cust-1": "Ada Lovelace"}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	go s.Hub().Run(ctx)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
		_ = s.Close()
	})
	return s, ts
}

func connAs(t *testing.T, s *Server, ts *httptest.Server, userID string) *client.Conn {
	t.Helper()
	token, err := s.Tokens().Issue(userID)
	require.NoError(t, err)
	return client.NewConn(ts.URL, token, 5*time.Second)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(context.Background(), config.Default(), zerolog.Nop())
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestHealthAndPreflight(t *testing.T) {
	_, ts := startServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/dms/messages", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(ts.URL + "/api/v1/dms/conversations")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadAndNamesThroughClient(t *testing.T) {
	s, ts := startServer(t)
	conn := connAs(t, s, ts, "store-1")

	raw, err := client.NewBlobs(conn).Upload(context.Background(), pngHeader, "image/png")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Path, "/uploads/"))
	assert.Equal(t, ".png", path.Ext(u.Path))
	resp, err := http.Get(ts.URL + u.Path)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = client.NewBlobs(conn).Upload(context.Background(), []byte("plain text"), "text/plain")
	assert.Equal(t, inbox.KindUpload, inbox.KindOf(err))

	name, err := client.NewNames(conn).Lookup(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", name)

	_, err = client.NewNames(conn).Lookup(context.Background(), "cust-404")
	var cerr *client.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, client.CodeNotFound, cerr.Code)
}

func TestInboxUnselectedUnreadMatchesDurable(t *testing.T) {
	s, ts := startServer(t)
	ctx := context.Background()

	// cust-1 publishes without the stored identity, so its feed copy is
	// stamped later than the durable one.
	cust1 := connAs(t, s, ts, "cust-1")
	first := models.Draft{Content: "is the blue one in stock?", Kind: models.KindText}
	stored1, err := client.NewDurable(cust1).SendMessage(ctx, "cust-1", "store-1", first)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, client.NewPush(cust1, 0, zerolog.Nop()).Publish(ctx, "cust-1", "store-1", first))

	// cust-2 publishes the way the composer does, carrying the stored id.
	cust2 := connAs(t, s, ts, "cust-2")
	second := models.Draft{Content: "do you ship abroad?", Kind: models.KindText}
	stored2, err := client.NewDurable(cust2).SendMessage(ctx, "cust-2", "store-1", second)
	require.NoError(t, err)
	second.MessageID, second.SentAt = stored2.ID, &stored2.CreatedAt
	require.NoError(t, client.NewPush(cust2, 0, zerolog.Nop()).Publish(ctx, "cust-2", "store-1", second))

	store := connAs(t, s, ts, "store-1")
	e, err := inbox.NewEngine(store, client.NewDurable(store),
		client.NewPush(store, 50*time.Millisecond, zerolog.Nop()),
		client.NewBlobs(store), client.NewNames(store),
		inbox.Options{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(e.Close)

	require.NoError(t, e.Load(ctx))
	require.Equal(t, "cust-2", e.Selected())
	conv, _ := e.Conversation("cust-1")
	require.Equal(t, 1, conv.UnreadCount)

	// Wait for cust-1's first snapshot to land: it moves the row time to the
	// feed's stamp but must not count the message again.
	require.Eventually(t, func() bool {
		c, _ := e.Conversation("cust-1")
		return c.LastMessageTime.After(stored1.CreatedAt)
	}, 3*time.Second, 10*time.Millisecond)
	conv, _ = e.Conversation("cust-1")
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, 1, e.TotalUnread())

	// cust-2's feed copy shares the stored id, so the open thread shows it once.
	require.Eventually(t, func() bool { return e.LogState("cust-2") == inbox.Synced }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		m := e.Messages()
		return len(m) == 1 && m[0].ID == stored2.ID
	}, 3*time.Second, 10*time.Millisecond)

	// A genuinely new message still counts.
	require.NoError(t, client.NewPush(cust1, 0, zerolog.Nop()).Publish(ctx, "cust-1", "store-1",
		models.Draft{Content: "hello?", Kind: models.KindText}))
	require.Eventually(t, func() bool {
		c, _ := e.Conversation("cust-1")
		return c.UnreadCount == 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestInboxEndToEnd(t *testing.T) {
	s, ts := startServer(t)
	ctx := context.Background()

	customer := connAs(t, s, ts, "cust-1")
	hello := models.Draft{Content: "is the blue one in stock?", Kind: models.KindText}
	_, err := client.NewDurable(customer).SendMessage(ctx, "cust-1", "store-1", hello)
	require.NoError(t, err)
	require.NoError(t, client.NewPush(customer, 0, zerolog.Nop()).Publish(ctx, "cust-1", "store-1", hello))

	store := connAs(t, s, ts, "store-1")
	e, err := inbox.NewEngine(store, client.NewDurable(store),
		client.NewPush(store, 50*time.Millisecond, zerolog.Nop()),
		client.NewBlobs(store), client.NewNames(store),
		inbox.Options{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(e.Close)

	require.NoError(t, e.Load(ctx))
	assert.Equal(t, "cust-1", e.Selected())
	conv, ok := e.Conversation("cust-1")
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", conv.DisplayName)
	assert.Equal(t, 0, conv.UnreadCount)

	require.Eventually(t, func() bool { return e.LogState("cust-1") == inbox.Synced }, 3*time.Second, 10*time.Millisecond)
	// The durable and realtime copies of the same message collapse into one.
	require.Eventually(t, func() bool { return len(e.Messages()) == 1 }, 3*time.Second, 10*time.Millisecond)

	_, err = e.Send(ctx, inbox.Draft{Text: "yes, in all sizes"})
	require.NoError(t, err)
	msgs := e.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderSelf, msgs[1].SenderType)

	require.NoError(t, client.NewPush(customer, 0, zerolog.Nop()).Publish(ctx, "cust-1", "store-1",
		models.Draft{Content: "great, ordering now", Kind: models.KindText}))
	require.Eventually(t, func() bool {
		m := e.Messages()
		return len(m) == 3 && m[2].Content == "great, ordering now"
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, e.TotalUnread())

	conv, _ = e.Conversation("cust-1")
	assert.Equal(t, "great, ordering now", conv.LastMessagePreview)

	require.Eventually(t, func() bool {
		summaries, err := client.NewDurable(store).ListConversations(ctx, "store-1")
		return err == nil && len(summaries) == 1 && summaries[0].UnreadCount == 0
	}, 3*time.Second, 10*time.Millisecond)
}
