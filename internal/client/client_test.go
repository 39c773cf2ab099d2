package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-inbox/internal/auth"
	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDurableRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/dms/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "store-1", r.URL.Query().Get("owner_id"))
			assert.Equal(t, "cust-1", r.URL.Query().Get("counterpart_id"))
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			writeJSON(w, http.StatusOK, []map[string]any{
				{"id": "m1", "sender_id": "cust-1", "content": "hi", "kind": "TEXT", "attachments": nil},
				{"id": "m2", "sender_id": "cust-1", "kind": "IMAGE", "attachments": "https://cdn/x.png"},
			})
		case http.MethodPost:
			var req models.SendRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			writeJSON(w, http.StatusCreated, models.Message{ID: "m3", SenderID: req.OwnerID, Content: req.Draft.Content, Kind: req.Draft.Kind})
		}
	})
	mux.HandleFunc("/api/v1/dms/read", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDurable(NewConn(srv.URL, "tok", time.Second))
	msgs, err := d.GetMessages(context.Background(), "cust-1", "store-1", 20)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "https://cdn/x.png", msgs[1].Attachments[0].URL)

	echo, err := d.SendMessage(context.Background(), "cust-1", "store-1", models.Draft{Content: "hello", Kind: models.KindText})
	require.NoError(t, err)
	assert.Equal(t, "m3", echo.ID)

	assert.NoError(t, d.MarkRead(context.Background(), "cust-1", "store-1", "store-1"))
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   Code
	}{
		{http.StatusUnauthorized, `{"error":"expired"}`, CodeAuth},
		{http.StatusNotFound, `{"error":"nope","code":"NOT_FOUND"}`, CodeNotFound},
		{http.StatusRequestEntityTooLarge, `too big`, CodeSizeExceeded},
		{http.StatusUnsupportedMediaType, `{"error":"pdf","code":"TYPE_REJECTED"}`, CodeTypeRejected},
		{http.StatusBadRequest, `{"error":"empty","code":"VALIDATION"}`, CodeInvalid},
		{http.StatusInternalServerError, `{"error":"db down","code":"SERVER"}`, CodeServer},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		}))
		_, err := NewDurable(NewConn(srv.URL, "", time.Second)).ListConversations(context.Background(), "store-1")
		srv.Close()

		var ce *Error
		require.True(t, errors.As(err, &ce), tc.body)
		assert.Equal(t, tc.want, ce.Code, tc.body)
		assert.Equal(t, tc.status, ce.Status)
		assert.Equal(t, string(tc.want), ce.ErrorCode())
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewNames(NewConn(url, "", time.Second)).Lookup(context.Background(), "cust-1")
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeNetwork, ce.Code)
}

func TestBlobsAndNames(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/uploads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "pixels", string(body))
		writeJSON(w, http.StatusCreated, models.UploadResult{URL: "https://cdn/abc.png", MediaType: models.MediaImage})
	})
	mux.HandleFunc("/api/v1/names/cust-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.DisplayName{DisplayName: "Alice"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	conn := NewConn(srv.URL, "", time.Second)

	url, err := NewBlobs(conn).Upload(context.Background(), []byte("pixels"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/abc.png", url)

	name, err := NewNames(conn).Lookup(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)
}

func TestCurrentUserID(t *testing.T) {
	token, err := auth.NewManager("k", time.Hour).Issue("store-9")
	require.NoError(t, err)

	id, err := NewConn("http://x", token, time.Second).CurrentUserID()
	require.NoError(t, err)
	assert.Equal(t, "store-9", id)

	_, err = NewConn("http://x", "", time.Second).CurrentUserID()
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeAuth, ce.Code)
}

func TestPushSubscribeReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var sessions atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/dms", r.URL.Path)
		assert.Equal(t, "cust-1", r.URL.Query().Get("counterpart_id"))
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := sessions.Add(1)
		_ = ws.WriteJSON(models.Snapshot{
			OwnerID:       "store-1",
			CounterpartID: "cust-1",
			Messages:      []models.Message{{ID: "m1", Content: "session"}},
		})
		if n == 1 {
			// Drop the first session to force a reconnect.
			_ = ws.Close()
			return
		}
		_, _, _ = ws.ReadMessage()
		_ = ws.Close()
	}))
	defer srv.Close()

	p := NewPush(NewConn(srv.URL, "tok", time.Second), 20*time.Millisecond, zerolog.Nop())
	got := make(chan []models.Message, 8)
	stop := p.Subscribe("cust-1", "store-1", func(msgs []models.Message) { got <- msgs })

	for i := 0; i < 2; i++ {
		select {
		case msgs := <-got:
			require.Len(t, msgs, 1)
			assert.Equal(t, "m1", msgs[0].ID)
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot received")
		}
	}
	stop()
	stop()
	assert.GreaterOrEqual(t, sessions.Load(), int32(2))
}

func TestPushPublish(t *testing.T) {
	var got models.SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/push/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewPush(NewConn(srv.URL, "", time.Second), 0, zerolog.Nop())
	err := p.Publish(context.Background(), "cust-1", "store-1", models.Draft{Content: "hey", Kind: models.KindText})
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CounterpartID)
	assert.Equal(t, "hey", got.Draft.Content)
}
