package dms

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/scenyx-inbox/internal/api/respond"
	"github.com/Vasu1712/scenyx-inbox/internal/middleware"
	"github.com/Vasu1712/scenyx-inbox/internal/models"
	"github.com/Vasu1712/scenyx-inbox/internal/ws"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxBodyBytes        = 1 << 20
)

// Store is the durable message store behind the DM API.
type Store interface {
	ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error)
	GetMessages(ctx context.Context, ownerID, counterpartID string, limit int) ([]models.Message, error)
	AddMessage(ctx context.Context, ownerID, counterpartID, senderID string, d models.Draft) (models.Message, error)
	MarkRead(ctx context.Context, ownerID, counterpartID, viewerID string) error
}

type DMHandler struct {
	Store Store
	Hub   *ws.Hub
}

// Only the two parties of a thread may touch it.
func participant(viewerID, ownerID, counterpartID string) bool {
	return viewerID != "" && (viewerID == ownerID || viewerID == counterpartID)
}

func (h *DMHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.UserID(r.Context())
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		ownerID = viewer
	}
	if ownerID != viewer {
		respond.Error(w, http.StatusForbidden, respond.CodeAuth, "cannot list another store's conversations")
		return
	}
	convs, err := h.Store.ListConversations(r.Context(), ownerID)
	if err != nil {
		respond.Internal(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, convs)
}

func (h *DMHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID, counterpartID := q.Get("owner_id"), q.Get("counterpart_id")
	if ownerID == "" || counterpartID == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "owner_id and counterpart_id are required")
		return
	}
	if !participant(middleware.UserID(r.Context()), ownerID, counterpartID) {
		respond.Error(w, http.StatusForbidden, respond.CodeAuth, "not a participant")
		return
	}
	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	msgs, err := h.Store.GetMessages(r.Context(), ownerID, counterpartID, limit)
	if err != nil {
		respond.Internal(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, msgs)
}

// decodeSend reads and validates a send/publish body. It answers the request
// itself and reports false when the body is unusable.
func decodeSend(w http.ResponseWriter, r *http.Request) (models.SendRequest, bool) {
	var req models.SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "invalid request body")
		return req, false
	}
	if req.OwnerID == "" || req.CounterpartID == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "owner_id and counterpart_id are required")
		return req, false
	}
	if req.Draft.Empty() {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "message has no text and no attachments")
		return req, false
	}
	if !participant(middleware.UserID(r.Context()), req.OwnerID, req.CounterpartID) {
		respond.Error(w, http.StatusForbidden, respond.CodeAuth, "not a participant")
		return req, false
	}
	if req.Draft.Kind == "" {
		req.Draft.Kind = models.KindFor(req.Draft.Content, req.Draft.Attachments)
	}
	return req, true
}

func (h *DMHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSend(w, r)
	if !ok {
		return
	}
	sender := middleware.UserID(r.Context())
	msg, err := h.Store.AddMessage(r.Context(), req.OwnerID, req.CounterpartID, sender, req.Draft.Stored())
	if err != nil {
		respond.Internal(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Debug().Str("message_id", msg.ID).Str("counterpart_id", req.CounterpartID).Msg("Stored message")
	respond.JSON(w, http.StatusCreated, msg)
}

func (h *DMHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req models.ReadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.OwnerID == "" || req.CounterpartID == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "owner_id and counterpart_id are required")
		return
	}
	viewer := middleware.UserID(r.Context())
	if !participant(viewer, req.OwnerID, req.CounterpartID) {
		respond.Error(w, http.StatusForbidden, respond.CodeAuth, "not a participant")
		return
	}
	if err := h.Store.MarkRead(r.Context(), req.OwnerID, req.CounterpartID, viewer); err != nil {
		respond.Internal(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishMessage appends to the realtime feed and pushes the new snapshot to
// every subscriber of the pair. It does not touch the durable store. A draft
// carrying message_id and sent_at keeps that identity in the feed.
func (h *DMHandler) PublishMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSend(w, r)
	if !ok {
		return
	}
	topic := ws.Topic{OwnerID: req.OwnerID, CounterpartID: req.CounterpartID}
	msg, err := h.Hub.Publish(r.Context(), topic, middleware.UserID(r.Context()), req.Draft)
	if err != nil {
		respond.Internal(w, r, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, msg)
}

// Tokens authenticate the socket, so any origin may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS streams full snapshots of one pair: the current one on connect and
// a fresh one after every publish.
func (h *DMHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topic := ws.Topic{OwnerID: strings.TrimSpace(q.Get("owner_id")), CounterpartID: strings.TrimSpace(q.Get("counterpart_id"))}
	if topic.OwnerID == "" || topic.CounterpartID == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "owner_id and counterpart_id are required")
		return
	}
	viewer := middleware.UserID(r.Context())
	if !participant(viewer, topic.OwnerID, topic.CounterpartID) {
		respond.Error(w, http.StatusForbidden, respond.CodeAuth, "not a participant")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	client := ws.NewClient(viewer, topic, conn)
	if !h.Hub.Register(client) {
		client.Close()
		return
	}
	zerolog.Ctx(r.Context()).Debug().Str("client_id", client.ID).Str("topic", topic.Key()).Msg("Websocket subscribed")
	client.Serve(func() { h.Hub.Unregister(client) })
}
