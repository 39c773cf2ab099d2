package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

// Durable talks to the message store API. It never retries.
type Durable struct {
	conn *Conn
}

func NewDurable(conn *Conn) *Durable {
	return &Durable{conn: conn}
}

func (d *Durable) ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	err := d.conn.do(ctx, request{
		op:     "list conversations",
		method: http.MethodGet,
		path:   "/api/v1/dms/conversations",
		query:  url.Values{"owner_id": {ownerID}},
	}, &out)
	return out, err
}

// GetMessages returns the newest limit messages, oldest first.
func (d *Durable) GetMessages(ctx context.Context, counterpartID, ownerID string, limit int) ([]models.Message, error) {
	q := url.Values{"owner_id": {ownerID}, "counterpart_id": {counterpartID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []models.Message
	err := d.conn.do(ctx, request{
		op:     "get messages",
		method: http.MethodGet,
		path:   "/api/v1/dms/messages",
		query:  q,
	}, &out)
	return out, err
}

func (d *Durable) SendMessage(ctx context.Context, counterpartID, ownerID string, draft models.Draft) (models.Message, error) {
	body, err := jsonBody(models.SendRequest{OwnerID: ownerID, CounterpartID: counterpartID, Draft: draft})
	if err != nil {
		return models.Message{}, &Error{Op: "send message", Code: CodeInvalid, Err: err}
	}
	var out models.Message
	err = d.conn.do(ctx, request{
		op:          "send message",
		method:      http.MethodPost,
		path:        "/api/v1/dms/messages",
		body:        body,
		contentType: "application/json",
	}, &out)
	return out, err
}

// MarkRead acknowledges every message of the pair. The server takes the
// viewer from the token; viewerID is only logged on failure.
func (d *Durable) MarkRead(ctx context.Context, counterpartID, ownerID, viewerID string) error {
	body, err := jsonBody(models.ReadRequest{OwnerID: ownerID, CounterpartID: counterpartID})
	if err != nil {
		return &Error{Op: "mark read", Code: CodeInvalid, Err: err}
	}
	return d.conn.do(ctx, request{
		op:          "mark read as " + viewerID,
		method:      http.MethodPost,
		path:        "/api/v1/dms/read",
		body:        body,
		contentType: "application/json",
	}, nil)
}
