package client

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

type Blobs struct {
	conn *Conn
}

func NewBlobs(conn *Conn) *Blobs {
	return &Blobs{conn: conn}
}

// Upload stores data and returns its public URL.
func (b *Blobs) Upload(ctx context.Context, data []byte, mimeHint string) (string, error) {
	if mimeHint == "" {
		mimeHint = "application/octet-stream"
	}
	var out models.UploadResult
	err := b.conn.do(ctx, request{
		op:          "upload",
		method:      http.MethodPost,
		path:        "/api/v1/uploads",
		body:        bytes.NewReader(data),
		contentType: mimeHint,
	}, &out)
	return out.URL, err
}

type Names struct {
	conn *Conn
}

func NewNames(conn *Conn) *Names {
	return &Names{conn: conn}
}

func (n *Names) Lookup(ctx context.Context, counterpartID string) (string, error) {
	var out models.DisplayName
	err := n.conn.do(ctx, request{
		op:     "lookup name",
		method: http.MethodGet,
		path:   "/api/v1/names/" + url.PathEscape(counterpartID),
	}, &out)
	return out.DisplayName, err
}
