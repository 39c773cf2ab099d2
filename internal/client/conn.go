package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Vasu1712/scenyx-inbox/internal/auth"
)

// Conn is an authenticated connection to the inbox services.
type Conn struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewConn(baseURL, token string, timeout time.Duration) *Conn {
	return &Conn{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CurrentUserID reads the user id from the configured token.
func (c *Conn) CurrentUserID() (string, error) {
	id, err := auth.SubjectUnverified(c.Token)
	if err != nil {
		return "", &Error{Op: "auth", Code: CodeAuth, Err: err}
	}
	return id, nil
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Conn) do(ctx context.Context, r request, out any) error {
	u := c.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return &Error{Op: r.op, Code: CodeInvalid, Err: err}
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{Op: r.op, Code: CodeNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		if eb.Error == "" {
			eb.Error = resp.Status
		}
		return &Error{Op: r.op, Code: codeFor(resp.StatusCode, eb.Code), Status: resp.StatusCode, Err: errors.New(eb.Error)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: r.op, Code: CodeServer, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}
