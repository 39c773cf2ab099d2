package client

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

const (
	defaultReconnectDelay = 2 * time.Second
	pongWait              = 75 * time.Second
)

// Push subscribes to per-conversation snapshot streams over websockets and
// publishes to the realtime feed over HTTP.
type Push struct {
	conn           *Conn
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            zerolog.Logger
}

func NewPush(conn *Conn, reconnectDelay time.Duration, log zerolog.Logger) *Push {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &Push{
		conn:           conn,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: reconnectDelay,
		log:            log.With().Str("component", "push").Logger(),
	}
}

func (p *Push) Publish(ctx context.Context, counterpartID, ownerID string, draft models.Draft) error {
	body, err := jsonBody(models.SendRequest{OwnerID: ownerID, CounterpartID: counterpartID, Draft: draft})
	if err != nil {
		return &Error{Op: "publish", Code: CodeInvalid, Err: err}
	}
	return p.conn.do(ctx, request{
		op:          "publish",
		method:      http.MethodPost,
		path:        "/api/v1/push/messages",
		body:        body,
		contentType: "application/json",
	}, nil)
}

// Subscribe keeps a websocket open for the pair until the returned function is
// called, reconnecting after a fixed delay whenever it drops. No callback runs
// after unsubscribe returns.
func (p *Push) Subscribe(counterpartID, ownerID string, onSnapshot func([]models.Message)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{
		push:          p,
		counterpartID: counterpartID,
		ownerID:       ownerID,
		onSnapshot:    onSnapshot,
		done:          make(chan struct{}),
		log:           p.log.With().Str("counterpart_id", counterpartID).Logger(),
	}
	go s.run(ctx)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			s.closeConn()
			<-s.done
		})
	}
}

func (p *Push) streamURL(counterpartID, ownerID string) (string, error) {
	u, err := url.Parse(p.conn.BaseURL + "/ws/dms")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := url.Values{"owner_id": {ownerID}, "counterpart_id": {counterpartID}}
	if p.conn.Token != "" {
		q.Set("token", p.conn.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type stream struct {
	push          *Push
	counterpartID string
	ownerID       string
	onSnapshot    func([]models.Message)
	done          chan struct{}
	log           zerolog.Logger

	mu sync.Mutex
	ws *websocket.Conn
}

func (s *stream) run(ctx context.Context) {
	defer close(s.done)
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Dur("retry_in", s.push.reconnectDelay).Msg("Push stream dropped")
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.push.reconnectDelay):
		}
	}
}

func (s *stream) session(ctx context.Context) error {
	target, err := s.push.streamURL(s.counterpartID, s.ownerID)
	if err != nil {
		return err
	}
	ws, resp, err := s.push.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return &Error{Op: "subscribe", Code: codeFor(resp.StatusCode, ""), Status: resp.StatusCode, Err: err}
		}
		return &Error{Op: "subscribe", Code: CodeNetwork, Err: err}
	}
	if !s.setConn(ctx, ws) {
		return ctx.Err()
	}
	defer s.closeConn()

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	for {
		var snap models.Snapshot
		if err := ws.ReadJSON(&snap); err != nil {
			return &Error{Op: "subscribe", Code: CodeNetwork, Err: err}
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if snap.CounterpartID != "" && snap.CounterpartID != s.counterpartID {
			continue
		}
		s.onSnapshot(snap.Messages)
	}
}

func (s *stream) setConn(ctx context.Context, ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		_ = ws.Close()
		return false
	}
	s.ws = ws
	return true
}

func (s *stream) closeConn() {
	s.mu.Lock()
	ws := s.ws
	s.ws = nil
	s.mu.Unlock()
	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	}
}
