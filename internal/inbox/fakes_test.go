package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

type fakeAuth struct {
	id  string
	err error
}

func (a fakeAuth) CurrentUserID() (string, error) { return a.id, a.err }

type fakeDurable struct {
	mu         sync.Mutex
	summaries  []models.ConversationSummary
	history    map[string][]models.Message
	listErr    error
	historyErr error
	sendErr    error
	sent       []models.Draft
	reads      []string
	seq        int
	now        time.Time
}

func (d *fakeDurable) ListConversations(_ context.Context, _ string) ([]models.ConversationSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	return append([]models.ConversationSummary(nil), d.summaries...), nil
}

func (d *fakeDurable) GetMessages(_ context.Context, counterpartID, _ string, _ int) ([]models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.historyErr != nil {
		return nil, d.historyErr
	}
	return append([]models.Message(nil), d.history[counterpartID]...), nil
}

func (d *fakeDurable) SendMessage(_ context.Context, counterpartID, ownerID string, draft models.Draft) (models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return models.Message{}, d.sendErr
	}
	d.seq++
	d.sent = append(d.sent, draft)
	return models.Message{
		ID:            fmt.Sprintf("srv-%d", d.seq),
		OwnerID:       ownerID,
		CounterpartID: counterpartID,
		SenderID:      ownerID,
		Content:       draft.Content,
		Kind:          draft.Kind,
		Attachments:   draft.Attachments,
		CreatedAt:     d.now,
	}, nil
}

func (d *fakeDurable) MarkRead(_ context.Context, counterpartID, _, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads = append(d.reads, counterpartID)
	return nil
}

func (d *fakeDurable) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *fakeDurable) readsOf(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.reads {
		if r == id {
			n++
		}
	}
	return n
}

type fakePush struct {
	mu           sync.Mutex
	subs         map[string]func([]models.Message)
	unsubscribed []string
	publishErr   error
	published    int
	lastDraft    models.Draft
}

func newFakePush() *fakePush {
	return &fakePush{subs: make(map[string]func([]models.Message))}
}

func (p *fakePush) Subscribe(counterpartID, _ string, fn func([]models.Message)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[counterpartID] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.unsubscribed = append(p.unsubscribed, counterpartID)
	}
}

func (p *fakePush) Publish(_ context.Context, _, _ string, d models.Draft) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published++
	p.lastDraft = d
	return p.publishErr
}

// deliver invokes the callback registered for counterpartID, even if it was
// unsubscribed since, the way a late network frame would.
func (p *fakePush) deliver(counterpartID string, msgs []models.Message) {
	p.mu.Lock()
	fn := p.subs[counterpartID]
	p.mu.Unlock()
	if fn != nil {
		fn(msgs)
	}
}

func (p *fakePush) publishCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

type fakeBlobs struct {
	mu       sync.Mutex
	uploaded []string
}

func (b *fakeBlobs) Upload(_ context.Context, data []byte, mimeHint string) (string, error) {
	if string(data) == "bad" {
		return "", codedErr("SIZE_EXCEEDED")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	url := fmt.Sprintf("https://cdn.test/%d", len(b.uploaded))
	switch mimeHint {
	case "video/mp4":
		url += ".mp4"
	default:
		url += ".bin"
	}
	b.uploaded = append(b.uploaded, url)
	return url, nil
}

// codedErr mimics a transport error carrying a wire error code.
type codedErr string

func (c codedErr) Error() string     { return "rejected: " + string(c) }
func (c codedErr) ErrorCode() string { return string(c) }
