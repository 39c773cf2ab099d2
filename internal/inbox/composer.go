package inbox

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

const maxParallelUploads = 4

// LocalFile is an attachment the user picked but that is not uploaded yet.
type LocalFile struct {
	Name     string
	Data     []byte
	MimeHint string
}

// Draft is what the user has typed and attached in the input box.
type Draft struct {
	Text        string
	Attachments []LocalFile
}

func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && len(d.Attachments) == 0
}

func (d Draft) clone() Draft {
	d.Attachments = slices.Clone(d.Attachments)
	return d
}

// Composer turns drafts into messages: upload, classify, durable write, push
// publish. A failed send puts the draft back so nothing the user typed is lost.
type Composer struct {
	ownerID        string
	durable        DurableChannel
	push           PushChannel
	blobs          BlobStore
	registry       *Registry
	publishRetries int
	requirePush    bool
	now            func() time.Time
	log            zerolog.Logger

	mu    sync.Mutex
	draft Draft
}

func (c *Composer) SetDraft(d Draft) {
	c.mu.Lock()
	c.draft = d.clone()
	c.mu.Unlock()
}

// Draft returns the retained input, which is restored after a failed send.
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.clone()
}

func (c *Composer) restore(d Draft) {
	c.mu.Lock()
	c.draft = d
	c.mu.Unlock()
}

// Send delivers d to counterpartID. The durable write must succeed before the
// push publish is attempted.
func (c *Composer) Send(ctx context.Context, counterpartID string, d Draft) (models.Message, error) {
	if d.Empty() {
		return models.Message{}, &Error{Kind: KindValidation, Op: "send", Err: ErrEmptyDraft}
	}
	d = d.clone()
	c.SetDraft(Draft{})

	atts, err := c.upload(ctx, d.Attachments)
	if err != nil {
		c.restore(d)
		return models.Message{}, err
	}

	out := models.Draft{
		Content:     d.Text,
		Kind:        models.KindFor(d.Text, atts),
		Attachments: atts,
	}
	key, ok := c.registry.AddPending(counterpartID, models.Message{
		OwnerID:       c.ownerID,
		CounterpartID: counterpartID,
		SenderID:      c.ownerID,
		Content:       out.Content,
		Kind:          out.Kind,
		Attachments:   out.Attachments,
		CreatedAt:     c.now(),
	})
	if !ok {
		c.restore(d)
		return models.Message{}, &Error{Kind: KindValidation, Op: "send", Err: ErrUnknownConversation}
	}

	echo, err := c.durable.SendMessage(ctx, counterpartID, c.ownerID, out)
	if err != nil {
		c.registry.DropPending(counterpartID, key)
		c.restore(d)
		return models.Message{}, wrap("send", err)
	}
	if echo.CreatedAt.IsZero() {
		echo.CreatedAt = c.now()
	}

	out.MessageID = echo.ID
	out.SentAt = &echo.CreatedAt
	pubErr := c.publish(ctx, counterpartID, out)
	c.registry.ConfirmSend(counterpartID, key, echo)
	if pubErr != nil {
		if c.requirePush {
			return echo, &Error{Kind: KindPartialWrite, Op: "send", Err: pubErr}
		}
		c.log.Warn().Err(pubErr).Str("counterpart_id", counterpartID).Msg("Message stored but push publish failed")
	}
	return echo, nil
}

// upload pushes every attachment to the blob store. The first failure cancels
// the rest and fails the whole send.
func (c *Composer) upload(ctx context.Context, files []LocalFile) ([]models.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	atts := make([]models.Attachment, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			mime := f.MimeHint
			if mime == "" {
				mime = mimetype.Detect(f.Data).String()
			}
			url, err := c.blobs.Upload(gctx, f.Data, mime)
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Name, err)
			}
			att := models.Attachment{URL: url}
			if mt, ok := mediaTypeForMIME(mime); ok {
				att.MediaType = mt
			} else {
				att.MediaType = Classify(att)
			}
			atts[i] = att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &Error{Kind: KindOf(err), Op: "upload", Err: err}
	}
	return atts, nil
}

func (c *Composer) publish(ctx context.Context, counterpartID string, d models.Draft) error {
	var err error
	for attempt := 0; attempt <= c.publishRetries; attempt++ {
		if err = c.push.Publish(ctx, counterpartID, c.ownerID, d); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		c.log.Debug().Err(err).Int("attempt", attempt+1).Str("counterpart_id", counterpartID).Msg("Push publish failed")
	}
	return err
}
