package inbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

// DurableChannel is the authoritative, pull-based message store.
type DurableChannel interface {
	ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error)
	GetMessages(ctx context.Context, counterpartID, ownerID string, limit int) ([]models.Message, error)
	SendMessage(ctx context.Context, counterpartID, ownerID string, draft models.Draft) (models.Message, error)
	MarkRead(ctx context.Context, counterpartID, ownerID, viewerID string) error
}

// PushChannel delivers the full ordered message list of a conversation every
// time it changes.
type PushChannel interface {
	Subscribe(counterpartID, ownerID string, onSnapshot func([]models.Message)) (unsubscribe func())
	Publish(ctx context.Context, counterpartID, ownerID string, draft models.Draft) error
}

// BlobStore uploads attachment bytes and returns the public URL.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, mimeHint string) (string, error)
}

type Auth interface {
	CurrentUserID() (string, error)
}

type Options struct {
	HistoryLimit       int
	SearchDebounce     time.Duration
	NameTimeout        time.Duration
	PublishRetries     int
	RequirePushConfirm bool
	Now                func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.SearchDebounce <= 0 {
		o.SearchDebounce = defaultSearchDebounce
	}
	if o.NameTimeout <= 0 {
		o.NameTimeout = 5 * time.Second
	}
	if o.PublishRetries < 0 {
		o.PublishRetries = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type subscription struct {
	closed atomic.Bool
	stop   func()
}

// Engine keeps the seller's conversation list and the selected conversation
// consistent across the durable and push channels.
type Engine struct {
	ownerID  string
	durable  DurableChannel
	push     PushChannel
	resolver *Resolver
	registry *Registry
	composer *Composer
	search   *Search
	opts     Options
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	subs     map[string]*subscription
	loadErr  error
	onChange func()
}

func NewEngine(auth Auth, durable DurableChannel, push PushChannel, blobs BlobStore, names NameDirectory, opts Options, log zerolog.Logger) (*Engine, error) {
	ownerID, err := auth.CurrentUserID()
	if err != nil {
		return nil, &Error{Kind: KindAuth, Op: "auth", Err: err}
	}
	opts = opts.withDefaults()
	log = log.With().Str("component", "inbox").Str("owner_id", ownerID).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ownerID:  ownerID,
		durable:  durable,
		push:     push,
		resolver: NewResolver(names, opts.NameTimeout, log),
		registry: NewRegistry(ownerID),
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]*subscription),
	}
	e.composer = &Composer{
		ownerID:        ownerID,
		durable:        durable,
		push:           push,
		blobs:          blobs,
		registry:       e.registry,
		publishRetries: opts.PublishRetries,
		requirePush:    opts.RequirePushConfirm,
		now:            opts.Now,
		log:            log,
	}
	e.search = NewSearch(opts.SearchDebounce, e.changed)
	e.registry.OnChange(e.changed)
	return e, nil
}

func (e *Engine) OwnerID() string {
	return e.ownerID
}

// OnChange registers a callback fired whenever visible state changes.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

func (e *Engine) changed() {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Load fetches the conversation list, resolves names, opens one push
// subscription per conversation and selects the first one if nothing is
// selected. On failure the list is emptied and LoadError reports why; Load
// may simply be called again.
func (e *Engine) Load(ctx context.Context) error {
	summaries, err := e.durable.ListConversations(ctx, e.ownerID)
	if err != nil {
		err = wrap("load", err)
		e.log.Error().Err(err).Msg("Failed to load conversations")
		e.setLoadErr(err)
		e.registry.Replace(nil)
		e.syncSubscriptions()
		return err
	}

	convs := make([]Conversation, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, s := range summaries {
		i, s := i, s
		convs[i] = e.toConversation(s)
		g.Go(func() error {
			convs[i].DisplayName = e.resolver.Resolve(gctx, s.CounterpartID)
			return nil
		})
	}
	_ = g.Wait()

	e.setLoadErr(nil)
	e.registry.Replace(convs)
	e.syncSubscriptions()
	e.log.Info().Int("conversations", len(convs)).Msg("Loaded conversations")

	if e.registry.Selected() == "" {
		if ids := e.registry.IDs(); len(ids) > 0 {
			return e.SelectConversation(ids[0])
		}
	}
	return nil
}

func (e *Engine) toConversation(s models.ConversationSummary) Conversation {
	c := Conversation{CounterpartID: s.CounterpartID, UnreadCount: s.UnreadCount}
	if s.LastMessage != nil {
		m := *s.LastMessage
		m.TagSender(e.ownerID)
		c.LastMessagePreview = FormatPreview(m)
		c.LastMessageTime = m.CreatedAt
		c.LastMessageSender = m.SenderType
		c.lastMessage = m
	}
	return c
}

func (e *Engine) setLoadErr(err error) {
	e.mu.Lock()
	e.loadErr = err
	e.mu.Unlock()
}

func (e *Engine) LoadError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// syncSubscriptions opens subscriptions for new conversations and tears down
// the ones that left the registry.
func (e *Engine) syncSubscriptions() {
	want := make(map[string]bool)
	for _, id := range e.registry.IDs() {
		want[id] = true
	}

	e.mu.Lock()
	var stale []func()
	for id, sub := range e.subs {
		if !want[id] {
			sub.closed.Store(true)
			if sub.stop != nil {
				stale = append(stale, sub.stop)
			}
			delete(e.subs, id)
		}
	}
	var added []string
	for id := range want {
		if _, ok := e.subs[id]; !ok {
			e.subs[id] = &subscription{}
			added = append(added, id)
		}
	}
	e.mu.Unlock()

	for _, stop := range stale {
		stop()
	}
	for _, id := range added {
		e.subscribe(id)
	}
}

func (e *Engine) subscribe(counterpartID string) {
	e.mu.Lock()
	sub, ok := e.subs[counterpartID]
	e.mu.Unlock()
	if !ok {
		return
	}
	stop := e.push.Subscribe(counterpartID, e.ownerID, func(msgs []models.Message) {
		if sub.closed.Load() {
			return
		}
		e.registry.ApplySnapshot(counterpartID, msgs)
	})

	e.mu.Lock()
	current, ok := e.subs[counterpartID]
	if ok && current == sub {
		sub.stop = stop
		stop = nil
	}
	e.mu.Unlock()
	if stop != nil {
		sub.closed.Store(true)
		stop()
	}
}

// SelectConversation opens a conversation: its unread counter drops to zero
// at once, history is fetched if it was never loaded and the read receipt is
// sent in the background.
func (e *Engine) SelectConversation(counterpartID string) error {
	needsHistory, seq, ok := e.registry.Select(counterpartID)
	if !ok {
		return &Error{Kind: KindValidation, Op: "select", Err: ErrUnknownConversation}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.durable.MarkRead(e.ctx, counterpartID, e.ownerID, e.ownerID); err != nil {
			e.log.Warn().Err(err).Str("counterpart_id", counterpartID).Msg("Failed to mark conversation read")
		}
	}()

	if needsHistory {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			msgs, err := e.durable.GetMessages(e.ctx, counterpartID, e.ownerID, e.opts.HistoryLimit)
			if err != nil {
				err = wrap("history", err)
				e.log.Error().Err(err).Str("counterpart_id", counterpartID).Msg("Failed to load message history")
			}
			e.registry.CompleteHistory(counterpartID, seq, msgs, err)
		}()
	}
	return nil
}

// Send delivers d to the selected conversation.
func (e *Engine) Send(ctx context.Context, d Draft) (models.Message, error) {
	id := e.registry.Selected()
	if id == "" {
		return models.Message{}, &Error{Kind: KindValidation, Op: "send", Err: ErrNoSelection}
	}
	return e.composer.Send(ctx, id, d)
}

func (e *Engine) Search(term string) {
	e.search.Set(term)
}

func (e *Engine) SearchTerm() string {
	return e.search.Term()
}

// Conversations is the full sorted list, ignoring the search term.
func (e *Engine) Conversations() []Conversation {
	return e.registry.Conversations()
}

// Visible is the sorted list narrowed by the settled search term.
func (e *Engine) Visible() []Conversation {
	return e.search.Filter(e.registry.Conversations())
}

func (e *Engine) Conversation(counterpartID string) (Conversation, bool) {
	return e.registry.Conversation(counterpartID)
}

func (e *Engine) Selected() string {
	return e.registry.Selected()
}

// Messages returns the selected conversation's messages, oldest first.
func (e *Engine) Messages() []models.Message {
	id := e.registry.Selected()
	if id == "" {
		return nil
	}
	return e.registry.Messages(id)
}

func (e *Engine) LogState(counterpartID string) LogState {
	return e.registry.LogState(counterpartID)
}

func (e *Engine) HistoryError(counterpartID string) error {
	return e.registry.HistoryError(counterpartID)
}

func (e *Engine) TotalUnread() int {
	return e.registry.TotalUnread()
}

func (e *Engine) Composer() *Composer {
	return e.composer
}

// Close tears down every subscription and waits for background calls.
func (e *Engine) Close() {
	e.cancel()
	e.search.Stop()

	e.mu.Lock()
	var stops []func()
	for _, sub := range e.subs {
		sub.closed.Store(true)
		if sub.stop != nil {
			stops = append(stops, sub.stop)
		}
	}
	e.subs = make(map[string]*subscription)
	e.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	e.wg.Wait()
}
