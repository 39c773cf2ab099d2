package inbox

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

// LogState tracks whether a conversation's history has been fetched.
type LogState int

const (
	UnseenLogs LogState = iota
	LoadingLogs
	Synced
)

func (s LogState) String() string {
	switch s {
	case LoadingLogs:
		return "LOADING_LOGS"
	case Synced:
		return "SYNCED"
	default:
		return "UNSEEN_LOGS"
	}
}

// matchWindow is how far apart two copies of the same message may be
// timestamped by different channels and still be treated as one.
const matchWindow = 10 * time.Second

// Conversation is one row of the inbox list.
type Conversation struct {
	CounterpartID      string
	DisplayName        string
	LastMessagePreview string
	LastMessageTime    time.Time
	LastMessageSender  models.SenderType
	UnreadCount        int

	// lastMessage is the message the preview was taken from, when known.
	lastMessage models.Message
}

type pendingMsg struct {
	key uint64
	msg models.Message
}

type convState struct {
	Conversation
	logs       LogState
	loadSeq    uint64
	historyErr error
	lastLive   bool // lastMessage came from a push snapshot

	durable []models.Message // history page plus confirmed sends
	live    []models.Message // latest push snapshot, replaced wholesale
	pending []pendingMsg
}

// Registry is the single owner of conversation state. Every mutation goes
// through its mutex; the selection cell is read at merge time, never captured.
type Registry struct {
	selfID string

	mu       sync.Mutex
	list     []*convState
	byID     map[string]*convState
	selected string
	seq      uint64
	onChange func()
}

func NewRegistry(selfID string) *Registry {
	return &Registry{
		selfID: selfID,
		byID:   make(map[string]*convState),
	}
}

// OnChange registers a callback fired after every state transition, outside
// the registry lock.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Registry) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Replace installs a fresh conversation list from the durable channel.
// Message state of conversations that survive the reload is kept.
func (r *Registry) Replace(convs []Conversation) {
	r.mu.Lock()
	byID := make(map[string]*convState, len(convs))
	list := make([]*convState, 0, len(convs))
	for _, c := range convs {
		if _, dup := byID[c.CounterpartID]; dup {
			continue
		}
		st, ok := r.byID[c.CounterpartID]
		if !ok {
			st = &convState{Conversation: c}
		} else {
			if c.DisplayName != "" {
				st.DisplayName = c.DisplayName
			}
			if c.LastMessageTime.After(st.LastMessageTime) {
				st.LastMessagePreview = c.LastMessagePreview
				st.LastMessageTime = c.LastMessageTime
				st.LastMessageSender = c.LastMessageSender
				st.lastMessage = c.lastMessage
				st.lastLive = false
			}
			st.UnreadCount = c.UnreadCount
		}
		byID[c.CounterpartID] = st
		list = append(list, st)
	}
	r.byID = byID
	r.list = list
	if _, ok := r.byID[r.selected]; !ok {
		r.selected = ""
	}
	r.settle()
	r.mu.Unlock()
	r.notify()
}

func (r *Registry) SetDisplayName(counterpartID, name string) {
	r.mu.Lock()
	st, ok := r.byID[counterpartID]
	if ok {
		st.DisplayName = name
	}
	r.mu.Unlock()
	if ok {
		r.notify()
	}
}

// Select makes counterpartID the current conversation and zeroes its unread
// counter immediately. needsHistory reports that the caller must fetch
// history and hand it back with CompleteHistory(counterpartID, seq, ...).
func (r *Registry) Select(counterpartID string) (needsHistory bool, seq uint64, ok bool) {
	r.mu.Lock()
	st, ok := r.byID[counterpartID]
	if !ok {
		r.mu.Unlock()
		return false, 0, false
	}
	st.UnreadCount = 0
	r.selected = counterpartID
	if st.logs == UnseenLogs {
		r.seq++
		st.logs = LoadingLogs
		st.loadSeq = r.seq
		st.historyErr = nil
		needsHistory, seq = true, r.seq
	}
	r.settle()
	r.mu.Unlock()
	r.notify()
	return needsHistory, seq, true
}

// CompleteHistory stores a finished history fetch. Results whose sequence no
// longer matches the conversation's latest fetch are dropped.
func (r *Registry) CompleteHistory(counterpartID string, seq uint64, msgs []models.Message, err error) bool {
	r.mu.Lock()
	st, ok := r.byID[counterpartID]
	if !ok || st.loadSeq != seq || st.logs != LoadingLogs {
		r.mu.Unlock()
		return false
	}
	if err != nil {
		st.logs = UnseenLogs
		st.historyErr = err
		r.mu.Unlock()
		r.notify()
		return true
	}
	st.durable = r.tagged(msgs)
	st.logs = Synced
	st.historyErr = nil
	if latest, ok := latestOf(st.durable); ok {
		r.advance(st, latest, false)
	}
	r.settle()
	r.mu.Unlock()
	r.notify()
	return true
}

// ApplySnapshot merges a push snapshot for one conversation.
func (r *Registry) ApplySnapshot(counterpartID string, msgs []models.Message) {
	r.mu.Lock()
	st, ok := r.byID[counterpartID]
	if !ok {
		r.mu.Unlock()
		return
	}
	st.live = r.tagged(msgs)
	st.pending = slices.DeleteFunc(st.pending, func(p pendingMsg) bool {
		return slices.ContainsFunc(st.live, func(m models.Message) bool { return sameMessage(p.msg, m) })
	})
	if latest, ok := latestOf(st.live); ok {
		r.advance(st, latest, true)
	}
	r.settle()
	r.mu.Unlock()
	r.notify()
}

// AddPending shows an outgoing message before any channel has confirmed it.
func (r *Registry) AddPending(counterpartID string, msg models.Message) (uint64, bool) {
	r.mu.Lock()
	st, ok := r.byID[counterpartID]
	if !ok {
		r.mu.Unlock()
		return 0, false
	}
	r.seq++
	key := r.seq
	msg.ID = ""
	msg.SenderType = models.SenderSelf
	st.pending = append(st.pending, pendingMsg{key: key, msg: msg})
	r.mu.Unlock()
	r.notify()
	return key, true
}

func (r *Registry) DropPending(counterpartID string, key uint64) {
	r.mu.Lock()
	st, ok := r.byID[counterpartID]
	if ok {
		st.pending = slices.DeleteFunc(st.pending, func(p pendingMsg) bool { return p.key == key })
	}
	r.mu.Unlock()
	if ok {
		r.notify()
	}
}

// ConfirmSend replaces a pending message with its authoritative echo and
// moves the conversation preview forward without waiting for the push echo.
func (r *Registry) ConfirmSend(counterpartID string, key uint64, echo models.Message) {
	r.mu.Lock()
	st, ok := r.byID[counterpartID]
	if !ok {
		r.mu.Unlock()
		return
	}
	st.pending = slices.DeleteFunc(st.pending, func(p pendingMsg) bool { return p.key == key })
	echo.SenderType = models.SenderSelf
	if !slices.ContainsFunc(st.durable, func(m models.Message) bool { return echo.ID != "" && m.ID == echo.ID }) {
		st.durable = append(st.durable, echo)
	}
	r.advance(st, echo, false)
	r.settle()
	r.mu.Unlock()
	r.notify()
}

// advance moves the preview forward if msg is newer than what the row shows.
// Only strictly newer counterpart messages on an unselected row count as
// unread, and only when msg is not another copy of the message the row
// already reflects: the realtime feed may stamp a stored message later than
// the durable channel did.
func (r *Registry) advance(st *convState, msg models.Message, countUnread bool) {
	if !msg.CreatedAt.After(st.LastMessageTime) {
		return
	}
	if countUnread && msg.SenderType == models.SenderCounterpart && r.selected != st.CounterpartID &&
		!r.reflects(st, msg) {
		st.UnreadCount++
	}
	st.LastMessagePreview = FormatPreview(msg)
	st.LastMessageTime = msg.CreatedAt
	st.LastMessageSender = msg.SenderType
	st.lastMessage = msg
	st.lastLive = countUnread
}

// reflects reports whether msg is a copy of the message the row already
// shows. Copies from the same snapshot feed only match by id, so a repeated
// short reply still counts.
func (r *Registry) reflects(st *convState, msg models.Message) bool {
	last := st.lastMessage
	if last.ID != "" && last.ID == msg.ID {
		return true
	}
	return !st.lastLive && sameMessage(last, msg)
}

// settle re-sorts the list and then forces the selected row's counter to
// zero. It must be the last step of every transition.
func (r *Registry) settle() {
	sort.SliceStable(r.list, func(i, j int) bool {
		return r.list[i].LastMessageTime.After(r.list[j].LastMessageTime)
	})
	if st, ok := r.byID[r.selected]; ok {
		st.UnreadCount = 0
	}
}

func (r *Registry) tagged(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		m.TagSender(r.selfID)
		out[i] = m
	}
	return out
}

func (r *Registry) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

func (r *Registry) Conversations() []Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conversation, len(r.list))
	for i, st := range r.list {
		out[i] = st.Conversation
	}
	return out
}

func (r *Registry) Conversation(counterpartID string) (Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[counterpartID]
	if !ok {
		return Conversation{}, false
	}
	return st.Conversation, true
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.list))
	for i, st := range r.list {
		ids[i] = st.CounterpartID
	}
	return ids
}

func (r *Registry) LogState(counterpartID string) LogState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.byID[counterpartID]; ok {
		return st.logs
	}
	return UnseenLogs
}

func (r *Registry) HistoryError(counterpartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.byID[counterpartID]; ok {
		return st.historyErr
	}
	return nil
}

func (r *Registry) TotalUnread() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, st := range r.list {
		total += st.UnreadCount
	}
	return total
}

// Messages returns the merged message list of a conversation, oldest first.
// History, the latest push snapshot and pending sends are folded together;
// a copy arriving from a later source replaces the earlier one.
func (r *Registry) Messages(counterpartID string) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[counterpartID]
	if !ok {
		return nil
	}

	out := slices.Clone(st.durable)
	matched := make([]bool, len(out))
	fold := func(m models.Message) {
		for i := range out {
			if !matched[i] && sameMessage(out[i], m) {
				out[i] = m
				matched[i] = true
				return
			}
		}
		out = append(out, m)
		matched = append(matched, true)
	}
	for _, m := range st.live {
		fold(m)
	}
	for _, p := range st.pending {
		fold(p.msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// sameMessage reports whether a and b are the same logical message. Server
// ids win; otherwise sender, content and attachment count must agree and the
// timestamps must be close.
func sameMessage(a, b models.Message) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.SenderType != b.SenderType || a.Content != b.Content || len(a.Attachments) != len(b.Attachments) {
		return false
	}
	d := a.CreatedAt.Sub(b.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= matchWindow
}

func latestOf(msgs []models.Message) (models.Message, bool) {
	if len(msgs) == 0 {
		return models.Message{}, false
	}
	latest := msgs[0]
	for _, m := range msgs[1:] {
		if !m.CreatedAt.Before(latest.CreatedAt) {
			latest = m
		}
	}
	return latest, true
}
