package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SenderType says who sent a message, relative to the viewer.
type SenderType string

const (
	SenderCounterpart SenderType = "COUNTERPART"
	SenderSelf        SenderType = "SELF"
)

type MessageKind string

const (
	KindText  MessageKind = "TEXT"
	KindImage MessageKind = "IMAGE"
	KindVideo MessageKind = "VIDEO"
	KindMixed MessageKind = "MIXED"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Attachment references an uploaded blob. MediaType is whatever the producer
// claimed and may be empty or unreliable; classify before trusting it.
type Attachment struct {
	URL       string    `json:"url"`
	MediaType MediaType `json:"type,omitempty"`
}

type umAttachment Attachment

// UnmarshalJSON accepts the legacy bare-string form as well as the object form.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var url string
		if err := json.Unmarshal(data, &url); err != nil {
			return err
		}
		*a = Attachment{URL: url}
		return nil
	}
	return json.Unmarshal(data, (*umAttachment)(a))
}

// Attachments normalizes every shape an older client may have written:
// null, a bare URL string, a single object, or an array of either.
type Attachments []Attachment

func (as *Attachments) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*as = nil
		return nil
	case data[0] == '[':
		var list []Attachment
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*as = list
		return nil
	case data[0] == '"' || data[0] == '{':
		var single Attachment
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if single.URL == "" {
			*as = nil
			return nil
		}
		*as = Attachments{single}
		return nil
	default:
		return fmt.Errorf("unsupported attachments payload: %.32s", data)
	}
}

// Message is one entry of a store <-> customer conversation. ID is empty while
// the message is still pending locally.
type Message struct {
	ID            string      `json:"id,omitempty"`
	OwnerID       string      `json:"owner_id,omitempty"`
	CounterpartID string      `json:"counterpart_id,omitempty"`
	SenderID      string      `json:"sender_id"`
	SenderType    SenderType  `json:"-"`
	Content       string      `json:"content"`
	Kind          MessageKind `json:"kind"`
	Attachments   Attachments `json:"attachments"`
	CreatedAt     time.Time   `json:"created_at"`
	Read          bool        `json:"read"`
}

func (m *Message) Pending() bool {
	return m.ID == ""
}

// TagSender fills SenderType from the viewer's point of view.
func (m *Message) TagSender(viewerID string) {
	if m.SenderID == viewerID {
		m.SenderType = SenderSelf
	} else {
		m.SenderType = SenderCounterpart
	}
}

// Draft is an outgoing message whose attachments are already uploaded.
type Draft struct {
	Content     string      `json:"content"`
	Kind        MessageKind `json:"kind,omitempty"`
	Attachments Attachments `json:"attachments,omitempty"`

	// MessageID and SentAt are set when publishing a message that is already
	// stored, so the realtime copy keeps the durable id and time.
	MessageID string     `json:"message_id,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// Stored returns d without the identity of an earlier write.
func (d Draft) Stored() Draft {
	d.MessageID = ""
	d.SentAt = nil
	return d
}

func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Content) == "" && len(d.Attachments) == 0
}

// KindFor derives the message kind from text presence and the (already
// classified) attachment types. A lone image or video without text keeps its
// own kind; any other combination with attachments is MIXED.
func KindFor(content string, atts []Attachment) MessageKind {
	hasText := strings.TrimSpace(content) != ""
	switch {
	case len(atts) == 0:
		return KindText
	case len(atts) == 1 && !hasText && atts[0].MediaType == MediaImage:
		return KindImage
	case len(atts) == 1 && !hasText && atts[0].MediaType == MediaVideo:
		return KindVideo
	default:
		return KindMixed
	}
}

// ConversationSummary is one row of the durable conversation list, seen from
// the owning store.
type ConversationSummary struct {
	OwnerID       string   `json:"owner_id"`
	CounterpartID string   `json:"counterpart_id"`
	LastMessage   *Message `json:"last_message,omitempty"`
	UnreadCount   int      `json:"unread_count"`
}

// Snapshot is a push frame: the full ordered message list of one conversation.
type Snapshot struct {
	OwnerID       string    `json:"owner_id"`
	CounterpartID string    `json:"counterpart_id"`
	Messages      []Message `json:"messages"`
}

// SendRequest is the body of both the durable send and the push publish calls.
type SendRequest struct {
	OwnerID       string `json:"owner_id"`
	CounterpartID string `json:"counterpart_id"`
	Draft         Draft  `json:"draft"`
}

type ReadRequest struct {
	OwnerID       string `json:"owner_id"`
	CounterpartID string `json:"counterpart_id"`
}

// ConversationKey identifies a store/customer pair.
func ConversationKey(ownerID, counterpartID string) string {
	return ownerID + ":" + counterpartID
}
