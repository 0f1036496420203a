package agent

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common message types
const (
	// MessageTypeDefault is used when no type is set
	MessageTypeDefault = "default"

	// MessageTypeRandomWords is produced by the random two-word generator
	MessageTypeRandomWords = "random_words"

	// MessageTypeTokenBalance is produced by the periodic balance check
	MessageTypeTokenBalance = "token_balance"
)

// Message is the immutable unit of communication between agents. All fields
// are set at construction; accessors return copies so a Message can be passed
// by value and placed into several boxes without sharing mutable state.
type Message struct {
	id        string
	msgType   string
	content   string
	sender    string
	metadata  map[string]interface{}
	createdAt time.Time
}

// MessageBuilder helps construct messages with a fluent API.
type MessageBuilder struct {
	msg Message
}

// NewMessage creates a new message builder.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		msg: Message{
			id:        uuid.New().String(),
			msgType:   MessageTypeDefault,
			createdAt: time.Now(),
		},
	}
}

// NewTextMessage is shorthand for a message with only a type and content.
func NewTextMessage(msgType, content string) Message {
	return NewMessage().Type(msgType).Content(content).Build()
}

// Type sets the message type.
func (b *MessageBuilder) Type(msgType string) *MessageBuilder {
	if msgType != "" {
		b.msg.msgType = msgType
	}
	return b
}

// Content sets the message payload.
func (b *MessageBuilder) Content(content string) *MessageBuilder {
	b.msg.content = content
	return b
}

// From sets the sender of the message.
func (b *MessageBuilder) From(sender string) *MessageBuilder {
	b.msg.sender = sender
	return b
}

// WithMetadata adds one metadata entry.
func (b *MessageBuilder) WithMetadata(key string, value interface{}) *MessageBuilder {
	if b.msg.metadata == nil {
		b.msg.metadata = make(map[string]interface{})
	}
	b.msg.metadata[key] = value
	return b
}

// Build creates the final message. The builder must not be reused afterwards.
func (b *MessageBuilder) Build() Message {
	msg := b.msg
	msg.metadata = copyMetadata(b.msg.metadata)
	return msg
}

// ID returns the unique identifier for this message.
func (m Message) ID() string {
	return m.id
}

// Type returns the message type.
func (m Message) Type() string {
	return m.msgType
}

// Content returns the message payload.
func (m Message) Content() string {
	return m.content
}

// Sender returns the name of the agent that sent this message, if any.
func (m Message) Sender() string {
	return m.sender
}

// CreatedAt returns when the message was built.
func (m Message) CreatedAt() time.Time {
	return m.createdAt
}

// Metadata returns a copy of the metadata, or nil when there is none.
func (m Message) Metadata() map[string]interface{} {
	return copyMetadata(m.metadata)
}

// MetadataValue returns a single metadata entry.
func (m Message) MetadataValue(key string) (interface{}, bool) {
	v, ok := m.metadata[key]
	return v, ok
}

// ContainsKeyword reports whether the content contains keyword, ignoring case.
func (m Message) ContainsKeyword(keyword string) bool {
	if keyword == "" || m.content == "" {
		return false
	}
	return strings.Contains(strings.ToLower(m.content), strings.ToLower(keyword))
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	c := m
	c.metadata = copyMetadata(m.metadata)
	return c
}

// withSender returns a copy of m stamped with sender. Messages that already
// carry a sender keep it.
func (m Message) withSender(sender string) Message {
	c := m.Clone()
	if c.sender == "" {
		c.sender = sender
	}
	return c
}

// String returns a string representation of the message.
func (m Message) String() string {
	return "[" + m.msgType + "] " + m.content
}

// MarshalJSON implements json.Marshaler for serialization.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"id":         m.id,
		"type":       m.msgType,
		"content":    m.content,
		"sender":     m.sender,
		"metadata":   m.metadata,
		"created_at": m.createdAt,
	})
}

func copyMetadata(src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
