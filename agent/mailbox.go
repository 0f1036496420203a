package agent

import "sync"

// MessageBox is an unbounded FIFO queue of messages safe for concurrent use.
// Get never blocks waiting for a future message; it reports absence instead.
type MessageBox struct {
	mu       sync.Mutex
	messages []Message
	head     int
}

// NewMessageBox creates an empty message box.
func NewMessageBox() *MessageBox {
	return &MessageBox{}
}

// Put appends a message to the tail. The message is visible to Get as soon as
// Put returns.
func (b *MessageBox) Put(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, msg)
}

// Get removes and returns the oldest message. The boolean is false when the
// box is empty.
func (b *MessageBox) Get() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head >= len(b.messages) {
		return Message{}, false
	}

	msg := b.messages[b.head]
	b.messages[b.head] = Message{}
	b.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if b.head == len(b.messages) {
		b.messages = b.messages[:0]
		b.head = 0
	} else if b.head > 64 && b.head*2 > len(b.messages) {
		n := copy(b.messages, b.messages[b.head:])
		b.messages = b.messages[:n]
		b.head = 0
	}

	return msg, true
}

// IsEmpty is an advisory snapshot; another goroutine may change the box
// immediately afterwards.
func (b *MessageBox) IsEmpty() bool {
	return b.Len() == 0
}

// Len returns the number of buffered messages.
func (b *MessageBox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.messages) - b.head
}

// Clear atomically discards all buffered messages and returns how many were dropped.
func (b *MessageBox) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.messages) - b.head
	b.messages = nil
	b.head = 0
	return n
}
