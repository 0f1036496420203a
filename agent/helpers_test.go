package agent

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// recorder is a handler that remembers every message it handled.
type recorder struct {
	name  string
	match func(Message) bool
	err   error

	mu   sync.Mutex
	seen []Message
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) CanHandle(msg Message) bool {
	if r.match == nil {
		return true
	}
	return r.match(msg)
}

func (r *recorder) Handle(ctx context.Context, msg Message) error {
	r.mu.Lock()
	r.seen = append(r.seen, msg)
	r.mu.Unlock()
	return r.err
}

func (r *recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.seen...)
}

func (r *recorder) Count() int {
	return len(r.Messages())
}

func newTestAgent(t *testing.T, name string, opts ...func(*AgentConfig)) *Agent {
	t.Helper()

	config := AgentConfig{
		Name:         name,
		IdleInterval: 5 * time.Millisecond,
		Logger:       NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	a, err := NewAgent(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop() })
	return a
}

func withClock(c *fakeClock) func(*AgentConfig) {
	return func(config *AgentConfig) { config.Clock = c.Now }
}

func withLogger(l Logger) func(*AgentConfig) {
	return func(config *AgentConfig) { config.Logger = l }
}
