package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime() *Runtime {
	return NewRuntime(RuntimeConfig{
		Logger:         NewNoOpLogger(),
		BridgeInterval: 5 * time.Millisecond,
	})
}

func TestRuntime_LinkRequiresRegisteredAgents(t *testing.T) {
	rt := newTestRuntime()
	require.NoError(t, rt.Add(newTestAgent(t, "Agent1")))

	assert.Equal(t, ErrAgentNotFound, CodeOf(rt.Link("Agent1", "Agent2")))
	assert.Equal(t, ErrAgentNotFound, CodeOf(rt.Link("Agent0", "Agent1")))
}

func TestRuntime_RunWithoutAgents(t *testing.T) {
	rt := newTestRuntime()

	err := rt.Run(context.Background())
	assert.Equal(t, ErrInvalidConfiguration, CodeOf(err))
}

func TestRuntime_RunExchangesMessages(t *testing.T) {
	rt := newTestRuntime()
	producer := newTestAgent(t, "Agent1")
	consumer := newTestAgent(t, "Agent2")

	require.NoError(t, producer.RegisterBehavior(BehaviorFunc{
		ID:    "greeter",
		Every: 10 * time.Millisecond,
		Fn: func(ctx context.Context) (*Message, error) {
			msg := NewTextMessage(MessageTypeDefault, "hello world")
			return &msg, nil
		},
	}))
	hello := &recorder{name: "hello", match: func(m Message) bool { return m.ContainsKeyword("hello") }}
	require.NoError(t, consumer.RegisterHandler(hello))

	require.NoError(t, rt.Add(producer))
	require.NoError(t, rt.Add(consumer))
	require.NoError(t, rt.Link("Agent1", "Agent2"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	require.Eventually(t, func() bool { return hello.Count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	err := rt.Run(ctx)
	assert.Equal(t, ErrAgentRunning, CodeOf(err))

	statuses := rt.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "Agent2", statuses[0].Peer)
	assert.Equal(t, StatusRunning, statuses[1].Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runtime did not stop")
	}

	for _, s := range rt.Statuses() {
		assert.Equal(t, StatusStopped, s.Status, s.Name)
		assert.Zero(t, s.Inbox)
		assert.Zero(t, s.Outbox)
	}
}

func TestRuntime_Retain(t *testing.T) {
	rt := newTestRuntime()
	for _, name := range []string{"Agent1", "Agent2", "observer"} {
		require.NoError(t, rt.Add(newTestAgent(t, name)))
	}

	assert.Equal(t, ErrInvalidConfiguration, CodeOf(rt.Retain(`(`)))
	assert.Equal(t, ErrInvalidConfiguration, CodeOf(rt.Retain(`^nobody$`)))
	require.Len(t, rt.Agents(), 3)

	require.NoError(t, rt.Retain(`^Agent\d$`))
	require.Len(t, rt.Agents(), 2)
	_, ok := rt.Agent("observer")
	assert.False(t, ok)

	require.NoError(t, rt.Link("Agent1", "Agent2"))
	err := rt.Retain(`^Agent1$`)
	assert.Equal(t, ErrInvalidConfiguration, CodeOf(err))
	assert.Len(t, rt.Agents(), 2, "linked agents stay registered")
}

func TestRuntime_StatusLogCarriesMetadata(t *testing.T) {
	var out syncBuffer
	rt := NewRuntime(RuntimeConfig{
		Logger:         NewJSONLogger(&out, LogLevelInfo),
		BridgeInterval: 5 * time.Millisecond,
		StatusInterval: 5 * time.Millisecond,
	})
	require.NoError(t, rt.Add(newTestAgent(t, "Agent1"), "random_words"))
	require.NoError(t, rt.Add(newTestAgent(t, "Agent2"), "hello"))
	require.NoError(t, rt.Link("Agent1", "Agent2"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"tags":["random_words"]`)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"registered_for":`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestRuntime_Shutdown(t *testing.T) {
	rt := newTestRuntime()
	agents := []*Agent{newTestAgent(t, "a"), newTestAgent(t, "b"), newTestAgent(t, "c")}
	for _, a := range agents {
		require.NoError(t, rt.Add(a))
		require.NoError(t, a.Start(context.Background()))
	}

	require.NoError(t, rt.Shutdown(context.Background()))

	for _, a := range agents {
		assert.Equal(t, StatusStopped, a.Status())
	}
	// Shutting down a stopped runtime is harmless.
	assert.NoError(t, rt.Shutdown(context.Background()))
}

func TestRuntime_ShutdownInterrupted(t *testing.T) {
	rt := newTestRuntime()
	require.NoError(t, rt.Add(newTestAgent(t, "a")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rt.Shutdown(ctx)
	assert.Equal(t, ErrContextCancelled, CodeOf(err))
}
