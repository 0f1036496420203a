package handlers

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ira-ai-automation/agentpair/agent"
)

func TestHelloHandler(t *testing.T) {
	var out bytes.Buffer
	h := NewHelloHandler(&out, agent.NewNoOpLogger())

	assert.Equal(t, "hello", h.Name())
	assert.Equal(t, "hello", h.Keyword())

	tests := []struct {
		content string
		want    bool
	}{
		{"hello world", true},
		{"sun HELLO", true},
		{"HELLO UNIVERSE", true},
		{"othello moon", true},
		{"sun moon", false},
		{"world space", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.CanHandle(agent.NewTextMessage(agent.MessageTypeDefault, tt.content)), tt.content)
	}

	require.NoError(t, h.Handle(context.Background(), agent.NewTextMessage(agent.MessageTypeDefault, "hello world")))
	assert.Equal(t, "Hello Handler received: [default] hello world\n", out.String())
}

func TestNewKeywordHandler(t *testing.T) {
	_, err := NewKeywordHandler(KeywordConfig{Logger: agent.NewNoOpLogger()})
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))

	var out bytes.Buffer
	h, err := NewKeywordHandler(KeywordConfig{Keyword: "moon", Output: &out, Logger: agent.NewNoOpLogger()})
	require.NoError(t, err)
	assert.Equal(t, "keyword:moon", h.Name())

	msg := agent.NewMessage().Type(agent.MessageTypeRandomWords).Content("sun moon").Build()
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, "Moon Handler received: [random_words] sun moon\n", out.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("closed") }

func TestKeywordHandler_WriteError(t *testing.T) {
	h := NewHelloHandler(failingWriter{}, agent.NewNoOpLogger())
	err := h.Handle(context.Background(), agent.NewTextMessage(agent.MessageTypeDefault, "hello"))
	assert.Error(t, err)
}

func TestHelloHandler_InAgent(t *testing.T) {
	var out bytes.Buffer
	a, err := agent.NewAgent(agent.AgentConfig{Name: "Agent2", Logger: agent.NewNoOpLogger()})
	require.NoError(t, err)
	require.NoError(t, a.RegisterHandler(NewHelloHandler(&out, agent.NewNoOpLogger())))

	assert.Equal(t, 1, a.ProcessMessage(context.Background(), agent.NewTextMessage(agent.MessageTypeDefault, "hello sky")))
	assert.Equal(t, 0, a.ProcessMessage(context.Background(), agent.NewTextMessage(agent.MessageTypeDefault, "ocean sky")))
	assert.Equal(t, "Hello Handler received: [default] hello sky\n", out.String())
}
