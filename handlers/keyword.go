// Package handlers contains the reactive capabilities agents register:
// a keyword printer and a token transfer trigger.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ira-ai-automation/agentpair/agent"
)

// KeywordHandler prints every message whose content contains its keyword,
// ignoring case.
type KeywordHandler struct {
	name    string
	keyword string
	label   string
	logger  agent.Logger

	mu  sync.Mutex
	out io.Writer
}

// KeywordConfig holds configuration for creating a KeywordHandler.
type KeywordConfig struct {
	Name    string
	Keyword string
	// Label prefixes every printed line; "<Keyword> Handler" when empty.
	Label  string
	Output io.Writer
	Logger agent.Logger
}

// NewKeywordHandler creates a keyword handler.
func NewKeywordHandler(config KeywordConfig) (*KeywordHandler, error) {
	if config.Keyword == "" {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "keyword cannot be empty")
	}
	if config.Name == "" {
		config.Name = "keyword:" + config.Keyword
	}
	if config.Label == "" {
		config.Label = capitalize(config.Keyword) + " Handler"
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger == nil {
		config.Logger = agent.NewDefaultLogger()
	}

	return &KeywordHandler{
		name:    config.Name,
		keyword: config.Keyword,
		label:   config.Label,
		out:     config.Output,
		logger:  config.Logger.With(agent.Field{Key: "handler", Value: config.Name}),
	}, nil
}

// NewHelloHandler creates the handler that prints messages mentioning "hello".
func NewHelloHandler(out io.Writer, logger agent.Logger) *KeywordHandler {
	h, _ := NewKeywordHandler(KeywordConfig{
		Name:    "hello",
		Keyword: "hello",
		Output:  out,
		Logger:  logger,
	})
	return h
}

// Name returns the handler name.
func (h *KeywordHandler) Name() string { return h.name }

// Keyword returns the keyword the handler matches.
func (h *KeywordHandler) Keyword() string { return h.keyword }

// CanHandle reports whether the message content contains the keyword.
func (h *KeywordHandler) CanHandle(msg agent.Message) bool {
	return msg.ContainsKeyword(h.keyword)
}

// Handle prints the message.
func (h *KeywordHandler) Handle(ctx context.Context, msg agent.Message) error {
	h.mu.Lock()
	_, err := fmt.Fprintf(h.out, "%s received: %s\n", h.label, msg)
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	h.logger.Info("Processed keyword message",
		agent.Field{Key: "message_id", Value: msg.ID()},
		agent.Field{Key: "message", Value: msg.String()},
	)
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
