// Package agent provides the runtime for message-passing agents: message boxes,
// handler and behavior capabilities, the per-agent scheduling loop and the bridge
// that forwards messages between linked agents.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Handler is a reactive capability invoked for inbound messages.
type Handler interface {
	// CanHandle reports whether the handler wants the message. It must not
	// mutate shared state and returns false for missing or malformed content.
	CanHandle(msg Message) bool

	// Handle performs the side effect for a message accepted by CanHandle.
	Handle(ctx context.Context, msg Message) error
}

// Behavior is a proactive capability executed on a timer.
type Behavior interface {
	// Name identifies the behavior in logs and metrics.
	Name() string

	// Interval is the minimum wall time between two executions. Zero means
	// the behavior is state-based and is offered every loop tick.
	Interval() time.Duration

	// Execute runs one cycle. A nil message means the cycle produced no output.
	Execute(ctx context.Context) (*Message, error)
}

// HandlerFunc adapts a pair of functions to the Handler interface.
type HandlerFunc struct {
	Match func(msg Message) bool
	Fn    func(ctx context.Context, msg Message) error
}

// CanHandle calls Match; a nil Match accepts every message.
func (h HandlerFunc) CanHandle(msg Message) bool {
	if h.Match == nil {
		return true
	}
	return h.Match(msg)
}

// Handle calls Fn.
func (h HandlerFunc) Handle(ctx context.Context, msg Message) error {
	if h.Fn == nil {
		return nil
	}
	return h.Fn(ctx, msg)
}

// BehaviorFunc adapts a function to the Behavior interface.
type BehaviorFunc struct {
	ID    string
	Every time.Duration
	Fn    func(ctx context.Context) (*Message, error)
}

func (b BehaviorFunc) Name() string            { return b.ID }
func (b BehaviorFunc) Interval() time.Duration { return b.Every }

func (b BehaviorFunc) Execute(ctx context.Context) (*Message, error) {
	if b.Fn == nil {
		return nil, nil
	}
	return b.Fn(ctx)
}

// Logger provides structured logging capabilities.
type Logger interface {
	// Debug logs a debug message
	Debug(msg string, fields ...Field)

	// Info logs an info message
	Info(msg string, fields ...Field)

	// Warn logs a warning message
	Warn(msg string, fields ...Field)

	// Error logs an error message
	Error(msg string, fields ...Field)

	// Fatal logs a fatal message and exits
	Fatal(msg string, fields ...Field)

	// With returns a new logger with additional fields
	With(fields ...Field) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value interface{}
}

// AgentStatus is a point-in-time view of one agent.
type AgentStatus struct {
	Name      string
	Status    Status
	Peer      string
	Inbox     int
	Outbox    int
	Timestamp time.Time
}

// Status represents the execution status of an agent.
type Status int

const (
	// StatusStopped indicates the agent is not running
	StatusStopped Status = iota

	// StatusRunning indicates the agent loop is active
	StatusRunning

	// StatusStopping indicates the agent is draining before it stops
	StatusStopping
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// named returns the display name of a capability: its Name method when it has
// one, otherwise its dynamic type.
func named(v interface{}) string {
	if n, ok := v.(interface{ Name() string }); ok && n.Name() != "" {
		return n.Name()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}
