/*
Package agent provides a small runtime for message-passing agents that run as
goroutines in a single process.

# Overview

The package is built around a few types:

  - Message: immutable unit of communication (type, content, metadata, creation time)
  - MessageBox: concurrency-safe FIFO queue that never blocks on read
  - Handler: reactive capability offered every inbound message
  - Behavior: proactive capability executed on an interval
  - Agent: owns an inbox, an outbox, handlers and behaviors, and runs the loop
  - Bridge: forwards messages from agents' outboxes to their linked peers' inboxes
  - Runtime: registry of named agents plus a bridge, run and shut down together
  - Logger: structured logging injected into every component

# Agent loop

Each iteration of an agent's loop:

 1. Takes every message from the inbox and offers it to each handler in
    registration order. Every handler whose CanHandle returns true runs; a
    failing or panicking handler is logged and the others still run.
 2. Executes, in registration order, every behavior whose interval has elapsed
    since its last execution and sends the messages they produce to the outbox.
 3. Waits for the idle interval or for the agent to be stopped.

Stop is idempotent. It ends the loop, processes the messages still in the
inbox once and clears both boxes.

# At most one invocation in flight

Handlers and behaviors that call slow external services use a Guard. A Guard
admits one invocation at a time, bounds it with a timeout and reports ErrBusy
to callers that arrive while an invocation is outstanding:

	guard := agent.NewGuard("balance")
	err := guard.Do(ctx, 5*time.Second, func(ctx context.Context) error {
		return lookup(ctx)
	})
	if errors.Is(err, agent.Code(agent.ErrBusy)) {
		// previous lookup still running; skip this cycle
	}

# Quick Start

	hello := agent.HandlerFunc{
		Match: func(msg agent.Message) bool { return msg.ContainsKeyword("hello") },
		Fn: func(ctx context.Context, msg agent.Message) error {
			fmt.Println("received:", msg)
			return nil
		},
	}

	a, _ := agent.NewAgent(agent.AgentConfig{Name: "Agent1"})
	b, _ := agent.NewAgent(agent.AgentConfig{Name: "Agent2"})
	b.RegisterHandler(hello)

	bridge := agent.NewBridge(agent.BridgeConfig{})
	bridge.Link(a, b)

	a.Start(ctx)
	b.Start(ctx)
	a.Send(agent.NewTextMessage(agent.MessageTypeDefault, "hello world"))
	go bridge.Run(ctx)

# Observability

Components log through the Logger interface and record counters and spans
through Telemetry, which uses the global OpenTelemetry providers unless others
are supplied.
*/
package agent
