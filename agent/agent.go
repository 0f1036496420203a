package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultIdleInterval is the pause between two loop iterations.
const DefaultIdleInterval = 100 * time.Millisecond

// Agent owns an inbox, an outbox, an ordered list of handlers and an ordered
// list of behaviors, and runs a loop that drains the inbox through the
// handlers and fires due behaviors into the outbox.
type Agent struct {
	name      string
	inbox     *MessageBox
	outbox    *MessageBox
	status    atomic.Int32 // Status
	idle      time.Duration
	logger    Logger
	telemetry *Telemetry
	clock     func() time.Time

	mu        sync.RWMutex
	handlers  []Handler
	behaviors []*behaviorEntry
	peer      string

	// gate orders deliveries against the final inbox clear of a stop.
	gate   sync.RWMutex
	halted bool

	lifecycle sync.Mutex
	loopCtx   context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

type behaviorEntry struct {
	behavior Behavior
	name     string
	schedule *Schedule
}

// AgentConfig holds configuration for creating an Agent.
type AgentConfig struct {
	Name         string
	IdleInterval time.Duration
	Logger       Logger
	Telemetry    *Telemetry
	// Clock is used for behavior scheduling; time.Now when nil.
	Clock func() time.Time
}

// NewAgent creates a stopped agent with empty boxes and no capabilities.
func NewAgent(config AgentConfig) (*Agent, error) {
	if config.Name == "" {
		return nil, NewAgentError(ErrInvalidAgent, "agent name cannot be empty")
	}
	if config.IdleInterval <= 0 {
		config.IdleInterval = DefaultIdleInterval
	}
	if config.Logger == nil {
		config.Logger = NewDefaultLogger()
	}
	if config.Telemetry == nil {
		config.Telemetry = defaultTelemetry()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	a := &Agent{
		name:      config.Name,
		inbox:     NewMessageBox(),
		outbox:    NewMessageBox(),
		idle:      config.IdleInterval,
		logger:    config.Logger.With(Field{Key: "agent", Value: config.Name}),
		telemetry: config.Telemetry,
		clock:     config.Clock,
	}
	a.status.Store(int32(StatusStopped))

	a.logger.Info("Agent initialized")
	return a, nil
}

// Name returns the agent's identifier.
func (a *Agent) Name() string {
	return a.name
}

// Inbox returns the box the agent consumes.
func (a *Agent) Inbox() *MessageBox {
	return a.inbox
}

// Outbox returns the box the agent produces into.
func (a *Agent) Outbox() *MessageBox {
	return a.outbox
}

// Status returns the current lifecycle status.
func (a *Agent) Status() Status {
	return Status(a.status.Load())
}

// IsRunning reports whether the loop is active.
func (a *Agent) IsRunning() bool {
	return a.Status() == StatusRunning
}

// RegisterHandler appends a handler. Handlers are offered each message in
// registration order.
func (a *Agent) RegisterHandler(h Handler) error {
	if h == nil {
		return NewAgentError(ErrInvalidConfiguration, "handler cannot be nil")
	}

	a.mu.Lock()
	a.handlers = append(a.handlers, h)
	a.mu.Unlock()

	a.logger.Info("Handler registered", Field{Key: "handler", Value: named(h)})
	return nil
}

// RegisterBehavior appends a behavior. Its first execution is due one
// interval after registration.
func (a *Agent) RegisterBehavior(b Behavior) error {
	if b == nil {
		return NewAgentError(ErrInvalidConfiguration, "behavior cannot be nil")
	}
	if b.Interval() < 0 {
		return NewAgentError(ErrInvalidConfiguration, "behavior interval cannot be negative").
			WithContext("behavior", named(b))
	}

	entry := &behaviorEntry{
		behavior: b,
		name:     named(b),
		schedule: NewSchedule(b.Interval(), a.clock()),
	}

	a.mu.Lock()
	a.behaviors = append(a.behaviors, entry)
	a.mu.Unlock()

	a.logger.Info("Behavior registered",
		Field{Key: "behavior", Value: entry.name},
		Field{Key: "interval", Value: b.Interval()},
	)
	return nil
}

// ConnectTo records peer's name for diagnostics. It does not link any boxes.
func (a *Agent) ConnectTo(peer *Agent) {
	a.mu.Lock()
	a.peer = peer.Name()
	a.mu.Unlock()

	a.logger.Info("Agent connected", Field{Key: "peer", Value: peer.Name()})
}

// ConnectedAgent returns the name recorded by ConnectTo, if any.
func (a *Agent) ConnectedAgent() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.peer
}

// Send stamps the message with this agent as sender and places it on the outbox.
func (a *Agent) Send(msg Message) {
	msg = msg.withSender(a.name)
	a.outbox.Put(msg)
	a.telemetry.sent.Add(context.Background(), 1, metric.WithAttributes(agentAttr(a.name)))

	a.logger.Debug("Message sent",
		Field{Key: "message_id", Value: msg.ID()},
		Field{Key: "message", Value: msg.String()},
	)
}

// Deliver places a message on the inbox and reports whether it was accepted.
// An agent that has stopped refuses messages until it is started again; one
// that has never run accepts them and handles them once started.
func (a *Agent) Deliver(msg Message) bool {
	a.gate.RLock()
	defer a.gate.RUnlock()

	if a.halted {
		return false
	}
	a.inbox.Put(msg)
	return true
}

// Snapshot returns a status view of the agent.
func (a *Agent) Snapshot() AgentStatus {
	return AgentStatus{
		Name:      a.name,
		Status:    a.Status(),
		Peer:      a.ConnectedAgent(),
		Inbox:     a.inbox.Len(),
		Outbox:    a.outbox.Len(),
		Timestamp: time.Now(),
	}
}

// Start runs the loop in its own goroutine and returns once the agent is running.
func (a *Agent) Start(ctx context.Context) error {
	loopCtx, done, err := a.begin(ctx)
	if err != nil {
		return err
	}

	go a.run(loopCtx, done)
	return nil
}

// Run runs the loop on the calling goroutine until ctx is done or Stop is
// called. It returns nil on an orderly stop and an ErrLoopFailed error when a
// failure escaped the loop body; in both cases the agent is stopped first.
func (a *Agent) Run(ctx context.Context) error {
	loopCtx, done, err := a.begin(ctx)
	if err != nil {
		return err
	}

	return a.run(loopCtx, done)
}

// Stop ends the loop, waits for it to exit, processes the messages still in
// the inbox once, and clears both boxes. Calling Stop on a stopped agent is a
// no-op.
func (a *Agent) Stop() error {
	return a.stopRun(nil)
}

// stopRun stops the run whose loop closes done; nil selects the current run.
// A loop goroutine that exits after the agent was restarted finds a newer
// run in place and leaves it alone.
func (a *Agent) stopRun(done chan struct{}) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.Status() != StatusRunning || done != nil && a.done != done {
		return nil
	}

	a.status.Store(int32(StatusStopping))
	a.logger.Info("Agent stopping")

	a.cancel()
	<-a.done

	// The loop context is already cancelled here, so handlers that start
	// background work see the stop immediately.
	drained := a.drainInbox(a.loopCtx)
	a.gate.Lock()
	a.halted = true
	droppedIn := a.inbox.Clear()
	a.gate.Unlock()
	droppedOut := a.outbox.Clear()

	a.status.Store(int32(StatusStopped))
	a.logger.Info("Agent stopped",
		Field{Key: "drained", Value: drained},
		Field{Key: "dropped_inbox", Value: droppedIn},
		Field{Key: "dropped_outbox", Value: droppedOut},
	)
	return nil
}

// ProcessMessage offers msg to every registered handler in registration order.
// Every handler whose CanHandle returns true runs; a failing handler does not
// prevent the others from running. It returns the number of handlers that
// completed without error.
func (a *Agent) ProcessMessage(ctx context.Context, msg Message) int {
	a.telemetry.received.Add(ctx, 1, metric.WithAttributes(agentAttr(a.name)))

	handled := 0
	for _, h := range a.snapshotHandlers() {
		if a.invokeHandler(ctx, h, msg) {
			handled++
		}
	}

	if handled == 0 {
		a.logger.Debug("No handler processed message",
			Field{Key: "message_id", Value: msg.ID()},
			Field{Key: "message", Value: msg.String()},
		)
	}
	return handled
}

// ExecuteBehaviors runs every behavior whose interval has elapsed, in
// registration order, and sends the messages they produce.
func (a *Agent) ExecuteBehaviors(ctx context.Context) int {
	executed := 0
	for _, entry := range a.snapshotBehaviors() {
		if !entry.schedule.ShouldExecute(a.clock()) {
			continue
		}
		a.invokeBehavior(ctx, entry)
		executed++
	}
	return executed
}

func (a *Agent) begin(parent context.Context) (context.Context, chan struct{}, error) {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.Status() != StatusStopped {
		return nil, nil, NewAgentError(ErrAgentRunning, fmt.Sprintf("agent %s is already running", a.name))
	}

	a.gate.Lock()
	a.halted = false
	a.gate.Unlock()

	a.loopCtx, a.cancel = context.WithCancel(parent)
	a.done = make(chan struct{})
	a.status.Store(int32(StatusRunning))

	a.logger.Info("Agent started")
	return a.loopCtx, a.done, nil
}

func (a *Agent) run(ctx context.Context, done chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewAgentError(ErrLoopFailed, fmt.Sprintf("agent %s loop failed: %v", a.name, r)).
				WithContext("agent", a.name)
			a.logger.Error("Agent loop failed", Field{Key: "error", Value: err})
		}
		close(done)
		a.stopRun(done)
	}()

	ticker := time.NewTicker(a.idle)
	defer ticker.Stop()

	for {
		a.drainInbox(ctx)
		a.ExecuteBehaviors(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Agent) drainInbox(ctx context.Context) int {
	n := 0
	for {
		msg, ok := a.inbox.Get()
		if !ok {
			return n
		}
		a.logger.Debug("Message received",
			Field{Key: "message_id", Value: msg.ID()},
			Field{Key: "sender", Value: msg.Sender()},
		)
		a.ProcessMessage(ctx, msg)
		n++
	}
}

func (a *Agent) invokeHandler(ctx context.Context, h Handler, msg Message) bool {
	name := named(h)
	attrs := metric.WithAttributes(agentAttr(a.name), attribute.String("handler", name))

	matched, err := canHandle(h, msg)
	if err != nil {
		a.handlerFailed(ctx, name, msg, err, attrs)
		return false
	}
	if !matched {
		return false
	}

	spanCtx, span := a.telemetry.startSpan(ctx, "agent.handle",
		agentAttr(a.name),
		attribute.String("handler", name),
		attribute.String("message.type", msg.Type()),
	)
	a.telemetry.handled.Add(ctx, 1, attrs)

	err = callHandler(spanCtx, h, msg)
	endSpan(span, err)
	if err != nil {
		a.handlerFailed(ctx, name, msg, err, attrs)
		return false
	}

	a.logger.Debug("Message processed",
		Field{Key: "handler", Value: name},
		Field{Key: "message_id", Value: msg.ID()},
	)
	return true
}

func (a *Agent) handlerFailed(ctx context.Context, name string, msg Message, cause error, attrs metric.AddOption) {
	err := NewAgentErrorWithCause(ErrHandlerFailed, "handler "+name+" failed", cause).
		WithContext("agent", a.name).
		WithContext("handler", name)
	a.telemetry.handlerErrors.Add(ctx, 1, attrs)
	a.logger.Error("Error processing message",
		Field{Key: "handler", Value: name},
		Field{Key: "message_id", Value: msg.ID()},
		Field{Key: "message", Value: msg.String()},
		Field{Key: "error", Value: err},
	)
}

func (a *Agent) invokeBehavior(ctx context.Context, entry *behaviorEntry) {
	attrs := metric.WithAttributes(agentAttr(a.name), attribute.String("behavior", entry.name))
	a.telemetry.behaviorRuns.Add(ctx, 1, attrs)

	spanCtx, span := a.telemetry.startSpan(ctx, "agent.behavior",
		agentAttr(a.name),
		attribute.String("behavior", entry.name),
	)
	msg, err := callBehavior(spanCtx, entry.behavior)
	endSpan(span, err)

	if err != nil {
		err = NewAgentErrorWithCause(ErrBehaviorFailed, "behavior "+entry.name+" failed", err).
			WithContext("agent", a.name).
			WithContext("behavior", entry.name)
		a.telemetry.behaviorErrors.Add(ctx, 1, attrs)
		a.logger.Error("Error executing behavior",
			Field{Key: "behavior", Value: entry.name},
			Field{Key: "error", Value: err},
		)
		return
	}

	if msg != nil {
		a.Send(*msg)
		a.logger.Debug("Behavior produced message",
			Field{Key: "behavior", Value: entry.name},
			Field{Key: "message", Value: msg.String()},
		)
	}
}

func (a *Agent) snapshotHandlers() []Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Handler(nil), a.handlers...)
}

func (a *Agent) snapshotBehaviors() []*behaviorEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*behaviorEntry(nil), a.behaviors...)
}

func canHandle(h Handler, msg Message) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("can-handle panicked: %v", r)
		}
	}()
	return h.CanHandle(msg), nil
}

func callHandler(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, msg)
}

func callBehavior(ctx context.Context, b Behavior) (msg *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, err = nil, fmt.Errorf("behavior panicked: %v", r)
		}
	}()
	return b.Execute(ctx)
}
