package agent

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultBridgeInterval is the pause between two forwarding passes.
const DefaultBridgeInterval = 100 * time.Millisecond

// Bridge forwards messages from agents' outboxes to their linked peers'
// inboxes. It is owned by no agent. Every message taken from a source outbox
// is copied into the inbox of each peer linked to that source.
type Bridge struct {
	mu        sync.RWMutex
	routes    []*route
	interval  time.Duration
	logger    Logger
	telemetry *Telemetry
}

type route struct {
	from *Agent
	to   []*Agent
}

// BridgeConfig holds configuration for creating a Bridge.
type BridgeConfig struct {
	Interval  time.Duration
	Logger    Logger
	Telemetry *Telemetry
}

// NewBridge creates a bridge with no links.
func NewBridge(config BridgeConfig) *Bridge {
	if config.Interval <= 0 {
		config.Interval = DefaultBridgeInterval
	}
	if config.Logger == nil {
		config.Logger = NewDefaultLogger()
	}
	if config.Telemetry == nil {
		config.Telemetry = defaultTelemetry()
	}

	return &Bridge{
		interval:  config.Interval,
		logger:    config.Logger.With(Field{Key: "component", Value: "bridge"}),
		telemetry: config.Telemetry,
	}
}

// Link connects x and y in both directions and records each as the other's peer.
func (b *Bridge) Link(x, y *Agent) error {
	if err := b.LinkOneWay(x, y); err != nil {
		return err
	}
	if err := b.LinkOneWay(y, x); err != nil {
		return err
	}

	x.ConnectTo(y)
	y.ConnectTo(x)
	return nil
}

// LinkOneWay forwards from's outbox into to's inbox. Linking the same pair
// twice is a no-op.
func (b *Bridge) LinkOneWay(from, to *Agent) error {
	if from == nil || to == nil {
		return NewAgentError(ErrInvalidAgent, "cannot link a nil agent")
	}
	if from == to {
		return NewAgentError(ErrInvalidAgent, "cannot link agent "+from.Name()+" to itself")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.routes {
		if r.from != from {
			continue
		}
		for _, existing := range r.to {
			if existing == to {
				return nil
			}
		}
		r.to = append(r.to, to)
		b.logger.Info("Link added", Field{Key: "from", Value: from.Name()}, Field{Key: "to", Value: to.Name()})
		return nil
	}

	b.routes = append(b.routes, &route{from: from, to: []*Agent{to}})
	b.logger.Info("Link added", Field{Key: "from", Value: from.Name()}, Field{Key: "to", Value: to.Name()})
	return nil
}

// Tick performs one forwarding pass over every direction and returns the
// number of messages taken from outboxes. Copies addressed to a stopped agent
// are dropped. Each source is limited to the
// messages present when its turn starts, so a busy agent cannot starve the
// other direction.
func (b *Bridge) Tick() int {
	forwarded := 0
	for _, r := range b.snapshot() {
		pending := r.from.Outbox().Len()
		for i := 0; i < pending; i++ {
			msg, ok := r.from.Outbox().Get()
			if !ok {
				break
			}
			for _, to := range r.to {
				if !to.Deliver(msg.Clone()) {
					b.telemetry.dropped.Add(context.Background(), 1, metric.WithAttributes(
						attribute.String("from", r.from.Name()),
						attribute.String("to", to.Name()),
					))
					b.logger.Warn("Dropped message for stopped agent",
						Field{Key: "from", Value: r.from.Name()},
						Field{Key: "to", Value: to.Name()},
						Field{Key: "message_id", Value: msg.ID()},
					)
					continue
				}
				b.telemetry.forwarded.Add(context.Background(), 1, metric.WithAttributes(
					attribute.String("from", r.from.Name()),
					attribute.String("to", to.Name()),
				))
				b.logger.Info("Forwarded message",
					Field{Key: "from", Value: r.from.Name()},
					Field{Key: "to", Value: to.Name()},
					Field{Key: "message", Value: msg.String()},
				)
			}
			forwarded++
		}
	}
	return forwarded
}

// Run forwards until ctx is done or, once at least one linked agent has been
// seen running, no linked agent is running any more.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	seenRunning := false
	for {
		b.Tick()

		running := b.anyRunning()
		if running {
			seenRunning = true
		} else if seenRunning {
			b.logger.Info("Linked agents stopped, bridge exiting")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Agents returns every agent that appears in a link, in first-seen order.
func (b *Bridge) Agents() []*Agent {
	seen := make(map[*Agent]bool)
	var agents []*Agent
	for _, r := range b.snapshot() {
		for _, a := range append([]*Agent{r.from}, r.to...) {
			if !seen[a] {
				seen[a] = true
				agents = append(agents, a)
			}
		}
	}
	return agents
}

func (b *Bridge) anyRunning() bool {
	for _, a := range b.Agents() {
		if a.IsRunning() {
			return true
		}
	}
	return false
}

func (b *Bridge) snapshot() []route {
	b.mu.RLock()
	defer b.mu.RUnlock()

	routes := make([]route, len(b.routes))
	for i, r := range b.routes {
		routes[i] = route{from: r.from, to: append([]*Agent(nil), r.to...)}
	}
	return routes
}
