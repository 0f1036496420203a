package agent

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runtime owns a set of named agents and the bridge that forwards between
// them, and manages their lifecycle as a group.
type Runtime struct {
	registry       *Registry
	bridge         *Bridge
	logger         Logger
	statusInterval time.Duration

	mu      sync.Mutex
	running bool
}

// RuntimeConfig holds configuration for creating a runtime.
type RuntimeConfig struct {
	Logger         Logger
	Telemetry      *Telemetry
	BridgeInterval time.Duration
	// StatusInterval enables a periodic status log line per agent; zero disables it.
	StatusInterval time.Duration
}

// NewRuntime creates an empty runtime.
func NewRuntime(config RuntimeConfig) *Runtime {
	if config.Logger == nil {
		config.Logger = NewDefaultLogger()
	}

	return &Runtime{
		registry: NewRegistry(config.Logger),
		bridge: NewBridge(BridgeConfig{
			Interval:  config.BridgeInterval,
			Logger:    config.Logger,
			Telemetry: config.Telemetry,
		}),
		logger:         config.Logger.With(Field{Key: "component", Value: "runtime"}),
		statusInterval: config.StatusInterval,
	}
}

// Add registers an agent with the runtime.
func (r *Runtime) Add(agent *Agent, tags ...string) error {
	return r.registry.Register(agent, tags...)
}

// Retain unregisters every agent whose name does not match pattern. Agents
// already linked by the bridge cannot be removed, so call it before Link.
func (r *Runtime) Retain(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return NewAgentErrorWithCause(ErrInvalidConfiguration, fmt.Sprintf("invalid agent pattern %q", pattern), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return NewAgentError(ErrAgentRunning, "runtime is already running")
	}

	keep := make(map[string]bool)
	for _, agent := range r.registry.Find(pattern) {
		keep[agent.Name()] = true
	}
	if len(keep) == 0 {
		return NewAgentError(ErrInvalidConfiguration, fmt.Sprintf("no agent matches %q", pattern))
	}

	linked := make(map[*Agent]bool)
	for _, agent := range r.bridge.Agents() {
		linked[agent] = true
	}

	var drop []string
	for _, agent := range r.registry.List() {
		if keep[agent.Name()] {
			continue
		}
		if linked[agent] {
			return NewAgentError(ErrInvalidConfiguration,
				fmt.Sprintf("agent %s is linked and cannot be removed", agent.Name()))
		}
		drop = append(drop, agent.Name())
	}
	for _, name := range drop {
		if err := r.registry.Unregister(name); err != nil {
			return err
		}
	}
	return nil
}

// Agent returns a registered agent by name.
func (r *Runtime) Agent(name string) (*Agent, bool) {
	return r.registry.Get(name)
}

// Agents returns all registered agents in registration order.
func (r *Runtime) Agents() []*Agent {
	return r.registry.List()
}

// Registry returns the runtime's agent registry.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// Bridge returns the runtime's bridge.
func (r *Runtime) Bridge() *Bridge {
	return r.bridge
}

// Link connects two registered agents in both directions.
func (r *Runtime) Link(nameA, nameB string) error {
	a, ok := r.registry.Get(nameA)
	if !ok {
		return NewAgentError(ErrAgentNotFound, fmt.Sprintf("agent %s not found", nameA))
	}
	b, ok := r.registry.Get(nameB)
	if !ok {
		return NewAgentError(ErrAgentNotFound, fmt.Sprintf("agent %s not found", nameB))
	}
	return r.bridge.Link(a, b)
}

// Run runs every registered agent and the bridge until ctx is done or every
// linked agent has stopped. The bridge exits before the agents are told to
// stop, so a stopped agent's boxes stay empty. A failing agent does not stop
// the others; the first agent error is returned once everything has exited.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return NewAgentError(ErrAgentRunning, "runtime is already running")
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	agents := r.registry.List()
	if len(agents) == 0 {
		return NewAgentError(ErrInvalidConfiguration, "runtime has no agents")
	}

	r.logger.Info("Runtime starting", Field{Key: "agents", Value: len(agents)})

	agentCtx, stopAgents := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAgents()

	var agentsGroup errgroup.Group
	for _, agent := range agents {
		agent := agent
		agentsGroup.Go(func() error {
			err := agent.Run(agentCtx)
			if err != nil {
				r.logger.Error("Agent exited with error",
					Field{Key: "agent", Value: agent.Name()},
					Field{Key: "error", Value: err},
				)
			}
			return err
		})
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()

	var monitorGroup errgroup.Group
	if r.statusInterval > 0 {
		monitorGroup.Go(func() error {
			r.monitor(monitorCtx)
			return nil
		})
	}

	bridgeErr := r.bridge.Run(ctx)

	stopAgents()
	err := agentsGroup.Wait()
	stopMonitor()
	_ = monitorGroup.Wait()

	if err == nil {
		err = bridgeErr
	}
	r.logger.Info("Runtime stopped")
	return err
}

// Shutdown stops every registered agent in parallel.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.logger.Info("Runtime shutting down")

	g, gCtx := errgroup.WithContext(ctx)
	for _, agent := range r.registry.List() {
		agent := agent
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return NewAgentErrorWithCause(ErrContextCancelled, "shutdown interrupted", gCtx.Err())
			default:
			}
			if err := agent.Stop(); err != nil {
				r.logger.Warn("Error stopping agent during shutdown",
					Field{Key: "agent", Value: agent.Name()},
					Field{Key: "error", Value: err},
				)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Error("Error during agent shutdown", Field{Key: "error", Value: err})
		return err
	}

	r.logger.Info("Runtime shutdown complete")
	return nil
}

// Statuses returns a snapshot of every registered agent.
func (r *Runtime) Statuses() []AgentStatus {
	agents := r.registry.List()
	statuses := make([]AgentStatus, 0, len(agents))
	for _, agent := range agents {
		statuses = append(statuses, agent.Snapshot())
	}
	return statuses
}

func (r *Runtime) monitor(ctx context.Context) {
	ticker := time.NewTicker(r.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range r.Statuses() {
				fields := []Field{
					{Key: "agent", Value: s.Name},
					{Key: "status", Value: s.Status.String()},
					{Key: "peer", Value: s.Peer},
					{Key: "inbox", Value: s.Inbox},
					{Key: "outbox", Value: s.Outbox},
				}
				if md, ok := r.registry.Metadata(s.Name); ok {
					fields = append(fields,
						Field{Key: "tags", Value: md.Tags},
						Field{Key: "registered_for", Value: time.Since(md.RegisteredAt).Round(time.Second).String()},
					)
				}
				r.logger.Info("Agent status", fields...)
			}
		}
	}
}
