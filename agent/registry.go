package agent

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Registry is a thread-safe, ordered set of agents keyed by their unique name.
type Registry struct {
	agents   map[string]*Agent
	order    []string
	metadata map[string]*AgentMetadata
	mu       sync.RWMutex
	logger   Logger
}

// AgentMetadata holds additional information about registered agents.
type AgentMetadata struct {
	RegisteredAt time.Time
	Tags         []string
}

// NewRegistry creates a new agent registry.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = NewDefaultLogger()
	}

	return &Registry{
		agents:   make(map[string]*Agent),
		metadata: make(map[string]*AgentMetadata),
		logger:   logger,
	}
}

// Register adds an agent. Names are unique within a registry.
func (r *Registry) Register(agent *Agent, tags ...string) error {
	if agent == nil {
		return NewAgentError(ErrInvalidAgent, "agent cannot be nil")
	}

	name := agent.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		return NewAgentError(ErrAgentExists, fmt.Sprintf("agent %s already exists", name))
	}

	r.agents[name] = agent
	r.order = append(r.order, name)
	r.metadata[name] = &AgentMetadata{
		RegisteredAt: time.Now(),
		Tags:         append([]string(nil), tags...),
	}

	r.logger.Info("Agent registered", Field{Key: "agent", Value: name})
	return nil
}

// Unregister removes an agent from the registry.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; !exists {
		return NewAgentError(ErrAgentNotFound, fmt.Sprintf("agent %s not found", name))
	}

	delete(r.agents, name)
	delete(r.metadata, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("Agent unregistered", Field{Key: "agent", Value: name})
	return nil
}

// Get retrieves an agent by name.
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[name]
	return agent, exists
}

// List returns all registered agents in registration order.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*Agent, 0, len(r.order))
	for _, name := range r.order {
		agents = append(agents, r.agents[name])
	}
	return agents
}

// Find returns the agents whose name matches the regular expression.
func (r *Registry) Find(namePattern string) []*Agent {
	regex, err := regexp.Compile(namePattern)
	if err != nil {
		r.logger.Warn("Invalid regex pattern", Field{Key: "pattern", Value: namePattern}, Field{Key: "error", Value: err})
		return nil
	}

	var matches []*Agent
	for _, agent := range r.List() {
		if regex.MatchString(agent.Name()) {
			matches = append(matches, agent)
		}
	}
	return matches
}

// FindByTag returns the agents registered with tag.
func (r *Registry) FindByTag(tag string) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*Agent
	for _, name := range r.order {
		for _, t := range r.metadata[name].Tags {
			if t == tag {
				matches = append(matches, r.agents[name])
				break
			}
		}
	}
	return matches
}

// Metadata returns a copy of an agent's registration metadata.
func (r *Registry) Metadata(name string) (AgentMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	md, exists := r.metadata[name]
	if !exists {
		return AgentMetadata{}, false
	}
	return AgentMetadata{RegisteredAt: md.RegisteredAt, Tags: append([]string(nil), md.Tags...)}, true
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
