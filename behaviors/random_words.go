// Package behaviors contains the timed capabilities agents register: a random
// two-word generator and a periodic token balance check.
package behaviors

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ira-ai-automation/agentpair/agent"
)

// DefaultRandomWordsInterval is the pause between two generated messages.
const DefaultRandomWordsInterval = 2 * time.Second

// DefaultWords is the list the generator draws from when none is configured.
var DefaultWords = []string{
	"hello", "sun", "world", "space", "moon",
	"crypto", "sky", "ocean", "universe", "human",
}

// RandomWordsBehavior emits a message made of two words drawn uniformly, with
// replacement, from its word list.
type RandomWordsBehavior struct {
	name     string
	words    []string
	interval time.Duration
	logger   agent.Logger
	clock    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// RandomWordsConfig holds configuration for creating a RandomWordsBehavior.
type RandomWordsConfig struct {
	Name     string
	Words    []string
	Interval time.Duration
	// Rand is the source of randomness; the shared global source when nil.
	Rand   *rand.Rand
	Logger agent.Logger
	Clock  func() time.Time
}

// NewRandomWordsBehavior creates a generator.
func NewRandomWordsBehavior(config RandomWordsConfig) (*RandomWordsBehavior, error) {
	if config.Words == nil {
		config.Words = DefaultWords
	}
	if len(config.Words) == 0 {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "word list cannot be empty")
	}
	if config.Interval < 0 {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "interval cannot be negative")
	}
	if config.Interval == 0 {
		config.Interval = DefaultRandomWordsInterval
	}
	if config.Name == "" {
		config.Name = "random_words"
	}
	if config.Logger == nil {
		config.Logger = agent.NewDefaultLogger()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	b := &RandomWordsBehavior{
		name:     config.Name,
		words:    append([]string(nil), config.Words...),
		interval: config.Interval,
		logger:   config.Logger.With(agent.Field{Key: "behavior", Value: config.Name}),
		clock:    config.Clock,
		rng:      config.Rand,
	}
	b.logger.Info("Random words behavior initialized", agent.Field{Key: "words", Value: len(b.words)})
	return b, nil
}

func (b *RandomWordsBehavior) Name() string            { return b.name }
func (b *RandomWordsBehavior) Interval() time.Duration { return b.interval }

// Pair draws two words.
func (b *RandomWordsBehavior) Pair() (string, string) {
	return b.words[b.intN(len(b.words))], b.words[b.intN(len(b.words))]
}

// Execute generates one message of type random_words.
func (b *RandomWordsBehavior) Execute(ctx context.Context) (*agent.Message, error) {
	word1, word2 := b.Pair()

	msg := agent.NewMessage().
		Type(agent.MessageTypeRandomWords).
		Content(word1+" "+word2).
		WithMetadata("word1", word1).
		WithMetadata("word2", word2).
		WithMetadata("generated_at", b.clock().Format(time.RFC3339Nano)).
		Build()

	b.logger.Debug("Generated random message", agent.Field{Key: "content", Value: msg.Content()})
	return &msg, nil
}

func (b *RandomWordsBehavior) intN(n int) int {
	if b.rng == nil {
		return rand.IntN(n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.IntN(n)
}
