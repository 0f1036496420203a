// Package config loads the agentpair configuration from defaults, an optional
// YAML file, an optional .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ira-ai-automation/agentpair/agent"
	"github.com/ira-ai-automation/agentpair/behaviors"
	"github.com/ira-ai-automation/agentpair/token"
)

// Capability names used in AgentSpec.
const (
	BehaviorRandomWords  = "random_words"
	BehaviorTokenBalance = "token_balance"
	HandlerHello         = "hello"
	HandlerTransfer      = "transfer"
)

// Environment variables read by Load.
const (
	EnvContractAddress = "ERC20_CONTRACT_ADDRESS"
	EnvSourceWallet    = "SOURCE_WALLET_ADDRESS"
	EnvTargetWallet    = "TARGET_WALLET_ADDRESS"
	EnvCredential      = "SOURCE_WALLET_PRIVATE_KEY"
	EnvForkRPCURL      = "TENDERLY_FORK_RPC_URL"
	EnvRPCURLs         = "AGENTPAIR_RPC_URLS"
	EnvLogLevel        = "AGENTPAIR_LOG_LEVEL"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	IdleInterval   time.Duration `yaml:"idle_interval"`
	BridgeInterval time.Duration `yaml:"bridge_interval"`
	StatusInterval time.Duration `yaml:"status_interval"`

	Agents    []AgentSpec     `yaml:"agents"`
	Behaviors BehaviorsConfig `yaml:"behaviors"`
	Handlers  HandlersConfig  `yaml:"handlers"`
	Token     TokenConfig     `yaml:"token"`
}

// AgentSpec describes one agent: its identity, the peers it is linked to and
// the capabilities it registers.
type AgentSpec struct {
	Name      string   `yaml:"name"`
	Peers     []string `yaml:"peers"`
	Behaviors []string `yaml:"behaviors"`
	Handlers  []string `yaml:"handlers"`
}

// BehaviorsConfig holds per-behavior settings.
type BehaviorsConfig struct {
	RandomWords RandomWordsConfig  `yaml:"random_words"`
	Balance     BalanceCheckConfig `yaml:"token_balance"`
}

// RandomWordsConfig configures the two-word generator.
type RandomWordsConfig struct {
	Interval time.Duration `yaml:"interval"`
	Words    []string      `yaml:"words"`
}

// BalanceCheckConfig configures the periodic balance check.
type BalanceCheckConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// HandlersConfig holds per-handler settings.
type HandlersConfig struct {
	HelloKeyword    string        `yaml:"hello_keyword"`
	TransferKeyword string        `yaml:"transfer_keyword"`
	TransferAmount  string        `yaml:"transfer_amount"`
	TransferTimeout time.Duration `yaml:"transfer_timeout"`
}

// TokenConfig holds the token service settings.
type TokenConfig struct {
	Enabled      bool          `yaml:"enabled"`
	RPCURLs      []string      `yaml:"rpc_urls"`
	ChainID      uint64        `yaml:"chain_id"`
	Contract     string        `yaml:"contract"`
	SourceWallet string        `yaml:"source_wallet"`
	TargetWallet string        `yaml:"target_wallet"`
	Credential   string        `yaml:"-"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Default returns the two-agent configuration with every capability enabled
// on both agents.
func Default() *Config {
	capabilities := func(name, peer string) AgentSpec {
		return AgentSpec{
			Name:      name,
			Peers:     []string{peer},
			Behaviors: []string{BehaviorRandomWords, BehaviorTokenBalance},
			Handlers:  []string{HandlerHello, HandlerTransfer},
		}
	}

	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		IdleInterval:   agent.DefaultIdleInterval,
		BridgeInterval: agent.DefaultBridgeInterval,
		Agents: []AgentSpec{
			capabilities("Agent1", "Agent2"),
			capabilities("Agent2", "Agent1"),
		},
		Behaviors: BehaviorsConfig{
			RandomWords: RandomWordsConfig{
				Interval: behaviors.DefaultRandomWordsInterval,
				Words:    append([]string(nil), behaviors.DefaultWords...),
			},
			Balance: BalanceCheckConfig{
				Interval: behaviors.DefaultBalanceInterval,
				Timeout:  behaviors.DefaultBalanceTimeout,
			},
		},
		Handlers: HandlersConfig{
			HelloKeyword:    "hello",
			TransferKeyword: "crypto",
			TransferAmount:  "1",
			TransferTimeout: 2 * time.Minute,
		},
		Token: TokenConfig{
			Enabled: true,
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads a configuration with Read and validates it.
func Load(path, envFile string) (*Config, error) {
	cfg, err := Read(path, envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds a configuration from defaults, the YAML file at path (skipped
// when path is empty), the .env file at envFile (a missing file is ignored)
// and the process environment. The result is not validated.
func Read(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, agent.NewAgentErrorWithCause(agent.ErrInvalidConfiguration, "open config file", err)
		}
		defer f.Close()

		if err := cfg.Decode(f); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, agent.NewAgentErrorWithCause(agent.ErrInvalidConfiguration, "load env file "+envFile, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Decode overlays YAML from r onto cfg.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return agent.NewAgentErrorWithCause(agent.ErrInvalidConfiguration, "parse config", err)
	}
	return nil
}

// ApplyEnv overrides token and logging settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(EnvContractAddress, &c.Token.Contract)
	set(EnvSourceWallet, &c.Token.SourceWallet)
	set(EnvTargetWallet, &c.Token.TargetWallet)
	set(EnvCredential, &c.Token.Credential)
	set(EnvLogLevel, &c.LogLevel)

	if v, ok := lookup(EnvRPCURLs); ok && strings.TrimSpace(v) != "" {
		c.Token.RPCURLs = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Token.RPCURLs = append(c.Token.RPCURLs, u)
			}
		}
	}
	if v, ok := lookup(EnvForkRPCURL); ok && strings.TrimSpace(v) != "" {
		c.Token.RPCURLs = appendUnique(c.Token.RPCURLs, strings.TrimSpace(v))
	}
}

// Validate reports the first setup error that must keep the agents from starting.
func (c *Config) Validate() error {
	if _, err := agent.ParseLogLevel(c.LogLevel); err != nil {
		return invalid("%v", err)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return invalid("unknown log format %q", c.LogFormat)
	}
	if c.IdleInterval <= 0 {
		return invalid("idle_interval must be positive")
	}
	if c.BridgeInterval <= 0 {
		return invalid("bridge_interval must be positive")
	}
	if len(c.Agents) == 0 {
		return invalid("at least one agent is required")
	}

	names := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return invalid("agent name cannot be empty")
		}
		if names[a.Name] {
			return invalid("duplicate agent name %q", a.Name)
		}
		names[a.Name] = true
	}

	for _, a := range c.Agents {
		for _, p := range a.Peers {
			if !names[p] {
				return invalid("agent %q links to unknown peer %q", a.Name, p)
			}
			if p == a.Name {
				return invalid("agent %q cannot link to itself", a.Name)
			}
		}
		for _, b := range a.Behaviors {
			if b != BehaviorRandomWords && b != BehaviorTokenBalance {
				return invalid("agent %q has unknown behavior %q", a.Name, b)
			}
		}
		for _, h := range a.Handlers {
			if h != HandlerHello && h != HandlerTransfer {
				return invalid("agent %q has unknown handler %q", a.Name, h)
			}
		}
	}

	if c.Behaviors.RandomWords.Interval <= 0 {
		return invalid("behaviors.random_words.interval must be positive")
	}
	if len(c.Behaviors.RandomWords.Words) == 0 {
		return invalid("behaviors.random_words.words cannot be empty")
	}
	if c.Behaviors.Balance.Interval <= 0 {
		return invalid("behaviors.token_balance.interval must be positive")
	}
	if c.Behaviors.Balance.Timeout <= 0 {
		return invalid("behaviors.token_balance.timeout must be positive")
	}
	if c.Handlers.HelloKeyword == "" || c.Handlers.TransferKeyword == "" {
		return invalid("handler keywords cannot be empty")
	}
	if amount, err := token.ParseAmount(c.Handlers.TransferAmount); err != nil || amount.Sign() == 0 {
		return invalid("handlers.transfer_amount must be a positive number, got %q", c.Handlers.TransferAmount)
	}

	if c.Token.Enabled && c.UsesToken() {
		return c.validateToken()
	}
	return nil
}

// DisableToken turns off the token service and removes token capabilities
// from every agent.
func (c *Config) DisableToken() {
	c.Token.Enabled = false
	for i := range c.Agents {
		c.Agents[i].Behaviors = without(c.Agents[i].Behaviors, BehaviorTokenBalance)
		c.Agents[i].Handlers = without(c.Agents[i].Handlers, HandlerTransfer)
	}
}

// UsesToken reports whether any agent registers a token capability.
func (c *Config) UsesToken() bool {
	for _, a := range c.Agents {
		for _, b := range a.Behaviors {
			if b == BehaviorTokenBalance {
				return true
			}
		}
		for _, h := range a.Handlers {
			if h == HandlerTransfer {
				return true
			}
		}
	}
	return false
}

func (c *Config) validateToken() error {
	if len(c.Token.RPCURLs) == 0 {
		return invalid("token.rpc_urls is required (or set %s / %s)", EnvRPCURLs, EnvForkRPCURL)
	}
	required := []struct{ field, value string }{
		{EnvContractAddress, c.Token.Contract},
		{EnvSourceWallet, c.Token.SourceWallet},
		{EnvTargetWallet, c.Token.TargetWallet},
	}
	for _, r := range required {
		if r.value == "" {
			return invalid("%s is required", r.field)
		}
		if err := token.ValidateAddress(r.field, r.value); err != nil {
			return err
		}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return agent.NewAgentError(agent.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func without(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
