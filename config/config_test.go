package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ira-ai-automation/agentpair/agent"
)

const (
	testContract = "0x2222222222222222222222222222222222222222"
	sourceWallet = "0x1111111111111111111111111111111111111111"
	targetWallet = "0x3333333333333333333333333333333333333333"
)

var envKeys = []string{
	EnvContractAddress, EnvSourceWallet, EnvTargetWallet,
	EnvCredential, EnvForkRPCURL, EnvRPCURLs, EnvLogLevel,
}

// clearEnv removes every variable Read consults for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func tokenConfigured() *Config {
	cfg := Default()
	cfg.ApplyEnv(lookupFrom(map[string]string{
		EnvContractAddress: testContract,
		EnvSourceWallet:    sourceWallet,
		EnvTargetWallet:    targetWallet,
		EnvForkRPCURL:      "https://rpc.example.test/fork",
	}))
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "Agent1", cfg.Agents[0].Name)
	assert.Equal(t, []string{"Agent2"}, cfg.Agents[0].Peers)
	assert.Equal(t, []string{"Agent1"}, cfg.Agents[1].Peers)
	assert.True(t, cfg.UsesToken())
	assert.Len(t, cfg.Behaviors.RandomWords.Words, 10)

	err := cfg.Validate()
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err), "token settings are missing")

	require.NoError(t, tokenConfigured().Validate())
}

func TestDisableToken(t *testing.T) {
	cfg := Default()
	cfg.DisableToken()

	assert.False(t, cfg.Token.Enabled)
	assert.False(t, cfg.UsesToken())
	for _, a := range cfg.Agents {
		assert.Equal(t, []string{BehaviorRandomWords}, a.Behaviors)
		assert.Equal(t, []string{HandlerHello}, a.Handlers)
	}
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Token.RPCURLs = []string{"http://from-yaml:8545"}

	cfg.ApplyEnv(lookupFrom(map[string]string{
		EnvRPCURLs:      " http://a:8545, ,http://b:8545 ",
		EnvForkRPCURL:   "http://b:8545",
		EnvCredential:   "s3cret",
		EnvLogLevel:     "debug",
		EnvSourceWallet: "  ",
	}))

	assert.Equal(t, []string{"http://a:8545", "http://b:8545"}, cfg.Token.RPCURLs)
	assert.Equal(t, "s3cret", cfg.Token.Credential)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.Token.SourceWallet, "blank values are ignored")

	cfg = Default()
	cfg.ApplyEnv(lookupFrom(map[string]string{EnvForkRPCURL: "http://fork"}))
	assert.Equal(t, []string{"http://fork"}, cfg.Token.RPCURLs)
}

func TestDecode(t *testing.T) {
	cfg := Default()
	err := cfg.Decode(strings.NewReader(`
log_level: warn
log_format: json
bridge_interval: 250ms
agents:
  - name: producer
    peers: [consumer]
    behaviors: [random_words]
  - name: consumer
    handlers: [hello]
behaviors:
  random_words:
    interval: 1s
    words: [alpha, beta]
token:
  enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 250*time.Millisecond, cfg.BridgeInterval)
	assert.Equal(t, agent.DefaultIdleInterval, cfg.IdleInterval, "unset fields keep defaults")
	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "producer", cfg.Agents[0].Name)
	assert.Equal(t, []string{"hello"}, cfg.Agents[1].Handlers)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Behaviors.RandomWords.Words)
	assert.Equal(t, time.Second, cfg.Behaviors.RandomWords.Interval)
	assert.False(t, cfg.Token.Enabled)
	require.NoError(t, cfg.Validate())

	assert.NoError(t, Default().Decode(strings.NewReader("")))

	err = Default().Decode(strings.NewReader("unknown_field: 1\n"))
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"idle interval", func(c *Config) { c.IdleInterval = 0 }},
		{"bridge interval", func(c *Config) { c.BridgeInterval = -time.Second }},
		{"no agents", func(c *Config) { c.Agents = nil }},
		{"empty name", func(c *Config) { c.Agents[0].Name = "" }},
		{"duplicate name", func(c *Config) { c.Agents[1].Name = "Agent1" }},
		{"unknown peer", func(c *Config) { c.Agents[0].Peers = []string{"Agent3"} }},
		{"self link", func(c *Config) { c.Agents[0].Peers = []string{"Agent1"} }},
		{"unknown behavior", func(c *Config) { c.Agents[0].Behaviors = []string{"dance"} }},
		{"unknown handler", func(c *Config) { c.Agents[1].Handlers = []string{"goodbye"} }},
		{"empty words", func(c *Config) { c.Behaviors.RandomWords.Words = []string{} }},
		{"words interval", func(c *Config) { c.Behaviors.RandomWords.Interval = 0 }},
		{"balance timeout", func(c *Config) { c.Behaviors.Balance.Timeout = 0 }},
		{"hello keyword", func(c *Config) { c.Handlers.HelloKeyword = "" }},
		{"zero amount", func(c *Config) { c.Handlers.TransferAmount = "0" }},
		{"bad amount", func(c *Config) { c.Handlers.TransferAmount = "lots" }},
		{"no rpc urls", func(c *Config) { c.Token.RPCURLs = nil }},
		{"bad contract", func(c *Config) { c.Token.Contract = "0xabc" }},
		{"missing target", func(c *Config) { c.Token.TargetWallet = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tokenConfigured()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))
		})
	}
}

func TestValidate_TokenSkippedWithoutTokenCapabilities(t *testing.T) {
	cfg := Default()
	for i := range cfg.Agents {
		cfg.Agents[i].Behaviors = []string{BehaviorRandomWords}
		cfg.Agents[i].Handlers = []string{HandlerHello}
	}
	assert.True(t, cfg.Token.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestRead(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	configPath := filepath.Join(dir, "agentpair.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("status_interval: 5s\n"), 0o600))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(strings.Join([]string{
		EnvContractAddress + "=" + testContract,
		EnvSourceWallet + "=" + sourceWallet,
		EnvTargetWallet + "=" + targetWallet,
		EnvForkRPCURL + "=https://rpc.example.test/fork",
	}, "\n")), 0o600))

	cfg, err := Load(configPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.StatusInterval)
	assert.Equal(t, testContract, cfg.Token.Contract)
	assert.Equal(t, []string{"https://rpc.example.test/fork"}, cfg.Token.RPCURLs)
}

func TestRead_MissingFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Read("", filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Token.Contract)

	_, err = Read(filepath.Join(dir, "missing.yaml"), "")
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))

	// The token settings are absent, so the full load fails validation.
	_, err = Load("", "")
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))
}
