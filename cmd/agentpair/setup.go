package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ira-ai-automation/agentpair/agent"
	"github.com/ira-ai-automation/agentpair/behaviors"
	"github.com/ira-ai-automation/agentpair/config"
	"github.com/ira-ai-automation/agentpair/handlers"
	"github.com/ira-ai-automation/agentpair/token"
)

func newLogger(cfg *config.Config, w io.Writer) (agent.Logger, error) {
	level, err := agent.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return agent.NewJSONLogger(w, level), nil
	}
	return agent.NewTextLogger(w, level), nil
}

func dialToken(ctx context.Context, cfg *config.Config, logger agent.Logger) (*token.Client, error) {
	return token.Dial(ctx, token.ClientConfig{
		Endpoints: cfg.Token.RPCURLs,
		Contract:  cfg.Token.Contract,
		ChainID:   cfg.Token.ChainID,
		Timeout:   cfg.Token.Timeout,
		Logger:    logger,
	})
}

// capabilities holds one instance of every configured capability. Agents that
// list the same capability share the instance, and with it its in-flight guard.
type capabilities struct {
	behaviors map[string]agent.Behavior
	handlers  map[string]agent.Handler
	transfer  *handlers.TransferHandler
}

func newCapabilities(cfg *config.Config, service token.Service, out io.Writer, logger agent.Logger) (*capabilities, error) {
	c := &capabilities{
		behaviors: make(map[string]agent.Behavior),
		handlers:  make(map[string]agent.Handler),
	}

	words, err := behaviors.NewRandomWordsBehavior(behaviors.RandomWordsConfig{
		Words:    cfg.Behaviors.RandomWords.Words,
		Interval: cfg.Behaviors.RandomWords.Interval,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	c.behaviors[config.BehaviorRandomWords] = words

	hello, err := handlers.NewKeywordHandler(handlers.KeywordConfig{
		Name:    config.HandlerHello,
		Keyword: cfg.Handlers.HelloKeyword,
		Output:  out,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	c.handlers[config.HandlerHello] = hello

	if service == nil {
		return c, nil
	}

	balance, err := behaviors.NewBalanceBehavior(behaviors.BalanceConfig{
		Service:  service,
		Wallet:   cfg.Token.SourceWallet,
		Contract: cfg.Token.Contract,
		Interval: cfg.Behaviors.Balance.Interval,
		Timeout:  cfg.Behaviors.Balance.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	c.behaviors[config.BehaviorTokenBalance] = balance

	amount, err := token.ParseAmount(cfg.Handlers.TransferAmount)
	if err != nil {
		return nil, err
	}
	transfer, err := handlers.NewTransferHandler(handlers.TransferConfig{
		Keyword:    cfg.Handlers.TransferKeyword,
		Service:    service,
		From:       cfg.Token.SourceWallet,
		To:         cfg.Token.TargetWallet,
		Amount:     amount,
		Credential: cfg.Token.Credential,
		Timeout:    cfg.Handlers.TransferTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	c.handlers[config.HandlerTransfer] = transfer
	c.transfer = transfer

	return c, nil
}

// buildRuntime creates every configured agent, registers its capabilities and
// links it to its peers. service may be nil when no agent uses a token
// capability. A non-empty only keeps just the agents whose name matches it;
// links to dropped agents are skipped.
func buildRuntime(cfg *config.Config, service token.Service, out io.Writer, logger agent.Logger, telemetry *agent.Telemetry, only string) (*agent.Runtime, *capabilities, error) {
	caps, err := newCapabilities(cfg, service, out, logger)
	if err != nil {
		return nil, nil, err
	}

	rt := agent.NewRuntime(agent.RuntimeConfig{
		Logger:         logger,
		Telemetry:      telemetry,
		BridgeInterval: cfg.BridgeInterval,
		StatusInterval: cfg.StatusInterval,
	})

	for _, spec := range cfg.Agents {
		a, err := agent.NewAgent(agent.AgentConfig{
			Name:         spec.Name,
			IdleInterval: cfg.IdleInterval,
			Logger:       logger,
			Telemetry:    telemetry,
		})
		if err != nil {
			return nil, nil, err
		}

		for _, name := range spec.Behaviors {
			b, ok := caps.behaviors[name]
			if !ok {
				return nil, nil, missingCapability(spec.Name, "behavior", name)
			}
			if err := a.RegisterBehavior(b); err != nil {
				return nil, nil, err
			}
		}
		for _, name := range spec.Handlers {
			h, ok := caps.handlers[name]
			if !ok {
				return nil, nil, missingCapability(spec.Name, "handler", name)
			}
			if err := a.RegisterHandler(h); err != nil {
				return nil, nil, err
			}
		}

		tags := make([]string, 0, len(spec.Behaviors)+len(spec.Handlers))
		tags = append(tags, spec.Behaviors...)
		tags = append(tags, spec.Handlers...)
		if err := rt.Add(a, tags...); err != nil {
			return nil, nil, err
		}
	}

	if only != "" {
		if err := rt.Retain(only); err != nil {
			return nil, nil, err
		}
	}

	for _, spec := range cfg.Agents {
		if _, ok := rt.Agent(spec.Name); !ok {
			continue
		}
		for _, peer := range spec.Peers {
			if _, ok := rt.Agent(peer); !ok {
				logger.Warn("Peer not selected, link skipped",
					agent.Field{Key: "agent", Value: spec.Name},
					agent.Field{Key: "peer", Value: peer},
				)
				continue
			}
			if err := rt.Link(spec.Name, peer); err != nil {
				return nil, nil, err
			}
		}
	}

	return rt, caps, nil
}

func missingCapability(agentName, kind, name string) error {
	return agent.NewAgentError(agent.ErrInvalidConfiguration,
		fmt.Sprintf("agent %s: %s %q is not available (token service disabled?)", agentName, kind, name))
}
