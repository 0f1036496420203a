package behaviors

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ira-ai-automation/agentpair/agent"
	"github.com/ira-ai-automation/agentpair/token"
)

const (
	// DefaultBalanceInterval is the pause between two balance checks.
	DefaultBalanceInterval = 10 * time.Second

	// DefaultBalanceTimeout bounds one balance lookup.
	DefaultBalanceTimeout = 5 * time.Second

	balancePrecision = 18
)

// BalanceBehavior periodically reports a wallet's token balance. A check that
// is still outstanding when the next one is due causes that one to be
// skipped, and a check that exceeds its timeout produces no message.
type BalanceBehavior struct {
	name     string
	service  token.Service
	wallet   string
	contract string
	interval time.Duration
	timeout  time.Duration
	guard    *agent.Guard
	logger   agent.Logger
	clock    func() time.Time
}

// BalanceConfig holds configuration for creating a BalanceBehavior.
type BalanceConfig struct {
	Name     string
	Service  token.Service
	Wallet   string
	Contract string
	Interval time.Duration
	Timeout  time.Duration
	Logger   agent.Logger
	Clock    func() time.Time
}

// NewBalanceBehavior creates a balance check.
func NewBalanceBehavior(config BalanceConfig) (*BalanceBehavior, error) {
	if config.Service == nil {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "token service is required")
	}
	if err := token.ValidateAddress("wallet", config.Wallet); err != nil {
		return nil, err
	}
	if config.Interval < 0 {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "interval cannot be negative")
	}
	if config.Interval == 0 {
		config.Interval = DefaultBalanceInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultBalanceTimeout
	}
	if config.Name == "" {
		config.Name = "token_balance"
	}
	if config.Logger == nil {
		config.Logger = agent.NewDefaultLogger()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	b := &BalanceBehavior{
		name:     config.Name,
		service:  config.Service,
		wallet:   config.Wallet,
		contract: config.Contract,
		interval: config.Interval,
		timeout:  config.Timeout,
		guard:    agent.NewGuard(config.Name),
		logger:   config.Logger.With(agent.Field{Key: "behavior", Value: config.Name}),
		clock:    config.Clock,
	}
	b.logger.Info("Balance behavior initialized", agent.Field{Key: "wallet", Value: token.ShortAddress(b.wallet)})
	return b, nil
}

func (b *BalanceBehavior) Name() string            { return b.name }
func (b *BalanceBehavior) Interval() time.Duration { return b.interval }

// State returns the in-flight state of the check.
func (b *BalanceBehavior) State() agent.GuardState {
	return b.guard.State()
}

// Execute looks up the balance and reports it as a token_balance message. A
// skipped, timed out or failed lookup yields no message and no error.
func (b *BalanceBehavior) Execute(ctx context.Context) (*agent.Message, error) {
	var balance *big.Rat
	err := b.guard.Do(ctx, b.timeout, func(ctx context.Context) error {
		v, err := b.service.Balance(ctx, b.wallet)
		if err != nil {
			return err
		}
		balance = v
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, agent.Code(agent.ErrBusy)):
		b.logger.Debug("Balance check still outstanding, skipping")
		return nil, nil
	case errors.Is(err, agent.Code(agent.ErrTimeout)):
		b.logger.Warn("Balance check timed out", agent.Field{Key: "timeout", Value: b.timeout})
		return nil, nil
	default:
		b.logger.Warn("Balance check failed", agent.Field{Key: "error", Value: err})
		return nil, nil
	}

	human := token.FormatAmount(balance, balancePrecision)
	approx, _ := balance.Float64()

	msg := agent.NewMessage().
		Type(agent.MessageTypeTokenBalance).
		Content("Current balance: "+human).
		WithMetadata("human_balance", approx).
		WithMetadata("wallet_address", b.wallet).
		WithMetadata("contract_address", b.contract).
		WithMetadata("checked_at", b.clock().Format(time.RFC3339Nano)).
		Build()

	b.logger.Info("Token balance checked",
		agent.Field{Key: "wallet", Value: token.ShortAddress(b.wallet)},
		agent.Field{Key: "balance", Value: human},
	)
	return &msg, nil
}
