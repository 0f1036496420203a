package handlers

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ira-ai-automation/agentpair/agent"
	"github.com/ira-ai-automation/agentpair/token"
)

const (
	// DefaultTransferKeyword triggers a transfer when it appears in a message.
	DefaultTransferKeyword = "crypto"

	// DefaultTransferTimeout bounds one transfer including receipt polling.
	DefaultTransferTimeout = 2 * time.Minute
)

// TransferHandler starts a token transfer when a message mentions its keyword.
// At most one transfer per handler is outstanding; messages that arrive while
// one is in flight are skipped.
type TransferHandler struct {
	name       string
	keyword    string
	service    token.Service
	from       string
	to         string
	amount     *big.Rat
	credential string
	timeout    time.Duration
	guard      *agent.Guard
	logger     agent.Logger
	onResult   func(*token.Receipt, error)
}

// TransferConfig holds configuration for creating a TransferHandler.
type TransferConfig struct {
	Name       string
	Keyword    string
	Service    token.Service
	From       string
	To         string
	Amount     *big.Rat
	Credential string
	Timeout    time.Duration
	Logger     agent.Logger
	// OnResult, if set, receives the outcome of every transfer that ran.
	OnResult func(*token.Receipt, error)
}

// NewTransferHandler creates a transfer handler.
func NewTransferHandler(config TransferConfig) (*TransferHandler, error) {
	if config.Service == nil {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "token service is required")
	}
	if err := token.ValidateAddress("from", config.From); err != nil {
		return nil, err
	}
	if err := token.ValidateAddress("to", config.To); err != nil {
		return nil, err
	}
	if config.Amount == nil {
		config.Amount = big.NewRat(1, 1)
	}
	if config.Amount.Sign() <= 0 {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "transfer amount must be positive")
	}
	if config.Keyword == "" {
		config.Keyword = DefaultTransferKeyword
	}
	if config.Name == "" {
		config.Name = "transfer:" + config.Keyword
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTransferTimeout
	}
	if config.Logger == nil {
		config.Logger = agent.NewDefaultLogger()
	}

	return &TransferHandler{
		name:       config.Name,
		keyword:    config.Keyword,
		service:    config.Service,
		from:       config.From,
		to:         config.To,
		amount:     new(big.Rat).Set(config.Amount),
		credential: config.Credential,
		timeout:    config.Timeout,
		guard:      agent.NewGuard(config.Name),
		logger:     config.Logger.With(agent.Field{Key: "handler", Value: config.Name}),
		onResult:   config.OnResult,
	}, nil
}

// Name returns the handler name.
func (h *TransferHandler) Name() string { return h.name }

// CanHandle reports whether the message content contains the keyword.
func (h *TransferHandler) CanHandle(msg agent.Message) bool {
	return msg.ContainsKeyword(h.keyword)
}

// Handle starts a transfer in the background and returns immediately. The
// transfer is cancelled when ctx is.
func (h *TransferHandler) Handle(ctx context.Context, msg agent.Message) error {
	err := h.guard.Go(ctx, h.timeout, h.transfer, h.finish)
	if errors.Is(err, agent.Code(agent.ErrBusy)) {
		h.logger.Info("Transfer already in progress, skipping",
			agent.Field{Key: "message_id", Value: msg.ID()},
		)
		return nil
	}
	if err != nil {
		return err
	}

	h.logger.Debug("Transfer started", agent.Field{Key: "message_id", Value: msg.ID()})
	return nil
}

// State returns the in-flight state of the handler.
func (h *TransferHandler) State() agent.GuardState {
	return h.guard.State()
}

// Wait blocks until no transfer is outstanding.
func (h *TransferHandler) Wait() {
	h.guard.Wait()
}

func (h *TransferHandler) transfer(ctx context.Context) error {
	balance, err := h.service.Balance(ctx, h.from)
	if err != nil {
		return err
	}
	if balance.Cmp(h.amount) < 0 {
		return agent.NewAgentError(agent.ErrInsufficientBalance, "insufficient balance for transfer").
			WithContext("balance", balance.FloatString(6))
	}

	receipt, err := h.service.Transfer(ctx, token.TransferRequest{
		From:       h.from,
		To:         h.to,
		Amount:     h.amount,
		Credential: h.credential,
	})
	if h.onResult != nil {
		h.onResult(receipt, err)
	}
	if err != nil {
		return err
	}

	h.logger.Info("Transfer succeeded",
		agent.Field{Key: "tx_hash", Value: receipt.TxHash},
		agent.Field{Key: "from", Value: token.ShortAddress(h.from)},
		agent.Field{Key: "to", Value: token.ShortAddress(h.to)},
		agent.Field{Key: "amount", Value: h.amount.RatString()},
	)
	return nil
}

func (h *TransferHandler) finish(err error) {
	if err == nil {
		return
	}

	switch agent.CodeOf(err) {
	case agent.ErrInsufficientBalance:
		h.logger.Warn("Insufficient balance for transfer", agent.Field{Key: "error", Value: err})
	case agent.ErrTimeout, agent.ErrContextCancelled:
		h.logger.Warn("Transfer did not complete", agent.Field{Key: "error", Value: err})
	default:
		h.logger.Error("Token transfer failed", agent.Field{Key: "error", Value: err})
	}
}
