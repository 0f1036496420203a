package token

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ira-ai-automation/agentpair/agent"
)

const (
	// DefaultGasLimit is used when the node cannot estimate gas for a transfer.
	DefaultGasLimit = 100000

	defaultTimeout             = 10 * time.Second
	defaultMaxAttempts         = 3
	defaultReceiptPollInterval = 2 * time.Second
	defaultReceiptTimeout      = 2 * time.Minute
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// Endpoints are tried in order for every call.
	Endpoints []string
	Contract  string
	// ChainID is checked by Dial when non-zero.
	ChainID             uint64
	Timeout             time.Duration
	MaxAttempts         int
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
	HTTPClient          *http.Client
	Logger              agent.Logger
}

// Client is a Service backed by an ERC20 contract on an Ethereum node.
type Client struct {
	contract string
	rpc      *rpcTransport
	retry    *agent.Retry
	logger   agent.Logger

	pollInterval   time.Duration
	receiptTimeout time.Duration

	mu       sync.Mutex
	decimals *uint8
}

var _ Service = (*Client)(nil)

// NewClient creates a client without contacting the node.
func NewClient(config ClientConfig) (*Client, error) {
	if len(config.Endpoints) == 0 {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "at least one RPC endpoint is required")
	}
	if err := ValidateAddress("contract", config.Contract); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.ReceiptPollInterval <= 0 {
		config.ReceiptPollInterval = defaultReceiptPollInterval
	}
	if config.ReceiptTimeout <= 0 {
		config.ReceiptTimeout = defaultReceiptTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if config.Logger == nil {
		config.Logger = agent.NewDefaultLogger()
	}

	logger := config.Logger.With(agent.Field{Key: "component", Value: "token"})
	return &Client{
		contract: config.Contract,
		rpc: &rpcTransport{
			endpoints: append([]string(nil), config.Endpoints...),
			http:      config.HTTPClient,
			logger:    logger,
		},
		retry: agent.NewRetry(config.MaxAttempts,
			agent.NewExponentialBackoff(200*time.Millisecond, 2*time.Second, 2.0),
			logger,
			func(err error) bool { return agent.CodeOf(err) == agent.ErrProviderUnavailable },
		),
		logger:         logger,
		pollInterval:   config.ReceiptPollInterval,
		receiptTimeout: config.ReceiptTimeout,
	}, nil
}

// Dial creates a client and, when config.ChainID is set, verifies the node
// serves that chain.
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	c, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	if config.ChainID == 0 {
		return c, nil
	}

	id, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if id != config.ChainID {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration,
			fmt.Sprintf("expected chain id %d, node reports %d", config.ChainID, id))
	}

	c.logger.Info("Token client connected",
		agent.Field{Key: "chain_id", Value: id},
		agent.Field{Key: "contract", Value: ShortAddress(c.contract)},
	)
	return c, nil
}

// Contract returns the token contract address.
func (c *Client) Contract() string {
	return c.contract
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var raw string
	if err := c.read(ctx, "eth_chainId", &raw); err != nil {
		return 0, err
	}
	return decodeQuantity(raw)
}

// Decimals returns the token's decimals, cached after the first success.
func (c *Client) Decimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	if c.decimals != nil {
		d := *c.decimals
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	v, err := c.ethCall(ctx, selectorDecimals)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > math.MaxUint8 {
		return 0, fmt.Errorf("decimals out of range: %s", v)
	}

	d := uint8(v.Uint64())
	c.mu.Lock()
	c.decimals = &d
	c.mu.Unlock()
	return d, nil
}

// BalanceUnits returns the raw contract balance of address.
func (c *Client) BalanceUnits(ctx context.Context, address string) (*big.Int, error) {
	if err := ValidateAddress("address", address); err != nil {
		return nil, err
	}
	return c.ethCall(ctx, balanceOfCall(address))
}

// Balance returns the balance of address in whole tokens.
func (c *Client) Balance(ctx context.Context, address string) (*big.Rat, error) {
	units, err := c.BalanceUnits(ctx, address)
	if err != nil {
		return nil, err
	}
	decimals, err := c.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	return FromBaseUnits(units, decimals), nil
}

// Transfer checks the sender's balance, submits a transfer from the
// node-managed From account and waits for its receipt. A mined but reverted
// transaction returns the receipt together with an ErrTransferFailed error.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*Receipt, error) {
	if err := ValidateAddress("from", req.From); err != nil {
		return nil, err
	}
	if err := ValidateAddress("to", req.To); err != nil {
		return nil, err
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, "transfer amount must be positive")
	}

	balance, err := c.Balance(ctx, req.From)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(req.Amount) < 0 {
		return nil, agent.NewAgentError(agent.ErrInsufficientBalance,
			fmt.Sprintf("balance %s is below transfer amount %s", balance.FloatString(6), req.Amount.FloatString(6))).
			WithContext("from", req.From)
	}

	decimals, err := c.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	units, err := ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return nil, err
	}
	data, err := transferCall(req.To, units)
	if err != nil {
		return nil, err
	}

	tx := map[string]string{
		"from": req.From,
		"to":   c.contract,
		"data": data,
	}
	tx["gas"] = encodeQuantity(c.estimateGas(ctx, tx))

	var hash string
	if req.Credential != "" {
		err = c.rpc.call(ctx, "personal_sendTransaction", &hash, tx, req.Credential)
	} else {
		err = c.rpc.call(ctx, "eth_sendTransaction", &hash, tx)
	}
	if err != nil {
		return nil, agent.NewAgentErrorWithCause(agent.ErrTransferFailed, "submit transfer", err)
	}

	c.logger.Info("Transfer submitted",
		agent.Field{Key: "tx_hash", Value: hash},
		agent.Field{Key: "from", Value: ShortAddress(req.From)},
		agent.Field{Key: "to", Value: ShortAddress(req.To)},
		agent.Field{Key: "amount", Value: FormatAmount(req.Amount, decimals)},
	)

	receipt, err := c.waitReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !receipt.Success {
		return receipt, agent.NewAgentError(agent.ErrTransferFailed, "transfer reverted").
			WithContext("tx_hash", hash)
	}
	return receipt, nil
}

func (c *Client) estimateGas(ctx context.Context, tx map[string]string) uint64 {
	var raw string
	if err := c.read(ctx, "eth_estimateGas", &raw, tx); err == nil {
		if gas, err := decodeQuantity(raw); err == nil && gas > 0 {
			return gas + gas/5
		}
	}
	c.logger.Debug("Gas estimate unavailable, using default", agent.Field{Key: "gas", Value: DefaultGasLimit})
	return DefaultGasLimit
}

type rpcReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
	Status          string `json:"status"`
}

func (c *Client) waitReceipt(parent context.Context, hash string) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(parent, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	timedOut := func() error {
		return agent.NewAgentErrorWithCause(agent.ErrTimeout, "waiting for receipt of "+hash, ctx.Err())
	}

	for {
		var raw *rpcReceipt
		if err := c.read(ctx, "eth_getTransactionReceipt", &raw, hash); err != nil {
			if ctx.Err() != nil && parent.Err() == nil {
				return nil, timedOut()
			}
			return nil, err
		}
		if raw != nil {
			block, _ := decodeQuantity(raw.BlockNumber)
			gas, _ := decodeQuantity(raw.GasUsed)
			return &Receipt{
				TxHash:      raw.TransactionHash,
				BlockNumber: block,
				GasUsed:     gas,
				Success:     raw.Status == "0x1",
			}, nil
		}

		select {
		case <-ctx.Done():
			if parent.Err() != nil {
				return nil, agent.NewAgentErrorWithCause(agent.ErrContextCancelled, "waiting for receipt of "+hash, parent.Err())
			}
			return nil, timedOut()
		case <-ticker.C:
		}
	}
}

func (c *Client) ethCall(ctx context.Context, data string) (*big.Int, error) {
	var raw string
	call := map[string]string{"to": c.contract, "data": data}
	if err := c.read(ctx, "eth_call", &raw, call, "latest"); err != nil {
		return nil, err
	}
	return decodeUint256(raw)
}

// read is a retried call for idempotent methods. When the attempts run out
// the last error is returned, so callers see ErrProviderUnavailable.
func (c *Client) read(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.rpc.call(ctx, method, out, params...)
	})
	if agent.CodeOf(err) == agent.ErrResourceExhausted {
		if cause := errors.Unwrap(err); cause != nil {
			return cause
		}
	}
	return err
}
