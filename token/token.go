// Package token provides access to an ERC20 token over Ethereum JSON-RPC: balance
// lookups and transfers from a node-managed account.
package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ira-ai-automation/agentpair/agent"
)

// Service is the external token service used by the balance behavior and the
// transfer handler.
type Service interface {
	// Balance returns the token balance of address in whole tokens.
	Balance(ctx context.Context, address string) (*big.Rat, error)

	// Transfer moves Amount whole tokens from From to To and waits for the
	// transaction to be mined.
	Transfer(ctx context.Context, req TransferRequest) (*Receipt, error)
}

// TransferRequest describes one token transfer.
type TransferRequest struct {
	From   string
	To     string
	Amount *big.Rat
	// Credential unlocks the From account on the node. It is never logged.
	Credential string
}

// Receipt is the outcome of a mined transfer.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	for _, c := range s[2:] {
		if !isHex(c) {
			return false
		}
	}
	return true
}

// ValidateAddress returns an ErrInvalidConfiguration error when s is not an address.
func ValidateAddress(field, s string) error {
	if !IsAddress(s) {
		return agent.NewAgentError(agent.ErrInvalidConfiguration,
			fmt.Sprintf("%s is not a valid address: %q", field, s))
	}
	return nil
}

// ShortAddress abbreviates an address for log lines: 0x1234...abcd.
func ShortAddress(s string) string {
	if len(s) < 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// ParseAmount parses a non-negative decimal token amount such as "1" or "0.25".
func ParseAmount(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, fmt.Sprintf("invalid amount %q", s))
	}
	if r.Sign() < 0 {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration, fmt.Sprintf("amount %q is negative", s))
	}
	return r, nil
}

// ToBaseUnits converts whole tokens to the contract's integer units.
func ToBaseUnits(amount *big.Rat, decimals uint8) (*big.Int, error) {
	scaled := new(big.Rat).Mul(amount, new(big.Rat).SetInt(pow10(decimals)))
	if !scaled.IsInt() {
		return nil, agent.NewAgentError(agent.ErrInvalidConfiguration,
			fmt.Sprintf("amount %s has more than %d decimals", amount.FloatString(int(decimals)+1), decimals))
	}
	return new(big.Int).Set(scaled.Num()), nil
}

// FromBaseUnits converts integer contract units to whole tokens.
func FromBaseUnits(units *big.Int, decimals uint8) *big.Rat {
	return new(big.Rat).SetFrac(units, pow10(decimals))
}

// FormatAmount renders an amount without trailing zeros.
func FormatAmount(amount *big.Rat, decimals uint8) string {
	s := amount.FloatString(int(decimals))
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func isHex(c rune) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
