package token

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ERC20 function selectors.
const (
	selectorBalanceOf = "0x70a08231"
	selectorDecimals  = "0x313ce567"
	selectorTransfer  = "0xa9059cbb"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func balanceOfCall(owner string) string {
	return selectorBalanceOf + encodeAddress(owner)
}

func transferCall(to string, units *big.Int) (string, error) {
	amount, err := encodeUint256(units)
	if err != nil {
		return "", err
	}
	return selectorTransfer + encodeAddress(to) + amount, nil
}

// encodeAddress left-pads a 20-byte address to one 32-byte word.
func encodeAddress(addr string) string {
	return strings.Repeat("0", 24) + strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"))
}

func encodeUint256(v *big.Int) (string, error) {
	if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return "", fmt.Errorf("value %s out of uint256 range", v)
	}
	return fmt.Sprintf("%064x", v), nil
}

func decodeUint256(data string) (*big.Int, error) {
	data = strings.TrimPrefix(data, "0x")
	if data == "" {
		return nil, fmt.Errorf("empty return data")
	}
	if len(data) > 64 {
		data = data[:64]
	}
	v, ok := new(big.Int).SetString(data, 16)
	if !ok {
		return nil, fmt.Errorf("invalid return data %q", data)
	}
	return v, nil
}

func encodeQuantity(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

func decodeQuantity(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	return strconv.ParseUint(s, 16, 64)
}
