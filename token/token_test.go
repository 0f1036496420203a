package token

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ira-ai-automation/agentpair/agent"
)

func TestIsAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{sourceWallet, true},
		{"0xAbCdEf0123456789abcdef0123456789ABCDEF01", true},
		{"1111111111111111111111111111111111111111", false},
		{"0x111111111111111111111111111111111111111", false},
		{"0x111111111111111111111111111111111111111g", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAddress(tt.in), tt.in)
	}

	err := ValidateAddress("target", "0x12")
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))
	assert.Contains(t, err.Error(), "target")
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x1111...1111", ShortAddress(sourceWallet))
	assert.Equal(t, "0x12", ShortAddress("0x12"))
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 0.25 ")
	require.NoError(t, err)
	assert.Equal(t, 0, amount.Cmp(big.NewRat(1, 4)))

	_, err = ParseAmount("-1")
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))
	_, err = ParseAmount("one")
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))
}

func TestBaseUnits(t *testing.T) {
	units, err := ToBaseUnits(big.NewRat(3, 2), 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", units.String())

	units, err = ToBaseUnits(big.NewRat(1, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, "1", units.String())

	_, err = ToBaseUnits(big.NewRat(1, 1000), 2)
	assert.Equal(t, agent.ErrInvalidConfiguration, agent.CodeOf(err))

	back := FromBaseUnits(big.NewInt(1_250_000), 6)
	assert.Equal(t, 0, back.Cmp(big.NewRat(5, 4)))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "12.5", FormatAmount(big.NewRat(25, 2), 18))
	assert.Equal(t, "100", FormatAmount(big.NewRat(100, 1), 18))
	assert.Equal(t, "0", FormatAmount(new(big.Rat), 18))
	assert.Equal(t, "0.33", FormatAmount(big.NewRat(1, 3), 2))
}

func TestABIEncoding(t *testing.T) {
	assert.Equal(t, "0x70a08231"+strings.Repeat("0", 24)+strings.Repeat("1", 40), balanceOfCall(sourceWallet))

	data, err := transferCall("0xABCDEF0123456789ABCDEF0123456789ABCDEF01", big.NewInt(255))
	require.NoError(t, err)
	assert.Equal(t, "0xa9059cbb"+
		"000000000000000000000000abcdef0123456789abcdef0123456789abcdef01"+
		"00000000000000000000000000000000000000000000000000000000000000ff", data)

	_, err = encodeUint256(big.NewInt(-1))
	assert.Error(t, err)
	_, err = encodeUint256(new(big.Int).Add(maxUint256, big.NewInt(1)))
	assert.Error(t, err)
}

func TestABIDecoding(t *testing.T) {
	v, err := decodeUint256("0x" + strings.Repeat("0", 62) + "12")
	require.NoError(t, err)
	assert.EqualValues(t, 18, v.Int64())

	_, err = decodeUint256("0x")
	assert.Error(t, err)
	_, err = decodeUint256("0xzz")
	assert.Error(t, err)

	q, err := decodeQuantity(encodeQuantity(100000))
	require.NoError(t, err)
	assert.EqualValues(t, 100000, q)
	assert.Equal(t, "0x186a0", encodeQuantity(100000))

	_, err = decodeQuantity("0x")
	assert.Error(t, err)
}
