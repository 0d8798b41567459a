package utils

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestISqrt(t *testing.T) {
	tests := []struct {
		in       int64
		expected int64
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 2},
		{99, 9},
		{100, 10},
		{1_000_000_000, 31622},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ISqrt(sdkmath.NewInt(tt.in)).Int64(), "isqrt(%d)", tt.in)
	}
	assert.True(t, ISqrt(sdkmath.NewInt(-5)).IsZero())
	assert.True(t, ISqrt(sdkmath.Int{}).IsZero())
}

func TestMulDivRounding(t *testing.T) {
	a, b, c := sdkmath.NewInt(10), sdkmath.NewInt(10), sdkmath.NewInt(3)
	assert.Equal(t, int64(33), MulDiv(a, b, c).Int64())
	assert.Equal(t, int64(34), MulDivRoundUp(a, b, c).Int64())

	exact := MulDivRoundUp(sdkmath.NewInt(9), sdkmath.NewInt(2), sdkmath.NewInt(3))
	assert.Equal(t, int64(6), exact.Int64())
}

func TestMulDivLargeIntermediate(t *testing.T) {
	// 2^200 * 2^100 overflows the 256-bit SDK bound, the quotient does not.
	a := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 200))
	b := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 100))
	res := MulDiv(a, b, b)
	assert.True(t, res.Equal(a))
}

func TestLog2Floor(t *testing.T) {
	tests := []struct {
		in       int64
		expected int
	}{
		{1, 0},
		{2, 1},
		{3, 1},
		{1000, 9},
		{1024, 10},
		{1200, 10},
	}
	for _, tt := range tests {
		got, ok := Log2Floor(sdkmath.NewInt(tt.in))
		require.True(t, ok)
		assert.Equal(t, tt.expected, got, "log2(%d)", tt.in)
	}
	_, ok := Log2Floor(sdkmath.ZeroInt())
	assert.False(t, ok)
}

func TestApplyBasisPoints(t *testing.T) {
	assert.Equal(t, int64(3), ApplyBasisPoints(sdkmath.NewInt(1000), 30).Int64())
	assert.Equal(t, int64(0), ApplyBasisPoints(sdkmath.NewInt(333), 30).Int64())
	assert.Equal(t, int64(1666), ApplyBasisPoints(sdkmath.NewInt(10_000), 1666).Int64())
}

func TestProductGTE(t *testing.T) {
	assert.True(t, ProductGTE(sdkmath.NewInt(11), sdkmath.NewInt(10), sdkmath.NewInt(10), sdkmath.NewInt(11)))
	assert.False(t, ProductGTE(sdkmath.NewInt(10), sdkmath.NewInt(10), sdkmath.NewInt(10), sdkmath.NewInt(11)))
}

func TestMaxAmountProductFits(t *testing.T) {
	assert.Equal(t, 128, MaxAmount.BigInt().BitLen())
	assert.False(t, ExceedsMax(MaxAmount))
	assert.True(t, ExceedsMax(MaxAmount.AddRaw(1)))
	assert.False(t, ExceedsMax(sdkmath.Int{}))

	require.NotPanics(t, func() { _ = MaxAmount.Mul(MaxAmount) })
}
