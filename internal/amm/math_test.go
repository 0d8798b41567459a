package amm

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/credmarket/internal/utils"
)

func TestGetAmountOutScenario(t *testing.T) {
	out, err := GetAmountOut(sdkmath.NewInt(1000), sdkmath.NewInt(10_000), sdkmath.NewInt(100_000), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(9066), out.Int64())
}

func TestGetAmountOutErrors(t *testing.T) {
	_, err := GetAmountOut(sdkmath.ZeroInt(), sdkmath.NewInt(10), sdkmath.NewInt(10), 30)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = GetAmountOut(sdkmath.NewInt(1), sdkmath.ZeroInt(), sdkmath.NewInt(10), 30)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = GetAmountOut(sdkmath.NewInt(1), sdkmath.NewInt(10), sdkmath.NewInt(10), 10_000)
	assert.ErrorIs(t, err, ErrInvalidFee)

	huge := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 250))
	require.NotPanics(t, func() {
		_, err = GetAmountOut(huge, sdkmath.NewInt(10_000), sdkmath.NewInt(100_000), 30)
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	out, err := GetAmountOut(utils.MaxAmount, utils.MaxAmount, utils.MaxAmount, 30)
	require.NoError(t, err)
	assert.True(t, out.LT(utils.MaxAmount))
}

func TestGetAmountInRoundsUp(t *testing.T) {
	reserveIn, reserveOut := sdkmath.NewInt(10_000), sdkmath.NewInt(100_000)
	target := sdkmath.NewInt(9066)

	in, err := GetAmountIn(target, reserveIn, reserveOut, 30)
	require.NoError(t, err)

	out, err := GetAmountOut(in, reserveIn, reserveOut, 30)
	require.NoError(t, err)
	assert.True(t, out.GTE(target), "quoted input %s only yields %s", in, out)

	short, err := GetAmountOut(in.SubRaw(1), reserveIn, reserveOut, 30)
	require.NoError(t, err)
	assert.True(t, short.LT(target), "one unit less than %s should not reach the target", in)

	_, err = GetAmountIn(reserveOut, reserveIn, reserveOut, 30)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestInitialLiquidity(t *testing.T) {
	total, minted, err := InitialLiquidity(sdkmath.NewInt(100_000), sdkmath.NewInt(10_000), sdkmath.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(31622), total.Int64())
	assert.Equal(t, int64(30622), minted.Int64())

	_, _, err = InitialLiquidity(sdkmath.NewInt(1000), sdkmath.NewInt(1000), sdkmath.NewInt(1000))
	assert.ErrorIs(t, err, ErrBelowMinimumLiquidity)

	_, _, err = InitialLiquidity(sdkmath.NewInt(-1), sdkmath.NewInt(1000), sdkmath.NewInt(1000))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = InitialLiquidity(utils.MaxAmount.AddRaw(1), sdkmath.NewInt(1000), sdkmath.NewInt(1000))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	total, _, err = InitialLiquidity(utils.MaxAmount, utils.MaxAmount, sdkmath.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, utils.MaxAmount.String(), total.String())
}

func TestOptimalDeposit(t *testing.T) {
	rc, rs := sdkmath.NewInt(100_000), sdkmath.NewInt(10_000)

	c, s := OptimalDeposit(sdkmath.NewInt(10_000), sdkmath.NewInt(5000), rc, rs)
	assert.Equal(t, int64(10_000), c.Int64())
	assert.Equal(t, int64(1000), s.Int64())

	c, s = OptimalDeposit(sdkmath.NewInt(50_000), sdkmath.NewInt(100), rc, rs)
	assert.Equal(t, int64(1000), c.Int64())
	assert.Equal(t, int64(100), s.Int64())
}

func TestSpotPriceNormalisesDecimals(t *testing.T) {
	// 100 credits (18 decimals) against 12 stable (6 decimals) is 0.12 stable per credit.
	credit := sdkmath.NewInt(100).Mul(sdkmath.NewInt(1_000_000_000_000_000_000))
	stable := sdkmath.NewInt(12_000_000)
	price, err := SpotPrice(credit, stable, 18, 6)
	require.NoError(t, err)
	assert.Equal(t, "120000000000000000", price.String())

	price, err = SpotPrice(sdkmath.NewInt(100_000), sdkmath.NewInt(10_000), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", price.String())
}

func TestTWAPFromCumulative(t *testing.T) {
	start := sdkmath.NewInt(1_000)
	end := start.Add(CumulativeDelta(sdkmath.NewInt(100_000), sdkmath.NewInt(10_000), 600))
	twap, err := TWAPFromCumulative(start, 100, end, 700)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", twap.String())

	_, err = TWAPFromCumulative(start, 100, end, 100)
	assert.Error(t, err)
}

func TestSplitFee(t *testing.T) {
	fee, protocol, providers := SplitFee(sdkmath.NewInt(1_000_000), 30, 1667)
	assert.Equal(t, int64(3000), fee.Int64())
	assert.Equal(t, int64(500), protocol.Int64())
	assert.Equal(t, int64(2500), providers.Int64())
}
