package analyzer

import (
	"errors"
	"math"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/credmarket/internal/utils"
)

// ErrInsufficientData indicates that the window holds too few samples for the
// requested statistic. It is never reported as a zero value.
var ErrInsufficientData = errors.New("insufficient data points in window")

// CalculateVolatility returns the population standard deviation of prices around
// their mean, as a percentage of the mean in basis points (500 = 5%).
// Needs at least two prices.
func CalculateVolatility(prices []sdkmath.Int) (uint64, error) {
	n := len(prices)
	if n < 2 {
		return 0, ErrInsufficientData
	}

	// --- Mean ---
	sum := sdkmath.ZeroInt()
	for _, p := range prices {
		sum = sum.Add(p)
	}
	count := sdkmath.NewInt(int64(n))
	mean := sum.Quo(count)
	if !mean.IsPositive() {
		return 0, ErrInsufficientData
	}

	// --- Population variance ---
	// Squares are summed on big.Int; a square of a 128-bit price is already 256 bits.
	sumSqDiff := new(big.Int)
	diff := new(big.Int)
	for _, p := range prices {
		diff.Sub(p.BigInt(), mean.BigInt())
		sumSqDiff.Add(sumSqDiff, new(big.Int).Mul(diff, diff))
	}
	variance := sumSqDiff.Quo(sumSqDiff, count.BigInt())
	stdDev := sdkmath.NewIntFromBigInt(variance.Sqrt(variance))

	volatility := utils.MulDiv(stdDev, sdkmath.NewInt(utils.BasisPoints), mean)
	if !volatility.IsUint64() {
		return math.MaxUint64, nil
	}
	return volatility.Uint64(), nil
}
