/*

This file contains the composite reputation score. All components are integers so
that scores are reproducible across runs.

*/

package analyzer

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

// logDivisor scales a 1e18 TWAP before taking log2. A price of 0.0001 maps to 1.
var logDivisor = utils.Pow10(14)

const scoreDenominator = 1_000_000

type bracket struct {
	below  int64 // whole stable units, exclusive
	weight uint64
}

var volumeBrackets = []bracket{
	{100, 50},
	{500, 70},
	{1_000, 90},
	{5_000, 110},
	{10_000, 130},
	{25_000, 150},
}

const volumeWeightMax = 200

var liquidityBrackets = []bracket{
	{500, 100},
	{1_000, 105},
	{5_000, 110},
	{10_000, 120},
	{25_000, 130},
	{50_000, 140},
}

const liquidityMultiplierMax = 150

// Stability bonus by volatility in basis points of the mean.
var stabilityBrackets = []bracket{
	{500, 120},
	{1_000, 110},
	{2_000, 100},
	{3_500, 90},
}

const (
	stabilityBonusMin     = 80
	stabilityBonusNeutral = 100
)

// LogComponent returns floor(log2(twap/1e14))*100, or 0 when twap < 1e14.
func LogComponent(twap sdkmath.Int) uint64 {
	if twap.IsNil() {
		return 0
	}
	exp, ok := utils.Log2Floor(twap.Quo(logDivisor))
	if !ok {
		return 0
	}
	return uint64(exp) * 100
}

// VolumeWeight maps 24h volume (stable smallest units) to its bracket weight.
func VolumeWeight(volume sdkmath.Int, stableDecimals int) uint64 {
	return lookupBracket(volume, stableDecimals, volumeBrackets, volumeWeightMax)
}

// LiquidityMultiplier maps pool liquidity (stable smallest units) to its multiplier.
func LiquidityMultiplier(liquidity sdkmath.Int, stableDecimals int) uint64 {
	return lookupBracket(liquidity, stableDecimals, liquidityBrackets, liquidityMultiplierMax)
}

// StabilityBonus rewards low volatility. Fewer than minSamples prices is neutral.
func StabilityBonus(prices []sdkmath.Int, minSamples int) uint64 {
	if len(prices) < minSamples {
		return stabilityBonusNeutral
	}
	volBp, err := CalculateVolatility(prices)
	if err != nil {
		return stabilityBonusNeutral
	}
	for _, b := range stabilityBrackets {
		if volBp < uint64(b.below) {
			return b.weight
		}
	}
	return stabilityBonusMin
}

// CalculateReputationScore combines the four components into a 0-1000 score:
// min(1000, log*volume*liquidity*stability / 1e6). A zero TWAP scores zero.
func CalculateReputationScore(in types.ScoreInputs, params types.MarketParameters) types.ScoreBreakdown {
	scoreLogger := logger.GetForComponent("reputation_scorer")
	if in.TWAP.IsNil() || !in.TWAP.IsPositive() {
		scoreLogger.Debug().Msg("TWAP is zero, score is zero")
		return types.ScoreBreakdown{}
	}

	out := types.ScoreBreakdown{
		LogComponent:        LogComponent(in.TWAP),
		VolumeWeight:        VolumeWeight(utils.OrZero(in.Volume24h), params.StableDecimals),
		LiquidityMultiplier: LiquidityMultiplier(utils.OrZero(in.Liquidity), params.StableDecimals),
		StabilityBonus:      StabilityBonus(in.Prices, params.StabilityMinSamples),
	}

	raw := sdkmath.NewIntFromUint64(out.LogComponent).
		Mul(sdkmath.NewIntFromUint64(out.VolumeWeight)).
		Mul(sdkmath.NewIntFromUint64(out.LiquidityMultiplier)).
		Mul(sdkmath.NewIntFromUint64(out.StabilityBonus)).
		QuoRaw(scoreDenominator)
	if raw.GT(sdkmath.NewIntFromUint64(types.MaxReputationScore)) {
		out.Score = types.MaxReputationScore
	} else {
		out.Score = raw.Uint64()
	}

	scoreLogger.Debug().
		Str("twap", in.TWAP.String()).
		Uint64("log", out.LogComponent).
		Uint64("volumeWeight", out.VolumeWeight).
		Uint64("liquidityMultiplier", out.LiquidityMultiplier).
		Uint64("stabilityBonus", out.StabilityBonus).
		Uint64("score", out.Score).
		Msg("Reputation score calculated")
	return out
}

func lookupBracket(amount sdkmath.Int, decimals int, brackets []bracket, max uint64) uint64 {
	unit := utils.Pow10(decimals)
	for _, b := range brackets {
		if amount.LT(sdkmath.NewInt(b.below).Mul(unit)) {
			return b.weight
		}
	}
	return max
}
