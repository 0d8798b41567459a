package amm

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/credmarket/internal/utils"
)

// PriceScale is the fixed-point scale of spot prices and cumulative accumulators.
var PriceScale = utils.Pow10(18)

// FeeGrowthPrecision scales the per-share fee accumulators.
var FeeGrowthPrecision = utils.Pow10(36)

var bpDenominator = sdkmath.NewInt(utils.BasisPoints)

// GetAmountOut returns the output of a swap of amountIn against the given reserves:
// amountIn*(10000-f)*reserveOut / (reserveIn*10000 + amountIn*(10000-f)).
func GetAmountOut(amountIn, reserveIn, reserveOut sdkmath.Int, feeBp uint32) (sdkmath.Int, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.Int{}, ErrInvalidAmount
	}
	if err := checkBound("amount in", amountIn); err != nil {
		return sdkmath.Int{}, err
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return sdkmath.Int{}, ErrInsufficientLiquidity
	}
	if feeBp >= utils.BasisPoints {
		return sdkmath.Int{}, ErrInvalidFee
	}
	inWithFee := amountIn.Mul(sdkmath.NewIntFromUint64(uint64(utils.BasisPoints - feeBp)))
	denominator := reserveIn.Mul(bpDenominator).Add(inWithFee)
	out := utils.MulDiv(inWithFee, reserveOut, denominator)
	if out.GTE(reserveOut) {
		return sdkmath.Int{}, ErrInsufficientLiquidity
	}
	return out, nil
}

// GetAmountIn returns the smallest input that yields at least amountOut, rounding up.
func GetAmountIn(amountOut, reserveIn, reserveOut sdkmath.Int, feeBp uint32) (sdkmath.Int, error) {
	if amountOut.IsNil() || !amountOut.IsPositive() {
		return sdkmath.Int{}, ErrInvalidAmount
	}
	if err := checkBound("amount out", amountOut); err != nil {
		return sdkmath.Int{}, err
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() || amountOut.GTE(reserveOut) {
		return sdkmath.Int{}, ErrInsufficientLiquidity
	}
	if feeBp >= utils.BasisPoints {
		return sdkmath.Int{}, ErrInvalidFee
	}
	denominator := reserveOut.Sub(amountOut).Mul(sdkmath.NewIntFromUint64(uint64(utils.BasisPoints - feeBp)))
	return utils.MulDivRoundUp(reserveIn.Mul(bpDenominator), amountOut, denominator), nil
}

// InitialLiquidity returns isqrt(credit*stable) and the part of it left after locking
// the minimum. The minted part must be strictly positive.
func InitialLiquidity(credit, stable, minimum sdkmath.Int) (total, minted sdkmath.Int, err error) {
	if credit.IsNil() || stable.IsNil() || !credit.IsPositive() || !stable.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, ErrInvalidAmount
	}
	if err := checkBound("initial credit", credit); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := checkBound("initial stable", stable); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	total = utils.ISqrt(credit.Mul(stable))
	if total.LTE(minimum) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: sqrt liquidity %s, minimum %s", ErrBelowMinimumLiquidity, total, minimum)
	}
	return total, total.Sub(minimum), nil
}

// checkBound rejects quantities above utils.MaxAmount.
func checkBound(field string, amount sdkmath.Int) error {
	if utils.ExceedsMax(amount) {
		return fmt.Errorf("%w: %s %s exceeds %s", ErrInvalidAmount, field, amount, utils.MaxAmount)
	}
	return nil
}

// OptimalDeposit picks the largest pair not exceeding the offered amounts that matches
// the current reserve ratio.
func OptimalDeposit(creditIn, stableIn, reserveCredit, reserveStable sdkmath.Int) (creditUsed, stableUsed sdkmath.Int) {
	stableNeeded := utils.MulDiv(creditIn, reserveStable, reserveCredit)
	if stableNeeded.LTE(stableIn) {
		return creditIn, stableNeeded
	}
	return utils.MulDiv(stableIn, reserveCredit, reserveStable), stableIn
}

// SharesForDeposit mints min(credit*total/reserveCredit, stable*total/reserveStable).
func SharesForDeposit(creditUsed, stableUsed, reserveCredit, reserveStable, totalShares sdkmath.Int) sdkmath.Int {
	byCredit := utils.MulDiv(creditUsed, totalShares, reserveCredit)
	byStable := utils.MulDiv(stableUsed, totalShares, reserveStable)
	return sdkmath.MinInt(byCredit, byStable)
}

// WithdrawAmounts returns each reserve pro-rata to shares/totalShares, rounded down.
func WithdrawAmounts(shares, reserveCredit, reserveStable, totalShares sdkmath.Int) (credit, stable sdkmath.Int) {
	return utils.MulDiv(shares, reserveCredit, totalShares), utils.MulDiv(shares, reserveStable, totalShares)
}

// SpotPrice returns the stable price of one whole credit unit in 1e18 fixed point,
// normalising the decimals of both sides.
func SpotPrice(reserveCredit, reserveStable sdkmath.Int, creditDecimals, stableDecimals int) (sdkmath.Int, error) {
	if !reserveCredit.IsPositive() || !reserveStable.IsPositive() {
		return sdkmath.Int{}, ErrInsufficientLiquidity
	}
	scale := utils.Pow10(18 + creditDecimals - stableDecimals)
	return utils.MulDiv(reserveStable, scale, reserveCredit), nil
}

// CumulativeDelta returns reserveOther*1e18*elapsed/reserveSelf.
func CumulativeDelta(reserveSelf, reserveOther sdkmath.Int, elapsed int64) sdkmath.Int {
	if elapsed <= 0 || !reserveSelf.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return utils.MulDiv(reserveOther.Mul(PriceScale), sdkmath.NewInt(elapsed), reserveSelf)
}

// TWAPFromCumulative derives the average price between two accumulator snapshots.
func TWAPFromCumulative(cumulativeStart sdkmath.Int, tsStart int64, cumulativeEnd sdkmath.Int, tsEnd int64) (sdkmath.Int, error) {
	if tsEnd <= tsStart {
		return sdkmath.Int{}, fmt.Errorf("%w: snapshot window %d..%d is empty", ErrInvalidAmount, tsStart, tsEnd)
	}
	if cumulativeEnd.LT(cumulativeStart) {
		return sdkmath.Int{}, fmt.Errorf("%w: accumulator went backwards", ErrInvalidAmount)
	}
	return cumulativeEnd.Sub(cumulativeStart).QuoRaw(tsEnd - tsStart), nil
}

// SplitFee divides amountIn's fee into the protocol part and the provider part.
func SplitFee(amountIn sdkmath.Int, feeBp, protocolShareBp uint32) (fee, protocol, providers sdkmath.Int) {
	fee = utils.ApplyBasisPoints(amountIn, feeBp)
	protocol = utils.ApplyBasisPoints(fee, protocolShareBp)
	return fee, protocol, fee.Sub(protocol)
}
