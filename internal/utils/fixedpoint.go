package utils

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// BasisPoints is the denominator for every fee and weighting parameter.
const BasisPoints = 10_000

// MaxAmount bounds every externally supplied quantity at 2^128-1, so the product
// of any two of them fits in an SDK Int.
var MaxAmount = sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))

// ExceedsMax reports whether x is above MaxAmount.
func ExceedsMax(x sdkmath.Int) bool {
	return !x.IsNil() && x.GT(MaxAmount)
}

// Pow10 returns 10^n as an SDK Int.
func Pow10(n int) sdkmath.Int {
	if n <= 0 {
		return sdkmath.OneInt()
	}
	return sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}

// ISqrt returns floor(sqrt(x)). Negative or nil input yields zero.
func ISqrt(x sdkmath.Int) sdkmath.Int {
	if x.IsNil() || !x.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(new(big.Int).Sqrt(x.BigInt()))
}

// MulDiv returns floor(a*b/c). The intermediate product is computed on big.Int so
// it may exceed the 256-bit bound of SDK Ints as long as the quotient does not.
func MulDiv(a, b, c sdkmath.Int) sdkmath.Int {
	num := new(big.Int).Mul(a.BigInt(), b.BigInt())
	return sdkmath.NewIntFromBigInt(num.Quo(num, c.BigInt()))
}

// MulDivRoundUp returns ceil(a*b/c) for non-negative operands.
func MulDivRoundUp(a, b, c sdkmath.Int) sdkmath.Int {
	num := new(big.Int).Mul(a.BigInt(), b.BigInt())
	quo, rem := new(big.Int).QuoRem(num, c.BigInt(), new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return sdkmath.NewIntFromBigInt(quo)
}

// Log2Floor returns floor(log2(x)). ok is false for x <= 0.
func Log2Floor(x sdkmath.Int) (result int, ok bool) {
	if x.IsNil() || !x.IsPositive() {
		return 0, false
	}
	return x.BigInt().BitLen() - 1, true
}

// ProductGTE reports whether a1*b1 >= a0*b0 without bounding the products.
func ProductGTE(a1, b1, a0, b0 sdkmath.Int) bool {
	after := new(big.Int).Mul(a1.BigInt(), b1.BigInt())
	before := new(big.Int).Mul(a0.BigInt(), b0.BigInt())
	return after.Cmp(before) >= 0
}

// ApplyBasisPoints returns floor(amount*bp/10000).
func ApplyBasisPoints(amount sdkmath.Int, bp uint32) sdkmath.Int {
	return MulDiv(amount, sdkmath.NewIntFromUint64(uint64(bp)), sdkmath.NewInt(BasisPoints))
}

// OrZero normalises a nil SDK Int to zero.
func OrZero(x sdkmath.Int) sdkmath.Int {
	if x.IsNil() {
		return sdkmath.ZeroInt()
	}
	return x
}
