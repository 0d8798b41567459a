/*
This file contains common utility functions for converting between fixed-point
integers, decimal strings and floats. Floats are only ever produced for log
fields and metrics; state transitions stay on integers.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/cockroachdb/apd/v3"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrTooPrecise       = errors.New("value has more fractional digits than the asset precision")
)

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 36 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 36)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}

	result, _ := new(big.Rat).SetFrac(amount.BigInt(), Pow10(precision).BigInt()).Float64()
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

// ParseFixed parses a non-negative decimal string such as "0.12" into a fixed-point
// integer with the given number of decimals. Inputs with more fractional digits than
// the precision are rejected instead of rounded.
func ParseFixed(value string, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > 36 {
		return sdkmath.Int{}, fmt.Errorf("%w: %d (must be between 0 and 36)", ErrInvalidPrecision, precision)
	}
	d, _, err := apd.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %q: %w", ErrConversionFailed, value, err)
	}
	if d.Form != apd.Finite {
		return sdkmath.Int{}, fmt.Errorf("%w: %q", ErrNotFinite, value)
	}
	if d.Negative && !d.IsZero() {
		return sdkmath.Int{}, ErrAmountNegative
	}

	reduced, _ := new(apd.Decimal).Reduce(d)
	exponent := int(reduced.Exponent) + precision
	if exponent < 0 {
		return sdkmath.Int{}, fmt.Errorf("%w: %q at %d decimals", ErrTooPrecise, value, precision)
	}

	coeff := reduced.Coeff.MathBigInt()
	coeff.Mul(coeff, Pow10(exponent).BigInt())
	if coeff.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.Int{}, fmt.Errorf("%w: %q overflows", ErrConversionFailed, value)
	}
	return sdkmath.NewIntFromBigInt(coeff), nil
}

// FormatFixed renders a fixed-point integer as a plain decimal string, trimming
// trailing fractional zeros ("120000000000000000" at 18 decimals -> "0.12").
func FormatFixed(amount sdkmath.Int, precision int) string {
	if amount.IsNil() {
		return "0"
	}
	if precision <= 0 {
		return amount.String()
	}
	abs := new(big.Int).Abs(amount.BigInt())
	quo, rem := new(big.Int).QuoRem(abs, Pow10(precision).BigInt(), new(big.Int))

	var b strings.Builder
	if amount.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(quo.String())
	if rem.Sign() != 0 {
		frac := rem.String()
		frac = strings.Repeat("0", precision-len(frac)) + frac
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(frac, "0"))
	}
	return b.String()
}
