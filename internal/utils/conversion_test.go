package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFixed(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		precision int
		expected  string
		wantErr   error
	}{
		{name: "price", input: "0.12", precision: 18, expected: "120000000000000000"},
		{name: "whole stable", input: "1000", precision: 6, expected: "1000000000"},
		{name: "trailing zeros", input: "1.500000000", precision: 6, expected: "1500000"},
		{name: "exponent form", input: "1e3", precision: 0, expected: "1000"},
		{name: "zero", input: "0", precision: 18, expected: "0"},
		{name: "too precise", input: "0.0000001", precision: 6, wantErr: ErrTooPrecise},
		{name: "negative", input: "-1", precision: 6, wantErr: ErrAmountNegative},
		{name: "garbage", input: "abc", precision: 6, wantErr: ErrConversionFailed},
		{name: "infinity", input: "Inf", precision: 6, wantErr: ErrNotFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFixed(tt.input, tt.precision)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "0.12", FormatFixed(sdkmath.NewInt(120_000_000_000_000_000), 18))
	assert.Equal(t, "1000", FormatFixed(sdkmath.NewInt(1_000_000_000), 6))
	assert.Equal(t, "1.000001", FormatFixed(sdkmath.NewInt(1_000_001), 6))
	assert.Equal(t, "-0.5", FormatFixed(sdkmath.NewInt(-500_000), 6))
	assert.Equal(t, "0", FormatFixed(sdkmath.Int{}, 6))
	assert.Equal(t, "42", FormatFixed(sdkmath.NewInt(42), 0))
}

func TestSDKIntToFloat64(t *testing.T) {
	f, err := SDKIntToFloat64(sdkmath.NewInt(1_500_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-12)

	_, err = SDKIntToFloat64(sdkmath.Int{}, 6)
	require.ErrorIs(t, err, ErrAmountNil)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), -1)
	require.ErrorIs(t, err, ErrInvalidPrecision)
}
