package analyzer

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

func price(t *testing.T, s string) sdkmath.Int {
	t.Helper()
	p, err := utils.ParseFixed(s, 18)
	require.NoError(t, err)
	return p
}

func samples(t *testing.T, points ...any) []types.PriceSample {
	t.Helper()
	var out []types.PriceSample
	for i := 0; i < len(points); i += 2 {
		out = append(out, types.PriceSample{
			Asset:     "cred/a",
			Price:     price(t, points[i].(string)),
			Timestamp: int64(points[i+1].(int)),
		})
	}
	return out
}

func TestTWAPTwoSampleScenario(t *testing.T) {
	history := samples(t, "0.12", 0, "0.08", 3600)

	// At t=3600 the newer sample has not been in effect yet, so 0.12 held for the whole window.
	twap, err := CalculateTWAP(history, 3600, 3600)
	require.NoError(t, err)
	assert.Equal(t, price(t, "0.12").String(), twap.String())

	// At t=4800: 0.08 for 1200s and 0.12 for the 2400s after the window start.
	twap, err = CalculateTWAP(history, 4800, 3600)
	require.NoError(t, err)
	expected := price(t, "0.08").MulRaw(1200).Add(price(t, "0.12").MulRaw(2400)).QuoRaw(3600)
	assert.Equal(t, expected.String(), twap.String())
	assert.NotEqual(t, price(t, "0.1").String(), twap.String(), "time-weighted, not a simple average")
}

func TestTWAPConstantPrice(t *testing.T) {
	var history []types.PriceSample
	for ts := 0; ts <= 86_400; ts += 600 {
		history = append(history, types.PriceSample{Price: price(t, "1.5"), Timestamp: int64(ts)})
	}
	for _, window := range []int64{600, 3600, 86_400} {
		twap, err := CalculateTWAP(history, 86_400+123, window)
		require.NoError(t, err)
		assert.Equal(t, price(t, "1.5").String(), twap.String(), "window %d", window)
	}
}

func TestTWAPOutlierBoundedByTimeWeight(t *testing.T) {
	history := samples(t, "1", 0, "1000", 3590, "1", 3599)
	twap, err := CalculateTWAP(history, 3600, 3600)
	require.NoError(t, err)

	// The outlier held for 9 of 3600 seconds.
	expected := price(t, "1").MulRaw(3591).Add(price(t, "1000").MulRaw(9)).QuoRaw(3600)
	assert.Equal(t, expected.String(), twap.String())
	assert.True(t, twap.LT(price(t, "4")))
}

func TestTWAPInsufficientData(t *testing.T) {
	_, err := CalculateTWAP(nil, 100, 60)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// Only a sample older than the window.
	_, err = CalculateTWAP(samples(t, "1", 0), 7200, 3600)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = CalculateTWAP(samples(t, "1", 0), 10, 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTWAPZeroWeightReturnsLatest(t *testing.T) {
	history := samples(t, "2", 500, "3", 500)
	twap, err := CalculateTWAP(history, 500, 100)
	require.NoError(t, err)
	assert.Equal(t, price(t, "3").String(), twap.String())
}

func TestTWAPIgnoresFutureSamples(t *testing.T) {
	history := samples(t, "2", 0, "9", 5000)
	twap, err := CalculateTWAP(history, 3600, 3600)
	require.NoError(t, err)
	assert.Equal(t, price(t, "2").String(), twap.String())
}

func TestWindowPrices(t *testing.T) {
	history := samples(t, "1", 0, "2", 100, "3", 200)
	got := WindowPrices(history, 200, 100)
	require.Len(t, got, 2)
	assert.Equal(t, price(t, "2").String(), got[0].String())
}
