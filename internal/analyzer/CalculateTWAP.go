/*

This file contains the time-weighted average price over a sample history.

*/

package analyzer

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/credmarket/internal/types"
)

// CalculateTWAP averages the prices in effect during [now-window, now]. samples
// must be sorted by timestamp, oldest first.
//
// Walking backward from now, each sample is weighted by the time until the next
// more recent sample (the newest one until now). The first sample older than the
// window start is weighted from the window start to its successor and ends the walk.
// If no sample falls inside the window ErrInsufficientData is returned. If every
// in-window weight is zero the newest in-window price is returned.
func CalculateTWAP(samples []types.PriceSample, now, window int64) (sdkmath.Int, error) {
	if window <= 0 {
		return sdkmath.Int{}, ErrInsufficientData
	}
	windowStart := now - window

	weighted := sdkmath.ZeroInt()
	var totalWeight int64
	var latest sdkmath.Int
	found := false
	next := now

	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if s.Timestamp > now {
			continue
		}
		if s.Timestamp >= windowStart {
			weight := next - s.Timestamp
			weighted = weighted.Add(s.Price.MulRaw(weight))
			totalWeight += weight
			next = s.Timestamp
			if !found {
				latest = s.Price
				found = true
			}
			continue
		}
		if weight := next - windowStart; weight > 0 {
			weighted = weighted.Add(s.Price.MulRaw(weight))
			totalWeight += weight
		}
		break
	}

	if !found {
		return sdkmath.Int{}, ErrInsufficientData
	}
	if totalWeight == 0 {
		return latest, nil
	}
	return weighted.QuoRaw(totalWeight), nil
}

// WindowPrices returns the prices of samples with timestamps in [now-window, now],
// oldest first.
func WindowPrices(samples []types.PriceSample, now, window int64) []sdkmath.Int {
	start := now - window
	out := make([]sdkmath.Int, 0, len(samples))
	for _, s := range samples {
		if s.Timestamp >= start && s.Timestamp <= now {
			out = append(out, s.Price)
		}
	}
	return out
}
