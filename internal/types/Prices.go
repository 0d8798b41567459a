/*

This file contains the oracle time-series types: raw price samples, the hourly
volume index and the rolling 24h aggregates.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// PriceDecimals is the fixed-point precision of prices and TWAPs.
const PriceDecimals = 18

// PriceSample is one observation pushed by an updater.
type PriceSample struct {
	Asset           string      `json:"asset"`
	Price           sdkmath.Int `json:"price"` // 1e18 fixed point, stable per credit
	Timestamp       int64       `json:"timestamp"`
	CumulativePrice sdkmath.Int `json:"cumulative_price"` // Running sum of price*elapsed since the first sample
	Volume          sdkmath.Int `json:"volume"`           // Stable smallest units traded since the previous sample
	Liquidity       sdkmath.Int `json:"liquidity"`        // Stable smallest units
}

// HourBucket aggregates volume and reported trades per wall-clock hour.
type HourBucket struct {
	Asset     string      `json:"asset"`
	HourStart int64       `json:"hour_start"`
	Volume    sdkmath.Int `json:"volume"`
	Trades    uint64      `json:"trades"`
}

// MarketStats are rolling 24h aggregates refreshed on every sample.
type MarketStats struct {
	Asset     string      `json:"asset"`
	Volume24h sdkmath.Int `json:"volume_24h"`
	Trades24h uint64      `json:"trades_24h"`
	High24h   sdkmath.Int `json:"high_24h"`
	Low24h    sdkmath.Int `json:"low_24h"`
	Open24h   sdkmath.Int `json:"open_24h"`
	LastPrice sdkmath.Int `json:"last_price"`
	Liquidity sdkmath.Int `json:"liquidity"`
	UpdatedAt int64       `json:"updated_at"`
}

// PriceUpdate is one element of an updater batch.
type PriceUpdate struct {
	Asset     string      `json:"asset"`
	Price     sdkmath.Int `json:"price"`
	Volume    sdkmath.Int `json:"volume"`
	Liquidity sdkmath.Int `json:"liquidity"`
	Trades    uint64      `json:"trades"` // Swaps behind Volume since the previous sample
}
