/*

This file contains the types for reputation scoring and the credential leaderboard.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// MaxReputationScore caps every composite score.
const MaxReputationScore uint64 = 1000

// ReputationRecord is the latest computed score of a credential together with the
// components that produced it.
type ReputationRecord struct {
	CredentialID        string      `json:"credential_id"`
	Asset               string      `json:"asset"`
	Score               uint64      `json:"score"` // 0 to 1000
	LastUpdated         int64       `json:"last_updated"`
	TWAP30d             sdkmath.Int `json:"twap_30d"` // 1e18 fixed point
	LogComponent        uint64      `json:"log_component"`
	VolumeWeight        uint64      `json:"volume_weight"`
	LiquidityMultiplier uint64      `json:"liquidity_multiplier"`
	StabilityBonus      uint64      `json:"stability_bonus"`
}

// RankEntry is one row of the leaderboard.
type RankEntry struct {
	CredentialID string `json:"credential_id"`
	Score        uint64 `json:"score"`
	Rank         int    `json:"rank"` // 1-based
}

// ScoreInputs are the market observations a score is computed from.
type ScoreInputs struct {
	TWAP      sdkmath.Int   `json:"twap"`
	Volume24h sdkmath.Int   `json:"volume_24h"` // Stable smallest units
	Liquidity sdkmath.Int   `json:"liquidity"`  // Stable smallest units
	Prices    []sdkmath.Int `json:"-"`          // In-window sample prices, oldest first
}

// ScoreBreakdown is the result of the scoring formula.
type ScoreBreakdown struct {
	Score               uint64 `json:"score"`
	LogComponent        uint64 `json:"log_component"`
	VolumeWeight        uint64 `json:"volume_weight"`
	LiquidityMultiplier uint64 `json:"liquidity_multiplier"`
	StabilityBonus      uint64 `json:"stability_bonus"`
}
