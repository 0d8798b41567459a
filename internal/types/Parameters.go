/*

This file contains the tunable parameters shared by the pool factory and the oracle.

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// MarketParameters holds the fee, precision and time-window settings for a market.
type MarketParameters struct {
	// --- Pools ---
	StableDenom        string      `json:"stable_denom"`          // Denom of the stable reference asset
	CreditDecimals     int         `json:"credit_decimals"`       // Decimals of every credential asset
	StableDecimals     int         `json:"stable_decimals"`       // Decimals of the stable asset
	SwapFeeBp          uint32      `json:"swap_fee_bp"`           // Swap fee charged on the input amount
	ProtocolFeeShareBp uint32      `json:"protocol_fee_share_bp"` // Share of every fee routed to the treasury
	MinimumLiquidity   sdkmath.Int `json:"minimum_liquidity"`     // Shares locked forever on pool creation

	// --- Oracle ---
	RetentionSeconds    int64 `json:"retention_seconds"`     // History older than this is pruned
	ReputationWindow    int64 `json:"reputation_window"`     // TWAP and volatility window for scoring
	StabilityMinSamples int   `json:"stability_min_samples"` // Below this the stability bonus is neutral
	MaxBatchSize        int   `json:"max_batch_size"`        // Upper bound on a single updater batch
}

// Validate checks every parameter and reports all problems at once.
func (p MarketParameters) Validate() error {
	var errs []error
	if p.StableDenom == "" {
		errs = append(errs, errors.New("stable denom is required"))
	}
	if p.CreditDecimals < 0 || p.CreditDecimals > 18 {
		errs = append(errs, fmt.Errorf("credit decimals %d out of range [0,18]", p.CreditDecimals))
	}
	if p.StableDecimals < 0 || p.StableDecimals > 18 {
		errs = append(errs, fmt.Errorf("stable decimals %d out of range [0,18]", p.StableDecimals))
	}
	if p.SwapFeeBp >= 10_000 {
		errs = append(errs, fmt.Errorf("swap fee %d bp must be below 10000", p.SwapFeeBp))
	}
	if p.ProtocolFeeShareBp > 10_000 {
		errs = append(errs, fmt.Errorf("protocol fee share %d bp exceeds 10000", p.ProtocolFeeShareBp))
	}
	if p.MinimumLiquidity.IsNil() || !p.MinimumLiquidity.IsPositive() {
		errs = append(errs, errors.New("minimum liquidity must be positive"))
	}
	if p.RetentionSeconds <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	if p.ReputationWindow <= 0 || p.ReputationWindow > p.RetentionSeconds {
		errs = append(errs, fmt.Errorf("reputation window %ds must be positive and within retention", p.ReputationWindow))
	}
	if p.StabilityMinSamples < 2 {
		errs = append(errs, errors.New("stability min samples must be at least 2"))
	}
	if p.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("max batch size must be positive"))
	}
	return errors.Join(errs...)
}
