/*

This file contains the default parameters for the credential market.

The defaults target a market of many thin credential pools quoted against one
stable asset, where pools are small and sampled a few times per hour.

*/

package config

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/credmarket/internal/types"
)

// DEFAULT_MARKET_CONFIG_NAME is the parameter set loaded from and saved to the database.
const DEFAULT_MARKET_CONFIG_NAME = "default_credmarket"

// DefaultMarketParameters provides the baseline market configuration. These values
// are used if no active parameters are found in the database during initialization.
func DefaultMarketParameters() types.MarketParameters {
	return types.MarketParameters{
		// --- Pools ---
		StableDenom: "ustable", // Smallest unit of the stable reference asset.

		CreditDecimals: 18, // Credential tokens are minted with 18 decimals.
		StableDecimals: 6,  // The stable asset uses 6 decimals.
		// Rationale: Prices are normalized by the decimal difference, so a pool holding
		// 100,000 credit and 10,000 stable quotes 0.1 regardless of smallest units.

		SwapFeeBp: 30, // 0.30% of every swap input.
		// Rationale: The common constant-product fee. Credential pools are thin, so a
		// higher fee would discourage the small trades that make up most of the flow.

		ProtocolFeeShareBp: 1667, // One sixth of every fee goes to the treasury.
		// Rationale: Leaves 0.25% of a 0.30% fee with liquidity providers.

		MinimumLiquidity: sdkmath.NewInt(1000), // Shares locked forever on pool creation.
		// Rationale: Keeps total shares above zero so share price cannot be inflated
		// by the first depositor of an emptied pool.

		// --- Oracle ---
		RetentionSeconds: 90 * 24 * 3600, // Keep 90 days of samples and hour buckets.
		// Rationale: Three reputation windows of history for audits and restarts.

		ReputationWindow: 30 * 24 * 3600, // Score over a 30-day TWAP and volatility window.
		// Rationale: Long enough that a single burst of trading cannot move a score.

		StabilityMinSamples: 30, // Fewer in-window samples give a neutral stability bonus.
		// Rationale: Volatility from a handful of points is noise.

		MaxBatchSize: 100, // Upper bound on one updater batch.
		// Rationale: Bounds the time the oracle holds per-asset locks for one call.
	}
}
