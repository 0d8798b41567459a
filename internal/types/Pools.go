/*

This is a custom type for pools which contains all the state needed to price swaps,
account for liquidity shares and accrue fees. All quantities are integers in the
smallest unit of their side; prices are 1e18 fixed point.

*/

package types

import (
	"cosmossdk.io/math"
)

// Pool is the full state of one constant-product reserve pair.
type Pool struct {
	Asset  string `json:"asset"`  // Pool key, equal to the credit denom
	Credit Token  `json:"credit"` // Credential-demand token
	Stable Token  `json:"stable"` // Stable reference asset

	ReserveCredit math.Int `json:"reserve_credit"`
	ReserveStable math.Int `json:"reserve_stable"`
	TotalShares   math.Int `json:"total_shares"` // Includes the permanently locked minimum

	LastUpdateTime        int64    `json:"last_update_time"`        // Unix seconds of the last reserve change
	CumulativePriceCredit math.Int `json:"cumulative_price_credit"` // Sum of reserveStable*1e18*dt/reserveCredit
	CumulativePriceStable math.Int `json:"cumulative_price_stable"` // Sum of reserveCredit*1e18*dt/reserveStable

	AccumulatedFeesCredit math.Int `json:"accumulated_fees_credit"` // Provider fees held by the pool and not yet claimed
	AccumulatedFeesStable math.Int `json:"accumulated_fees_stable"`
	ProtocolFeesCredit    math.Int `json:"protocol_fees_credit"` // Protocol share awaiting distribution to the treasury
	ProtocolFeesStable    math.Int `json:"protocol_fees_stable"`
	FeeGrowthCredit       math.Int `json:"fee_growth_credit"` // Provider fees per share, scaled by FeeGrowthPrecision
	FeeGrowthStable       math.Int `json:"fee_growth_stable"`

	SwapFeeBp          uint32 `json:"swap_fee_bp"`
	ProtocolFeeShareBp uint32 `json:"protocol_fee_share_bp"`
	IsActive           bool   `json:"is_active"`
	CreatedAt          int64  `json:"created_at"`

	// Traded stable volume and swap count since the updater last sampled the pool
	PendingVolume math.Int `json:"pending_volume"`
	PendingTrades uint64   `json:"pending_trades"`
}

// PoolProvenance is recorded by the factory when a pool is created.
type PoolProvenance struct {
	Asset     string `json:"asset"`
	Creator   string `json:"creator"`
	CreatedAt int64  `json:"created_at"`
	Index     int    `json:"index"` // Creation order, starting at 0
}

// Reserve returns the reserve for the given side.
func (p *Pool) Reserve(side Side) math.Int {
	if side == SideCredit {
		return p.ReserveCredit
	}
	return p.ReserveStable
}

// SetReserve replaces the reserve for the given side.
func (p *Pool) SetReserve(side Side, amount math.Int) {
	if side == SideCredit {
		p.ReserveCredit = amount
		return
	}
	p.ReserveStable = amount
}

// Denom returns the ledger denom of the given side.
func (p *Pool) Denom(side Side) string {
	if side == SideCredit {
		return p.Credit.Denom
	}
	return p.Stable.Denom
}

// Clone returns a copy that can be mutated without touching p. SDK Ints are immutable
// values so a shallow struct copy is sufficient.
func (p *Pool) Clone() *Pool {
	c := *p
	return &c
}
