/*

This file contains the types for liquidity positions, including the bookkeeping needed
to pay each provider its share of fees for the time it held shares.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// LockedOwner holds the permanently locked minimum liquidity of every pool.
const LockedOwner = "locked"

// LP position type
type Position struct {
	Asset  string      `json:"asset"`
	Owner  string      `json:"owner"`
	Shares sdkmath.Int `json:"shares"`

	CreditDeposited sdkmath.Int `json:"credit_deposited"` // Cost basis, reduced pro-rata on withdrawal
	StableDeposited sdkmath.Int `json:"stable_deposited"`

	FeesClaimedCredit sdkmath.Int `json:"fees_claimed_credit"` // Lifetime claimed fees
	FeesClaimedStable sdkmath.Int `json:"fees_claimed_stable"`

	// Fee growth already accounted for at the current share balance
	FeeDebtCredit sdkmath.Int `json:"fee_debt_credit"`
	FeeDebtStable sdkmath.Int `json:"fee_debt_stable"`
	// Fees settled on a share change and not yet claimed
	PendingCredit sdkmath.Int `json:"pending_credit"`
	PendingStable sdkmath.Int `json:"pending_stable"`

	LastDepositTime int64 `json:"last_deposit_time"`
}

// NewPosition returns an empty position with every quantity set to zero.
func NewPosition(asset, owner string) *Position {
	zero := sdkmath.ZeroInt()
	return &Position{
		Asset:             asset,
		Owner:             owner,
		Shares:            zero,
		CreditDeposited:   zero,
		StableDeposited:   zero,
		FeesClaimedCredit: zero,
		FeesClaimedStable: zero,
		FeeDebtCredit:     zero,
		FeeDebtStable:     zero,
		PendingCredit:     zero,
		PendingStable:     zero,
	}
}

// Clone returns an independent copy of the position.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}

// FeeAmounts is a pair of per-side fee quantities.
type FeeAmounts struct {
	Credit sdkmath.Int `json:"credit"`
	Stable sdkmath.Int `json:"stable"`
}

// IsZero reports whether both sides are zero.
func (f FeeAmounts) IsZero() bool {
	return (f.Credit.IsNil() || f.Credit.IsZero()) && (f.Stable.IsNil() || f.Stable.IsZero())
}
