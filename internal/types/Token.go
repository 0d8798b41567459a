/*

This is a custom type for the two sides of a pool. Each side is a ledger denom plus the
number of decimals used by its smallest unit.

*/

package types

// Token describes one side of a reserve pair.
type Token struct {
	Denom    string `json:"denom"`    // e.g., "cred/alice-phd" or "ustable"
	Decimals int    `json:"decimals"` // 18 for credential assets, 6 for the stable asset
}

// Side selects one reserve of a pool.
type Side string

const (
	SideCredit Side = "credit"
	SideStable Side = "stable"
)

// Valid reports whether s names one of the two reserves.
func (s Side) Valid() bool {
	return s == SideCredit || s == SideStable
}

// Other returns the opposite reserve.
func (s Side) Other() Side {
	if s == SideCredit {
		return SideStable
	}
	return SideCredit
}
