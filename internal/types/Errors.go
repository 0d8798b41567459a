/*

This file contains the error classification shared by the engine packages and the API.

*/

package types

// ErrorKind groups engine errors by how a caller should react to them.
type ErrorKind int

const (
	KindUnknown      ErrorKind = iota
	KindValidation             // Malformed input, rejected before any mutation
	KindUnauthorized           // Caller lacks the required role
	KindNotFound               // Referenced pool, position or credential does not exist
	KindConflict               // State conflict such as a duplicate pool or a re-entrant call
	KindInvariant              // Slippage bound or solvency rule violated, safe to retry
	KindInsufficient           // Not enough data or balance to produce a result
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvariant:
		return "invariant"
	case KindInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}
