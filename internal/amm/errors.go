package amm

import (
	"errors"

	"github.com/elys-network/credmarket/internal/ledger"
	"github.com/elys-network/credmarket/internal/types"
)

var (
	ErrInvalidAmount         = errors.New("amm: amount must be positive")
	ErrInvalidAsset          = errors.New("amm: invalid asset")
	ErrInvalidSide           = errors.New("amm: invalid side")
	ErrInvalidParticipant    = errors.New("amm: invalid participant")
	ErrInvalidFee            = errors.New("amm: fee out of range")
	ErrDeadlineExpired       = errors.New("amm: deadline expired")
	ErrUnauthorized          = errors.New("amm: caller not authorized")
	ErrPoolExists            = errors.New("amm: pool already exists")
	ErrPoolNotFound          = errors.New("amm: pool not found")
	ErrPoolInactive          = errors.New("amm: pool is inactive")
	ErrPositionNotFound      = errors.New("amm: position not found")
	ErrInsufficientShares    = errors.New("amm: insufficient shares")
	ErrBelowMinimumLiquidity = errors.New("amm: minted liquidity below locked minimum")
	ErrZeroShares            = errors.New("amm: deposit mints zero shares")
	ErrNoFees                = errors.New("amm: nothing to claim")
	ErrReentrant             = errors.New("amm: re-entrant call")
	ErrSlippage              = errors.New("amm: slippage bound exceeded")
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	ErrInvariantViolated     = errors.New("amm: constant product decreased")
	ErrSettlementFailed      = errors.New("amm: settlement failed")
)

// Kind classifies an error returned by this package.
func Kind(err error) types.ErrorKind {
	switch {
	case err == nil:
		return types.KindUnknown
	case errors.Is(err, ErrUnauthorized):
		return types.KindUnauthorized
	case errors.Is(err, ErrPoolNotFound), errors.Is(err, ErrPositionNotFound):
		return types.KindNotFound
	case errors.Is(err, ErrPoolExists), errors.Is(err, ErrReentrant), errors.Is(err, ErrPoolInactive):
		return types.KindConflict
	case errors.Is(err, ErrSlippage), errors.Is(err, ErrInvariantViolated), errors.Is(err, ErrInsufficientLiquidity):
		return types.KindInvariant
	case errors.Is(err, ErrInsufficientShares), errors.Is(err, ErrNoFees), errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ErrSettlementFailed):
		return types.KindInsufficient
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidAsset), errors.Is(err, ErrInvalidSide),
		errors.Is(err, ErrInvalidParticipant), errors.Is(err, ErrInvalidFee), errors.Is(err, ErrBelowMinimumLiquidity),
		errors.Is(err, ErrZeroShares), errors.Is(err, ErrDeadlineExpired):
		return types.KindValidation
	default:
		return types.KindUnknown
	}
}
