package oracle

import (
	"errors"

	"github.com/elys-network/credmarket/internal/analyzer"
	"github.com/elys-network/credmarket/internal/types"
)

var (
	ErrUnauthorized        = errors.New("oracle: caller not authorized")
	ErrBatchLengthMismatch = errors.New("oracle: batch arrays differ in length")
	ErrBatchTooLarge       = errors.New("oracle: batch exceeds maximum size")
	ErrEmptyBatch          = errors.New("oracle: batch is empty")
	ErrInvalidAsset        = errors.New("oracle: invalid asset")
	ErrInvalidCredential   = errors.New("oracle: invalid credential id")
	ErrInvalidPrice        = errors.New("oracle: price must be positive")
	ErrInvalidQuantity     = errors.New("oracle: volume and liquidity must not be negative")
	ErrOutOfOrder          = errors.New("oracle: sample older than the latest one")
	ErrCredentialNotFound  = errors.New("oracle: credential has no reputation record")
	// ErrInsufficientData is the analyzer sentinel so callers can match either.
	ErrInsufficientData = analyzer.ErrInsufficientData
)

// Kind classifies an error returned by this package.
func Kind(err error) types.ErrorKind {
	switch {
	case err == nil:
		return types.KindUnknown
	case errors.Is(err, ErrUnauthorized):
		return types.KindUnauthorized
	case errors.Is(err, ErrCredentialNotFound):
		return types.KindNotFound
	case errors.Is(err, ErrInsufficientData):
		return types.KindInsufficient
	case errors.Is(err, ErrBatchLengthMismatch), errors.Is(err, ErrBatchTooLarge), errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrInvalidAsset), errors.Is(err, ErrInvalidCredential), errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrOutOfOrder):
		return types.KindValidation
	default:
		return types.KindUnknown
	}
}
