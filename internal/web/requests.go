package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	sdkmath "cosmossdk.io/math"
	"github.com/go-playground/validator/v10"

	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

// Amounts in request bodies are decimal strings in whole units of their asset,
// e.g. "1.5" stable. Shares are integer strings.

type createPoolRequest struct {
	Asset  string `json:"asset" validate:"required"`
	Credit string `json:"credit" validate:"required"`
	Stable string `json:"stable" validate:"required"`
}

type depositRequest struct {
	Credit    string `json:"credit" validate:"required"`
	Stable    string `json:"stable" validate:"required"`
	MinShares string `json:"min_shares" validate:"omitempty,numeric"`
	Deadline  int64  `json:"deadline" validate:"gte=0"`
}

type withdrawRequest struct {
	Shares    string `json:"shares" validate:"required,numeric"`
	MinCredit string `json:"min_credit"`
	MinStable string `json:"min_stable"`
	Deadline  int64  `json:"deadline" validate:"gte=0"`
}

type swapRequest struct {
	SideIn   string `json:"side_in" validate:"required,oneof=credit stable"`
	AmountIn string `json:"amount_in" validate:"required"`
	MinOut   string `json:"min_out"`
	Deadline int64  `json:"deadline" validate:"gte=0"`
}

type poolActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// Either field may be omitted; at least one must be present.
type poolParamsRequest struct {
	SwapFeeBP          *uint32 `json:"swap_fee_bp"`
	ProtocolFeeShareBP *uint32 `json:"protocol_fee_share_bp"`
}

type priceUpdateRequest struct {
	Asset     string `json:"asset" validate:"required"`
	Price     string `json:"price" validate:"required"`
	Volume    string `json:"volume"`
	Liquidity string `json:"liquidity"`
	Trades    uint64 `json:"trades"`
}

type batchPriceRequest struct {
	Updates []priceUpdateRequest `json:"updates" validate:"required,min=1,dive"`
}

type linkRequest struct {
	Asset string `json:"asset" validate:"required"`
}

type mintRequest struct {
	Account string `json:"account" validate:"required"`
	Denom   string `json:"denom" validate:"required"`
	Amount  string `json:"amount" validate:"required,numeric"` // Smallest units
}

type updaterRequest struct {
	UpdaterID string `json:"updater_id" validate:"required"`
}

// decodeRequest reads a JSON body into dst and validates its tags.
func decodeRequest(r *http.Request, validate *validator.Validate, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// parseAmount converts a whole-unit decimal into smallest units. Empty means zero.
func parseAmount(field, value string, decimals int) (sdkmath.Int, error) {
	if value == "" {
		return sdkmath.ZeroInt(), nil
	}
	amount, err := utils.ParseFixed(value, decimals)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%s: %w", field, err)
	}
	return amount, nil
}

func (u priceUpdateRequest) toUpdate(stableDecimals int) (types.PriceUpdate, error) {
	price, err := parseAmount("price", u.Price, types.PriceDecimals)
	if err != nil {
		return types.PriceUpdate{}, err
	}
	volume, err := parseAmount("volume", u.Volume, stableDecimals)
	if err != nil {
		return types.PriceUpdate{}, err
	}
	liquidity, err := parseAmount("liquidity", u.Liquidity, stableDecimals)
	if err != nil {
		return types.PriceUpdate{}, err
	}
	return types.PriceUpdate{Asset: u.Asset, Price: price, Volume: volume, Liquidity: liquidity, Trades: u.Trades}, nil
}
