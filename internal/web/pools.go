package web

import (
	"net/http"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

// poolView is a pool snapshot plus its current spot price.
type poolView struct {
	types.Pool
	SpotPrice string `json:"spot_price,omitempty"` // Stable per credit, decimal
}

func (ws *WebServer) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.service.Pools()
	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, ws.viewPool(p))
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": views,
		"count": len(views),
	})
}

func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pm, err := ws.service.Pool(pathVar(r, "asset"))
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.viewPool(pm.Snapshot()))
}

func (ws *WebServer) viewPool(p types.Pool) poolView {
	view := poolView{Pool: p}
	if pm, err := ws.service.Pool(p.Asset); err == nil {
		if price, err := pm.SpotPrice(); err == nil {
			view.SpotPrice = utils.FormatFixed(price, types.PriceDecimals)
		}
	}
	return view
}

func (ws *WebServer) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req createPoolRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	params := ws.service.Params()
	credit, err := parseAmount("credit", req.Credit, params.CreditDecimals)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	stable, err := parseAmount("stable", req.Stable, params.StableDecimals)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	minted, err := ws.service.CreatePool(r.Context(), caller, req.Asset, credit, stable)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"asset":            req.Asset,
		"liquidity_minted": minted,
	})
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	asset := pathVar(r, "asset")
	pool, ok := ws.lookupPool(w, asset)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	credit, err := parseAmount("credit", req.Credit, pool.Credit.Decimals)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	stable, err := parseAmount("stable", req.Stable, pool.Stable.Decimals)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	minShares, err := parseAmount("min_shares", req.MinShares, 0)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	shares, err := ws.service.Deposit(r.Context(), caller, asset, credit, stable, minShares, req.Deadline)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":         asset,
		"shares_minted": shares,
	})
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	asset := pathVar(r, "asset")
	pool, ok := ws.lookupPool(w, asset)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	shares, err := parseAmount("shares", req.Shares, 0)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	minCredit, err := parseAmount("min_credit", req.MinCredit, pool.Credit.Decimals)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	minStable, err := parseAmount("min_stable", req.MinStable, pool.Stable.Decimals)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	creditOut, stableOut, err := ws.service.Withdraw(r.Context(), caller, asset, shares, minCredit, minStable, req.Deadline)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":      asset,
		"credit_out": creditOut,
		"stable_out": stableOut,
	})
}

func (ws *WebServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	asset := pathVar(r, "asset")
	pool, ok := ws.lookupPool(w, asset)
	if !ok {
		return
	}
	var req swapRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	sideIn := types.Side(req.SideIn)
	amountIn, err := parseAmount("amount_in", req.AmountIn, sideDecimals(pool, sideIn))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	minOut, err := parseAmount("min_out", req.MinOut, sideDecimals(pool, sideIn.Other()))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	amountOut, err := ws.service.Swap(r.Context(), caller, asset, sideIn, amountIn, minOut, req.Deadline)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":      asset,
		"side_in":    sideIn,
		"amount_in":  amountIn,
		"amount_out": amountOut,
	})
}

func (ws *WebServer) handleClaimFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	fees, err := ws.service.ClaimFees(r.Context(), caller, pathVar(r, "asset"))
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, fees)
}

func (ws *WebServer) handleDistributeProtocolFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	fees, err := ws.service.DistributeProtocolFees(r.Context(), caller, pathVar(r, "asset"))
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, fees)
}

func (ws *WebServer) handleSetPoolActive(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req poolActiveRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	asset := pathVar(r, "asset")
	if err := ws.service.SetPoolActive(r.Context(), caller, asset, *req.Active); err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":     asset,
		"is_active": *req.Active,
	})
}

func (ws *WebServer) handleSetPoolParams(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req poolParamsRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SwapFeeBP == nil && req.ProtocolFeeShareBP == nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "swap_fee_bp or protocol_fee_share_bp is required")
		return
	}
	asset := pathVar(r, "asset")
	if err := ws.service.SetPoolFees(r.Context(), caller, asset, req.SwapFeeBP, req.ProtocolFeeShareBP); err != nil {
		ws.writeServiceError(w, err)
		return
	}
	pm, err := ws.service.Pool(asset)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, pm.Snapshot())
}

func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	pm, err := ws.service.Pool(pathVar(r, "asset"))
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	owner := pathVar(r, "owner")
	pos, found := pm.Position(owner)
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}
	pending, err := pm.PendingFees(owner)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"position":     pos,
		"pending_fees": pending,
	})
}

// handleQuote previews a swap. mode=out (default) quotes the output of amount
// of side; mode=in quotes the input needed to receive amount of side.
func (ws *WebServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	pm, err := ws.service.Pool(pathVar(r, "asset"))
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	q := r.URL.Query()
	side := types.Side(q.Get("side"))
	if !side.Valid() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "side must be credit or stable")
		return
	}
	pool := pm.Snapshot()
	amount, err := parseAmount("amount", q.Get("amount"), sideDecimals(pool, side))
	if err != nil || !amount.IsPositive() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}

	var quote sdkmath.Int
	mode := q.Get("mode")
	switch mode {
	case "", "out":
		mode = "out"
		quote, err = pm.QuoteAmountOut(side, amount)
	case "in":
		quote, err = pm.QuoteAmountIn(side, amount)
	default:
		ws.writeErrorResponse(w, http.StatusBadRequest, "mode must be in or out")
		return
	}
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":  pool.Asset,
		"side":   side,
		"mode":   mode,
		"amount": amount,
		"quote":  quote,
	})
}

func (ws *WebServer) lookupPool(w http.ResponseWriter, asset string) (types.Pool, bool) {
	pm, err := ws.service.Pool(asset)
	if err != nil {
		ws.writeServiceError(w, err)
		return types.Pool{}, false
	}
	return pm.Snapshot(), true
}

func sideDecimals(p types.Pool, side types.Side) int {
	if side == types.SideStable {
		return p.Stable.Decimals
	}
	return p.Credit.Decimals
}
