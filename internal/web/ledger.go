package web

import (
	"net/http"

	sdkmath "cosmossdk.io/math"
)

func (ws *WebServer) handleMint(w http.ResponseWriter, r *http.Request) {
	if ws.minter == nil {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "Minting is not available on this ledger")
		return
	}
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, ok := sdkmath.NewIntFromString(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount must be an integer in smallest units")
		return
	}
	if err := ws.service.Mint(caller, ws.minter, req.Account, req.Denom, amount); err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeBalance(w, r, req.Account, req.Denom)
}

func (ws *WebServer) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	ws.writeBalance(w, r, pathVar(r, "account"), pathVar(r, "denom"))
}

func (ws *WebServer) writeBalance(w http.ResponseWriter, r *http.Request, account, denom string) {
	bal, err := ws.service.Balance(r.Context(), account, denom)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"denom":   denom,
		"balance": bal,
	})
}
