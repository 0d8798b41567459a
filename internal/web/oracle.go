package web

import (
	"net/http"
	"strconv"

	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

func (ws *WebServer) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req priceUpdateRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	update, err := req.toUpdate(ws.service.Params().StableDecimals)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ws.service.UpdatePrice(caller, update); err != nil {
		ws.writeServiceError(w, err)
		return
	}
	sample, _ := ws.service.Oracle().LatestSample(update.Asset)
	ws.writeJSONResponse(w, http.StatusOK, sample)
}

func (ws *WebServer) handleBatchUpdatePrices(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req batchPriceRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	stableDecimals := ws.service.Params().StableDecimals
	updates := make([]types.PriceUpdate, 0, len(req.Updates))
	for i, u := range req.Updates {
		update, err := u.toUpdate(stableDecimals)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "update "+strconv.Itoa(i)+": "+err.Error())
			return
		}
		updates = append(updates, update)
	}
	if err := ws.service.BatchUpdatePrices(caller, updates); err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"accepted": len(updates),
	})
}

func (ws *WebServer) handleListUpdaters(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"updaters": ws.service.Oracle().Updaters(),
	})
}

func (ws *WebServer) handleGrantUpdater(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req updaterRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ws.service.Oracle().GrantUpdater(caller, req.UpdaterID); err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"updaters": ws.service.Oracle().Updaters(),
	})
}

func (ws *WebServer) handleRevokeUpdater(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	if err := ws.service.Oracle().RevokeUpdater(caller, pathVar(r, "id")); err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"updaters": ws.service.Oracle().Updaters(),
	})
}

// handleGetTWAP answers 409 when the window holds too little data.
func (ws *WebServer) handleGetTWAP(w http.ResponseWriter, r *http.Request) {
	asset := pathVar(r, "asset")
	window, ok := ws.window(w, r)
	if !ok {
		return
	}
	twap, err := ws.service.GetTWAP(asset, window)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":     asset,
		"window":    window,
		"twap":      twap,
		"twap_text": utils.FormatFixed(twap, types.PriceDecimals),
	})
}

func (ws *WebServer) handleGetVolatility(w http.ResponseWriter, r *http.Request) {
	asset := pathVar(r, "asset")
	window, ok := ws.window(w, r)
	if !ok {
		return
	}
	vol, err := ws.service.Oracle().Volatility(asset, window)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":         asset,
		"window":        window,
		"volatility_bp": vol,
	})
}

func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	asset := pathVar(r, "asset")
	stats, found := ws.service.Oracle().Stats(asset)
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "No samples for asset")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, stats)
}

func (ws *WebServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	asset := pathVar(r, "asset")
	q := r.URL.Query()
	var from, to int64
	var err error
	if s := q.Get("from"); s != "" {
		if from, err = strconv.ParseInt(s, 10, 64); err != nil || from < 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid from timestamp")
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = strconv.ParseInt(s, 10, 64); err != nil || to < 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid to timestamp")
			return
		}
	}
	samples := ws.service.Oracle().History(asset, from, to)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":   asset,
		"samples": samples,
		"buckets": ws.service.Oracle().Buckets(asset),
		"count":   len(samples),
	})
}

// window reads ?window= in seconds, defaulting to the reputation window.
func (ws *WebServer) window(w http.ResponseWriter, r *http.Request) (int64, bool) {
	s := r.URL.Query().Get("window")
	if s == "" {
		return ws.service.Params().ReputationWindow, true
	}
	window, err := strconv.ParseInt(s, 10, 64)
	if err != nil || window <= 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "window must be a positive number of seconds")
		return 0, false
	}
	return window, true
}

// --- Reputation ---

func (ws *WebServer) handleUpdateReputation(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	rec, err := ws.service.UpdateReputationScore(caller, pathVar(r, "credential"))
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, rec)
}

func (ws *WebServer) handleGetReputation(w http.ResponseWriter, r *http.Request) {
	rec, err := ws.service.GetReputationScore(pathVar(r, "credential"))
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, rec)
}

func (ws *WebServer) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	credential := pathVar(r, "credential")
	rank, total, err := ws.service.GetReputationRanking(credential)
	if err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"credential_id": credential,
		"rank":          rank,
		"total":         total,
	})
}

func (ws *WebServer) handleGetTopCredentials(w http.ResponseWriter, r *http.Request) {
	top := ws.service.GetTopCredentials(queryInt(r, "limit", 10))
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"credentials": top,
		"count":       len(top),
	})
}

func (ws *WebServer) handleLinkCredential(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if err := decodeRequest(r, ws.validate, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	credential := pathVar(r, "credential")
	if err := ws.service.LinkCredential(caller, credential, req.Asset); err != nil {
		ws.writeServiceError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"credential_id": credential,
		"asset":         req.Asset,
	})
}
