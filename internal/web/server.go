package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/market"
	"github.com/elys-network/credmarket/internal/state"
	"github.com/elys-network/credmarket/internal/types"
)

// CallerHeader carries the identity of the participant making a request.
const CallerHeader = "X-Caller"

// Store is the read side of persistence used by the API. *state.Store implements it.
type Store interface {
	Ping(ctx context.Context) error
	GetRecentCycles(ctx context.Context, limit int) ([]types.CycleReport, error)
	GetRecentChanges(ctx context.Context, kind types.ChangeKind, asset string, limit int) ([]types.ChangeRecord, error)
	GetMarketSummary(ctx context.Context) (*state.MarketSummary, error)
}

// RequestObserver records request latencies. *metrics.Collector implements it.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Config holds the dependencies of the API server.
type Config struct {
	Port     string
	Service  *market.Service
	Store    Store           // Optional; persistence routes answer 503 without it
	Observer RequestObserver // Optional
	Minter   market.Minter   // Optional; enables the admin mint route
}

// WebServer exposes the market over JSON HTTP.
type WebServer struct {
	router    *mux.Router
	port      string
	service   *market.Service
	store     Store
	observer  RequestObserver
	minter    market.Minter
	validate  *validator.Validate
	logger    zerolog.Logger
	startedAt time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter().UseEncodedPath(),
		port:      port,
		service:   cfg.Service,
		store:     cfg.Store,
		observer:  cfg.Observer,
		minter:    cfg.Minter,
		validate:  validator.New(),
		logger:    logger.GetForComponent("web_server"),
		startedAt: time.Now(),
	}

	server.setupRoutes()
	return server
}

// Handler returns the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes. Asset denoms contain slashes and must
// be path-escaped, e.g. /api/pools/cred%2Falice.
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Pools
	api.HandleFunc("/pools", ws.handleListPools).Methods("GET")
	api.HandleFunc("/pools", ws.handleCreatePool).Methods("POST")
	api.HandleFunc("/pools/{asset}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{asset}/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/pools/{asset}/withdraw", ws.handleWithdraw).Methods("POST")
	api.HandleFunc("/pools/{asset}/swap", ws.handleSwap).Methods("POST")
	api.HandleFunc("/pools/{asset}/claim", ws.handleClaimFees).Methods("POST")
	api.HandleFunc("/pools/{asset}/distribute", ws.handleDistributeProtocolFees).Methods("POST")
	api.HandleFunc("/pools/{asset}/active", ws.handleSetPoolActive).Methods("POST")
	api.HandleFunc("/pools/{asset}/params", ws.handleSetPoolParams).Methods("POST")
	api.HandleFunc("/pools/{asset}/positions/{owner}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/pools/{asset}/quote", ws.handleQuote).Methods("GET")

	// Oracle
	api.HandleFunc("/oracle/prices", ws.handleUpdatePrice).Methods("POST")
	api.HandleFunc("/oracle/prices/batch", ws.handleBatchUpdatePrices).Methods("POST")
	api.HandleFunc("/oracle/updaters", ws.handleListUpdaters).Methods("GET")
	api.HandleFunc("/oracle/updaters", ws.handleGrantUpdater).Methods("POST")
	api.HandleFunc("/oracle/updaters/{id}", ws.handleRevokeUpdater).Methods("DELETE")
	api.HandleFunc("/oracle/{asset}/twap", ws.handleGetTWAP).Methods("GET")
	api.HandleFunc("/oracle/{asset}/stats", ws.handleGetStats).Methods("GET")
	api.HandleFunc("/oracle/{asset}/history", ws.handleGetHistory).Methods("GET")
	api.HandleFunc("/oracle/{asset}/volatility", ws.handleGetVolatility).Methods("GET")

	// Reputation
	api.HandleFunc("/reputation/top", ws.handleGetTopCredentials).Methods("GET")
	api.HandleFunc("/reputation/{credential}", ws.handleGetReputation).Methods("GET")
	api.HandleFunc("/reputation/{credential}", ws.handleUpdateReputation).Methods("POST")
	api.HandleFunc("/reputation/{credential}/rank", ws.handleGetRanking).Methods("GET")
	api.HandleFunc("/credentials/{credential}/link", ws.handleLinkCredential).Methods("POST")

	// Ledger
	api.HandleFunc("/ledger/mint", ws.handleMint).Methods("POST")
	api.HandleFunc("/ledger/{account}/balances/{denom}", ws.handleGetBalance).Methods("GET")

	// Persistence
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/changes", ws.handleGetChanges).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")

	// Subrouters resolve method mismatches themselves, so each needs the handler.
	ws.router.MethodNotAllowedHandler = http.HandlerFunc(ws.handleMethodNotAllowed)
	api.MethodNotAllowedHandler = http.HandlerFunc(ws.handleMethodNotAllowed)
	ws.router.NotFoundHandler = http.HandlerFunc(ws.handleNotFound)

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

func (ws *WebServer) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	ws.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed on "+r.URL.Path)
}

func (ws *WebServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	ws.writeErrorResponse(w, http.StatusNotFound, "No route for "+r.URL.Path)
}

// Start serves requests until ctx is done.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ws.logger.Info().Msg("Shutting down web server")
		return server.Shutdown(shutdownCtx)
	}
}

// handleHealth reports liveness and database status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStatus := "disabled"
	healthy := true
	if ws.store != nil {
		dbStatus = "ok"
		if err := ws.store.Ping(r.Context()); err != nil {
			ws.logger.Warn().Err(err).Msg("Health check database ping failed")
			dbStatus = "unreachable"
			healthy = false
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !healthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "credmarket",
			"version": "1.0.0",
		},
		"market": map[string]interface{}{
			"database":      dbStatus,
			"pools":         len(ws.service.Pools()),
			"oracle_assets": len(ws.service.Oracle().Assets()),
			"updaters":      ws.service.Oracle().Updaters(),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetCycles returns recent updater cycles
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	limit := queryInt(r, "limit", 20)
	cycles, err := ws.store.GetRecentCycles(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
	})
}

// handleGetChanges returns recent change records, filtered by kind and asset
func (ws *WebServer) handleGetChanges(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	q := r.URL.Query()
	records, err := ws.store.GetRecentChanges(r.Context(), types.ChangeKind(q.Get("kind")), q.Get("asset"), queryInt(r, "limit", 20))
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get change records")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve change records")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"changes": records,
		"count":   len(records),
	})
}

// handleGetSummary returns aggregate counts across persisted tables
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	summary, err := ws.store.GetMarketSummary(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get market summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve market summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) requireStore(w http.ResponseWriter) bool {
	if ws.store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Persistence is disabled")
		return false
	}
	return true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// writeServiceError maps a market error to its HTTP status.
func (ws *WebServer) writeServiceError(w http.ResponseWriter, err error) {
	kind := market.Kind(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		ws.logger.Error().Err(err).Msg("Market operation failed")
	}
	response := map[string]interface{}{
		"error":     true,
		"kind":      kind.String(),
		"message":   err.Error(),
		"timestamp": time.Now().UTC(),
	}
	ws.writeJSONResponse(w, status, response)
}

func statusForKind(kind types.ErrorKind) int {
	switch kind {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindUnauthorized:
		return http.StatusForbidden
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindConflict, types.KindInsufficient:
		return http.StatusConflict
	case types.KindInvariant:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// caller returns the X-Caller identity or writes 401.
func (ws *WebServer) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(CallerHeader)
	if id == "" {
		ws.writeErrorResponse(w, http.StatusUnauthorized, "Missing "+CallerHeader+" header")
		return "", false
	}
	return id, true
}

// pathVar returns an unescaped route variable.
func pathVar(r *http.Request, name string) string {
	raw := mux.Vars(r)[name]
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func queryInt(r *http.Request, name string, fallback int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+CallerHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and feeds the latency observer
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if ws.observer != nil {
			ws.observer.ObserveRequest(r.Method, route, wrapper.statusCode, duration)
		}

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("caller", r.Header.Get(CallerHeader)).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
