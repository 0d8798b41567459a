package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

type Outcome string

const (
	Success                  Outcome       = "success"
	Failure                  Outcome       = "failure"
	MetricRequestTimeout     time.Duration = 5 * time.Second
	MetricRequestIdleTimeout time.Duration = 10 * time.Second
)

func (o Outcome) String() string {
	return string(o)
}

// Collector turns change records into Prometheus series. It implements
// events.Emitter so it can sit next to the journal in a MultiEmitter.
type Collector struct {
	registry       *prometheus.Registry
	creditDecimals int
	stableDecimals int
	logger         zerolog.Logger

	changeRecords   *prometheus.CounterVec
	swapVolume      *prometheus.CounterVec
	protocolFees    *prometheus.CounterVec
	spotPrice       *prometheus.GaugeVec
	poolLiquidity   *prometheus.GaugeVec
	reputation      *prometheus.GaugeVec
	reputationRank  *prometheus.GaugeVec
	cycleDuration   *prometheus.HistogramVec
	cycleFailures   prometheus.Counter
	journalDropped  prometheus.Gauge
	requestDuration *prometheus.HistogramVec
}

// NewCollector registers every collector on a fresh registry. Amounts are
// reported in whole units of their asset.
func NewCollector(creditDecimals, stableDecimals int) *Collector {
	defaultHistogramBucketsSeconds := []float64{0.1, 0.5, 1, 2.5, 5, 10, 30}

	c := &Collector{
		registry:       prometheus.NewRegistry(),
		creditDecimals: creditDecimals,
		stableDecimals: stableDecimals,
		logger:         logger.GetForComponent("metrics"),

		changeRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credmarket_change_records_total",
				Help: "Number of change records emitted, by kind.",
			},
			[]string{"kind"},
		),
		swapVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credmarket_swap_volume_stable",
				Help: "Stable-side swap volume in whole stable units, by asset.",
			},
			[]string{"asset"},
		),
		protocolFees: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credmarket_protocol_fees_distributed",
				Help: "Protocol fees paid to the treasury in whole units, by asset and side.",
			},
			[]string{"asset", "side"},
		),
		spotPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "credmarket_oracle_price",
				Help: "Latest oracle price of an asset in stable units per credit unit.",
			},
			[]string{"asset"},
		),
		poolLiquidity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "credmarket_oracle_liquidity_stable",
				Help: "Latest sampled liquidity of an asset in whole stable units.",
			},
			[]string{"asset"},
		),
		reputation: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "credmarket_reputation_score",
				Help: "Latest reputation score of a credential.",
			},
			[]string{"credential"},
		),
		reputationRank: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "credmarket_reputation_rank",
				Help: "Latest 1-based rank of a credential.",
			},
			[]string{"credential"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credmarket_updater_cycle_duration_seconds",
				Help:    "Duration of price updater cycles.",
				Buckets: defaultHistogramBucketsSeconds,
			},
			[]string{"outcome"},
		),
		cycleFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "credmarket_updater_cycle_failures_total",
				Help: "Individual asset or credential failures recorded by updater cycles.",
			},
		),
		journalDropped: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "credmarket_journal_dropped_records",
				Help: "Change records dropped by the persistence journal.",
			},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credmarket_http_request_duration_seconds",
				Help:    "Latency of API requests.",
				Buckets: defaultHistogramBucketsSeconds,
			},
			[]string{"method", "route", "status"},
		),
	}

	c.registry.MustRegister(
		c.changeRecords,
		c.swapVolume,
		c.protocolFees,
		c.spotPrice,
		c.poolLiquidity,
		c.reputation,
		c.reputationRank,
		c.cycleDuration,
		c.cycleFailures,
		c.journalDropped,
		c.requestDuration,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Emit updates the series derived from rec.
func (c *Collector) Emit(rec types.ChangeRecord) {
	c.changeRecords.WithLabelValues(string(rec.Kind)).Inc()

	switch rec.Kind {
	case types.KindSwap:
		stable := rec.Amounts["amount_in"]
		if rec.Amounts["side_in"] != string(types.SideStable) {
			stable = rec.Amounts["amount_out"]
		}
		if v, ok := c.amount(stable, c.stableDecimals); ok {
			c.swapVolume.WithLabelValues(rec.Asset).Add(v)
		}
	case types.KindProtocolFees:
		if v, ok := c.amount(rec.Amounts["stable"], c.stableDecimals); ok {
			c.protocolFees.WithLabelValues(rec.Asset, string(types.SideStable)).Add(v)
		}
		if v, ok := c.amount(rec.Amounts["credit"], c.creditDecimals); ok {
			c.protocolFees.WithLabelValues(rec.Asset, string(types.SideCredit)).Add(v)
		}
	case types.KindPriceUpdated:
		if v, ok := c.amount(rec.After["price"], types.PriceDecimals); ok {
			c.spotPrice.WithLabelValues(rec.Asset).Set(v)
		}
		if v, ok := c.amount(rec.Amounts["liquidity"], c.stableDecimals); ok {
			c.poolLiquidity.WithLabelValues(rec.Asset).Set(v)
		}
	case types.KindReputationUpdated:
		if score, err := strconv.ParseFloat(rec.After["score"], 64); err == nil {
			c.reputation.WithLabelValues(rec.Credential).Set(score)
		}
		if rank, err := strconv.ParseFloat(rec.After["rank"], 64); err == nil {
			c.reputationRank.WithLabelValues(rec.Credential).Set(rank)
		}
	}
}

// ObserveCycle records an updater cycle.
func (c *Collector) ObserveCycle(report types.CycleReport) {
	outcome := Success
	if !report.Succeeded() {
		outcome = Failure
	}
	c.cycleDuration.WithLabelValues(outcome.String()).Observe(report.Duration.Seconds())
	c.cycleFailures.Add(float64(len(report.Failures)))
}

// SetJournalDropped publishes the journal's dropped-record counter.
func (c *Collector) SetJournalDropped(n uint64) {
	c.journalDropped.Set(float64(n))
}

// ObserveRequest records the latency of one API request.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (c *Collector) amount(raw string, decimals int) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	n, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		c.logger.Warn().Str("value", raw).Msg("Ignoring non-integer amount in change record")
		return 0, false
	}
	v, err := utils.SDKIntToFloat64(n, decimals)
	if err != nil {
		c.logger.Warn().Err(err).Str("value", raw).Msg("Failed to convert amount for metrics")
		return 0, false
	}
	return v, true
}

// Router serves the registry on /metrics.
func (c *Collector) Router() *chi.Mux {
	router := chi.NewRouter()
	handler := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	})
	return router
}

// Serve runs the metrics server until ctx is done.
func (c *Collector) Serve(ctx context.Context, metricsPort int) error {
	metricsAddr := fmt.Sprintf(":%d", metricsPort)
	server := &http.Server{
		Addr:         metricsAddr,
		Handler:      c.Router(),
		ReadTimeout:  MetricRequestTimeout,
		WriteTimeout: MetricRequestTimeout,
		IdleTimeout:  MetricRequestIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info().Str("addr", metricsAddr).Msg("Starting metrics server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server on %s: %w", metricsAddr, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), MetricRequestTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
