package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/credmarket/internal/config"
	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/ledger"
	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/market"
	"github.com/elys-network/credmarket/internal/metrics"
	"github.com/elys-network/credmarket/internal/state"
	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/updater"
	"github.com/elys-network/credmarket/internal/web"
)

const (
	JOURNAL_GAUGE_INTERVAL = 30 * time.Second
	SHUTDOWN_TIMEOUT       = 15 * time.Second
)

// main is the entry point for the credential market service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	log.Info().Msg("Credential market starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Persistence (optional) ---
	var store *state.Store
	params := cfg.Market
	if cfg.PersistenceEnabled {
		store, err = state.Open(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		params = resolveParameters(ctx, store, cfg.Market)
	} else {
		log.Warn().Msg("Persistence disabled. Market state lives in memory only.")
	}

	// --- 3. Change record sinks ---
	collector := metrics.NewCollector(params.CreditDecimals, params.StableDecimals)
	sinks := events.MultiEmitter{collector}
	var journal *state.Journal
	if store != nil {
		journal = state.NewJournal(store, state.JournalOptions{})
		sinks = append(sinks, journal)
	}

	// --- 4. Market service ---
	memLedger := ledger.NewMemoryLedger()
	service, err := market.NewService(market.Config{
		Ledger:   memLedger,
		Params:   params,
		Emitter:  sinks,
		Admins:   []string{cfg.AdminID},
		Updaters: cfg.Updaters(),
		Treasury: cfg.TreasuryID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create market service")
	}

	if store != nil {
		restoreMarket(ctx, store, service, memLedger)
	}

	// --- 5. Background components ---
	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Info().Str("component", name).Msg("Component stopped")
		}()
	}

	if cfg.MetricsPort > 0 {
		run("metrics", func() {
			if err := collector.Serve(ctx, cfg.MetricsPort); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		})
	}

	if journal != nil {
		run("journal_gauge", func() {
			ticker := time.NewTicker(JOURNAL_GAUGE_INTERVAL)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					collector.SetJournalDropped(journal.Dropped())
				}
			}
		})
	}

	if cfg.UpdaterInterval > 0 {
		updaterCfg := updater.Config{
			Service:   service,
			UpdaterID: cfg.UpdaterID,
			Observer:  collector,
		}
		if store != nil {
			updaterCfg.Counter = store
			updaterCfg.Sink = store
		}
		priceUpdater, err := updater.New(updaterCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create price updater")
		}
		run("updater", func() { priceUpdater.RunLoop(ctx, cfg.UpdaterInterval) })
	} else {
		log.Warn().Msg("UPDATER_INTERVAL is 0. Prices must be pushed through the API.")
	}

	webCfg := web.Config{
		Port:     cfg.WebPort,
		Service:  service,
		Observer: collector,
		Minter:   memLedger,
	}
	if store != nil {
		webCfg.Store = store
	}
	webServer := web.NewWebServer(webCfg)
	run("web", func() {
		log.Info().Str("port", cfg.WebPort).Str("url", "http://localhost:"+cfg.WebPort).Msg("Starting credential market API")
		if err := webServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	})

	// --- 6. Shutdown ---
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping components...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(SHUTDOWN_TIMEOUT):
		log.Warn().Dur("timeout", SHUTDOWN_TIMEOUT).Msg("Components did not stop in time")
	}

	if store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
		if err := store.SaveMarketSnapshot(saveCtx, service.Snapshot()); err != nil {
			log.Error().Err(err).Msg("Failed to save final market snapshot")
		}
		cancel()
		journal.Close()
	}
	log.Info().Msg("Credential market stopped")
}

// resolveParameters returns the active parameter set from the database, saving
// the configured defaults when none exists yet.
func resolveParameters(ctx context.Context, store *state.Store, defaults types.MarketParameters) types.MarketParameters {
	params, err := store.LoadActiveMarketParameters(ctx, config.DEFAULT_MARKET_CONFIG_NAME)
	if err == nil {
		log.Info().Msg("Market parameters loaded from database.")
		return params
	}
	if !errors.Is(err, state.ErrNoActiveParameters) {
		log.Fatal().Err(err).Msg("Failed to load market parameters")
	}
	log.Warn().Msg("No active market parameters found, saving configured defaults.")
	if _, _, err := store.SaveMarketParameters(ctx, config.DEFAULT_MARKET_CONFIG_NAME, defaults, true); err != nil {
		log.Fatal().Err(err).Msg("Failed to save initial market parameters")
	}
	return defaults
}

// restoreMarket reloads the last snapshot and refunds pool accounts on the fresh
// in-memory ledger.
func restoreMarket(ctx context.Context, store *state.Store, service *market.Service, memLedger *ledger.MemoryLedger) {
	snapshot, err := store.LoadMarketSnapshot(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load market snapshot")
	}
	if err := service.Restore(snapshot); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore market state")
	}
	if err := service.ReconcilePoolAccounts(ctx, memLedger); err != nil {
		log.Fatal().Err(err).Msg("Restored pools failed reconciliation")
	}
}
