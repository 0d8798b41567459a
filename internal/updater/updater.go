package updater

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/market"
	"github.com/elys-network/credmarket/internal/types"
)

// CycleCounter hands out persistent cycle numbers. *state.Store implements it.
type CycleCounter interface {
	IncrementCycleNumber(ctx context.Context) (int, error)
}

// CycleSink receives the outcome of every cycle. *state.Store implements it.
type CycleSink interface {
	SaveCycleReport(ctx context.Context, report types.CycleReport) (int64, error)
	SaveMarketSnapshot(ctx context.Context, snapshot types.MarketSnapshot) error
}

// CycleObserver is told about every finished cycle. *metrics.Collector implements it.
type CycleObserver interface {
	ObserveCycle(report types.CycleReport)
}

// Updater periodically samples every active pool into the oracle and recomputes
// the reputation of the credentials linked to it.
type Updater struct {
	logger    zerolog.Logger
	service   *market.Service
	updaterID string
	counter   CycleCounter
	sink      CycleSink
	observer  CycleObserver

	cycleCount int
}

// Config holds the configuration for creating a new Updater instance.
type Config struct {
	Service   *market.Service
	UpdaterID string       // Identity holding the updater role
	Counter   CycleCounter // Optional; a local counter is used when nil
	Sink      CycleSink    // Optional; reports and snapshots are only logged when nil
	Observer  CycleObserver
}

// New creates an Updater after validating cfg.
func New(cfg Config) (*Updater, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("updater configuration validation failed: %w", err)
	}
	u := &Updater{
		logger:    logger.GetForComponent("price_updater"),
		service:   cfg.Service,
		updaterID: cfg.UpdaterID,
		counter:   cfg.Counter,
		sink:      cfg.Sink,
		observer:  cfg.Observer,
	}
	u.logger.Info().Str("updaterID", u.updaterID).Bool("persistent", u.sink != nil).Msg("Price updater created")
	return u, nil
}

func validateConfig(cfg Config) error {
	if cfg.Service == nil {
		return fmt.Errorf("market service cannot be nil")
	}
	if cfg.UpdaterID == "" {
		return fmt.Errorf("updater id cannot be empty")
	}
	return nil
}

// RunLoop runs a cycle immediately and then on every tick until ctx is done.
func (u *Updater) RunLoop(ctx context.Context, interval time.Duration) {
	u.logger.Info().Dur("interval", interval).Msg("Starting price updater loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	u.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			u.logger.Info().Msg("Price updater loop stopped due to context cancellation")
			return
		case <-ticker.C:
			u.RunCycle(ctx)
		}
	}
}

// RunCycle samples every active pool in one oracle batch, then rescores every
// credential linked to a sampled asset. A failure on one asset or credential is
// recorded and the cycle moves on.
func (u *Updater) RunCycle(ctx context.Context) types.CycleReport {
	report := types.CycleReport{
		CycleID:     uuid.New().String(),
		CycleNumber: u.nextCycleNumber(ctx),
		StartedAt:   time.Now(),
		Failures:    make([]string, 0),
	}
	cycleLogger := u.logger.With().Str("cycle_id", report.CycleID).Int("cycle", report.CycleNumber).Logger()
	cycleLogger.Info().Msg("--- Starting price update cycle ---")

	// --- Step 1: Sample pools ---
	updates := u.collectSamples(ctx, &report, cycleLogger)
	cycleLogger.Info().Int("pools", report.Pools).Int("samples", len(updates)).Msg("Step 1: Pool sampling complete.")

	// --- Step 2: Push to the oracle ---
	sampled := u.pushSamples(updates, &report, cycleLogger)
	cycleLogger.Info().Int("accepted", report.Samples).Msg("Step 2: Oracle update complete.")

	// --- Step 3: Rescore linked credentials ---
	for _, asset := range sampled {
		for _, credential := range u.service.LinkedCredentials(asset) {
			rec, err := u.service.UpdateReputationScore(u.updaterID, credential)
			if err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("score %s: %v", credential, err))
				cycleLogger.Error().Err(err).Str("credential", credential).Msg("Failed to update reputation score")
				continue
			}
			report.Scored++
			cycleLogger.Debug().Str("credential", credential).Uint64("score", rec.Score).Msg("Credential rescored")
		}
	}
	cycleLogger.Info().Int("scored", report.Scored).Msg("Step 3: Reputation update complete.")

	report.Duration = time.Since(report.StartedAt)
	u.persist(ctx, report, cycleLogger)
	if u.observer != nil {
		u.observer.ObserveCycle(report)
	}

	cycleLogger.Info().
		Dur("duration", report.Duration).
		Int("failures", len(report.Failures)).
		Msg("--- Price update cycle completed ---")
	return report
}

func (u *Updater) collectSamples(ctx context.Context, report *types.CycleReport, cycleLogger zerolog.Logger) []types.PriceUpdate {
	var updates []types.PriceUpdate
	for _, pm := range u.service.Factory().Pools() {
		snap := pm.Snapshot()
		if !snap.IsActive {
			cycleLogger.Debug().Str("asset", snap.Asset).Msg("Skipping inactive pool")
			continue
		}
		report.Pools++

		price, err := pm.SpotPrice()
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("price %s: %v", snap.Asset, err))
			cycleLogger.Error().Err(err).Str("asset", snap.Asset).Msg("Failed to read spot price")
			continue
		}
		volume, trades, err := pm.TakeVolume(ctx)
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("volume %s: %v", snap.Asset, err))
			cycleLogger.Error().Err(err).Str("asset", snap.Asset).Msg("Failed to take pool volume")
			continue
		}
		updates = append(updates, types.PriceUpdate{
			Asset:     snap.Asset,
			Price:     price,
			Volume:    volume,
			Liquidity: liquidity(snap),
			Trades:    trades,
		})
		cycleLogger.Debug().
			Str("asset", snap.Asset).
			Str("price", price.String()).
			Str("volume", volume.String()).
			Uint64("trades", trades).
			Msg("Pool sampled")
	}
	return updates
}

// pushSamples submits updates in batches no larger than the oracle accepts and
// returns the assets that were recorded.
func (u *Updater) pushSamples(updates []types.PriceUpdate, report *types.CycleReport, cycleLogger zerolog.Logger) []string {
	var sampled []string
	size := u.service.Params().MaxBatchSize
	for start := 0; start < len(updates); start += size {
		end := start + size
		if end > len(updates) {
			end = len(updates)
		}
		batch := updates[start:end]
		if err := u.service.BatchUpdatePrices(u.updaterID, batch); err != nil {
			for _, upd := range batch {
				report.Failures = append(report.Failures, fmt.Sprintf("sample %s: %v", upd.Asset, err))
			}
			cycleLogger.Error().Err(err).Int("batch", len(batch)).Msg("Oracle rejected price batch")
			continue
		}
		report.Samples += len(batch)
		for _, upd := range batch {
			sampled = append(sampled, upd.Asset)
		}
	}
	return sampled
}

func (u *Updater) persist(ctx context.Context, report types.CycleReport, cycleLogger zerolog.Logger) {
	if u.sink == nil {
		return
	}
	if _, err := u.sink.SaveCycleReport(ctx, report); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle report")
	}
	if err := u.sink.SaveMarketSnapshot(ctx, u.service.Snapshot()); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save market snapshot")
	}
}

func (u *Updater) nextCycleNumber(ctx context.Context) int {
	u.cycleCount++
	if u.counter == nil {
		return u.cycleCount
	}
	n, err := u.counter.IncrementCycleNumber(ctx)
	if err != nil {
		u.logger.Error().Err(err).Int("fallback", u.cycleCount).Msg("Failed to increment persistent cycle counter")
		return u.cycleCount
	}
	return n
}

// liquidity values a pool at twice its stable reserve, in stable smallest units.
func liquidity(p types.Pool) sdkmath.Int {
	if p.ReserveStable.IsNil() {
		return sdkmath.ZeroInt()
	}
	return p.ReserveStable.MulRaw(2)
}
